package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/game"
	rkeys "github.com/playmatatu/billiards/internal/redis"
	"github.com/redis/go-redis/v9"
)

var rdbClient *redis.Client
var wsConfig *config.Config

func SetRedisClient(r *redis.Client, cfg *config.Config) {
	rdbClient = r
	wsConfig = cfg
}

// AttachManager streams a manager's frames, events and shot results to the
// table rooms of this instance.
func AttachManager(tm *game.TableManager, h *Hub) {
	tm.AddSink(game.EventSinkFunc(func(tableID string, ev game.Event) {
		h.BroadcastLossy(tableID, eventMessage(tableID, ev))
	}))
	tm.OnFrame(func(tableID string, balls []game.Ball) {
		h.BroadcastLossy(tableID, map[string]interface{}{
			"type":     "frame",
			"table_id": tableID,
			"balls":    balls,
		})
	})
	tm.OnShot(func(tableID string, out game.ShotOutcome, st game.GameState) {
		h.BroadcastToTable(tableID, map[string]interface{}{
			"type":     "shot_result",
			"table_id": tableID,
			"outcome":  out,
		})
		h.BroadcastToTable(tableID, stateMessage(tableID, st))
	})
}

func eventMessage(tableID string, ev game.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":     "event",
		"table_id": tableID,
		"event":    ev,
	}
}

// StartEventSubscriber relays table events published by other instances to
// the rooms of this one. Events this instance published are already delivered
// locally and are skipped.
func StartEventSubscriber(ctx context.Context, instanceID string) {
	if rdbClient == nil {
		log.Println("[WS] Redis client not set; event subscriber not started")
		return
	}

	pubsub := rdbClient.Subscribe(ctx, rkeys.EventsChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[WS] %s subscriber started", rkeys.EventsChannel)
		for msg := range ch {
			var te game.TableEvent
			if err := json.Unmarshal([]byte(msg.Payload), &te); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}
			if te.Origin == instanceID || te.TableID == "" {
				continue
			}
			if game.Manager != nil {
				game.Manager.HandleRemoteEvent(te)
			}
			if TableHub.RoomSize(te.TableID) == 0 {
				continue
			}
			TableHub.BroadcastLossy(te.TableID, eventMessage(te.TableID, te.Event))
		}
	}()
}
