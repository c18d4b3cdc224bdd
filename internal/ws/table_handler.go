package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playmatatu/billiards/internal/auth"
	"github.com/playmatatu/billiards/internal/game"
)

// TableHub is the single hub for all tables.
var TableHub *Hub

func init() {
	TableHub = NewHub()
	go TableHub.Run()
}

// HandleWebSocket attaches a client to a table. A valid table token grants
// control; without one the client only watches.
func HandleWebSocket(c *gin.Context) {
	tableID := c.Param("id")
	if _, err := game.Manager.GetTable(tableID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
		return
	}

	control := false
	if token := c.Query("token"); token != "" {
		granted, err := auth.ParseTableToken(jwtSecret(), token)
		if err != nil || granted != tableID {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid table token"})
			return
		}
		control = true
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:    conn,
		tableID: tableID,
		name:    c.Request.RemoteAddr,
		binary:  c.Query("enc") == "msgpack",
		control: control,
		send:    make(chan []byte, 256),
	}

	TableHub.register <- client

	go client.writePump()
	client.sendState()
	go client.readPump()
}

func jwtSecret() string {
	if wsConfig != nil {
		return wsConfig.JWTSecret
	}
	return game.Manager.GetConfig().JWTSecret
}

// readPump reads commands until the connection drops.
func (c *Client) readPump() {
	defer func() {
		TableHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close for %s: %v", c.name, err)
			}
			break
		}

		var cmd Command
		if err := decode(messageType, message, &cmd); err != nil {
			c.sendError("Invalid message")
			continue
		}
		c.handleCommand(cmd)
	}
}

// handleCommand applies one client command to the table.
func (c *Client) handleCommand(cmd Command) {
	if cmd.Type == "get_state" {
		c.sendState()
		return
	}
	if !c.control {
		c.sendError("read-only connection")
		return
	}

	s, err := game.Manager.GetTable(c.tableID)
	if err != nil {
		c.sendError("Table not found")
		return
	}
	game.Manager.Touch(c.tableID)
	now := time.Now()

	switch cmd.Type {
	case "aim":
		s.Aim(game.NewVec2(cmd.Data.X, cmd.Data.Y))
		c.broadcastCue(s, now)

	case "charge_start":
		s.ChargeStart(now)
		c.broadcastCue(s, now)

	case "charge_cancel":
		s.ChargeCancel()
		c.broadcastCue(s, now)

	case "charge_release":
		fired, err := game.Manager.ChargeRelease(c.tableID, now)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if !fired {
			c.broadcastCue(s, now)
		}

	case "shoot":
		if err := game.Manager.Shoot(c.tableID, cmd.Data.Angle, cmd.Data.Power); err != nil {
			c.sendMessage(map[string]interface{}{"type": "shot_rejected", "reason": err.Error()})
		}

	case "reset":
		st, err := game.Manager.Reset(c.tableID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		TableHub.BroadcastToTable(c.tableID, stateMessage(c.tableID, st))

	case "computer_shot":
		ctx, cancel := context.WithTimeout(context.Background(), game.Manager.GetConfig().AdvisorTimeout()+time.Second)
		defer cancel()
		plan, err := game.Manager.ComputerShot(ctx, c.tableID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		TableHub.BroadcastToTable(c.tableID, map[string]interface{}{"type": "plan", "table_id": c.tableID, "plan": plan})

	default:
		c.sendError(fmt.Sprintf("Unknown message type %q", cmd.Type))
	}
}

func (c *Client) sendState() {
	s, err := game.Manager.GetTable(c.tableID)
	if err != nil {
		c.sendError("Table not found")
		return
	}
	c.sendMessage(stateMessage(c.tableID, s.State()))
}

// broadcastCue shares the aim line and charge level with watchers.
func (c *Client) broadcastCue(s *game.Session, at time.Time) {
	angle, power, charging := s.Cue(at)
	TableHub.BroadcastToTable(c.tableID, map[string]interface{}{
		"type":     "cue",
		"table_id": c.tableID,
		"angle":    angle,
		"power":    power,
		"charging": charging,
	})
}

func stateMessage(tableID string, st game.GameState) map[string]interface{} {
	return map[string]interface{}{
		"type":     "state",
		"table_id": tableID,
		"state":    st,
	}
}
