package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys and channels shared by the table manager, idle reaper, WS layer and advisor.
const (
	IdleSetKey         = "table_idle"
	EventsChannel      = "table_events"
	AdvisorCooldownKey = "advisor:cooldown"
)

// StateKey is where a table's JSON snapshot lives.
func StateKey(tableID string) string {
	return "table:" + tableID + ":state"
}

// Connect establishes a connection to Redis
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
