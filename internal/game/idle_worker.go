package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/playmatatu/billiards/internal/config"
	rkeys "github.com/playmatatu/billiards/internal/redis"
	"github.com/redis/go-redis/v9"
)

// StartIdleWorker starts a background worker that removes tables nobody has
// touched for TableIdleMinutes. With Redis the table_idle sorted set is the
// source of truth across instances; without it the worker sweeps memory.
func StartIdleWorker(ctx context.Context, tm *TableManager, rdb *redis.Client, cfg *config.Config) {
	if tm == nil || cfg == nil {
		log.Println("[IDLE] Manager or config missing; idle worker not started")
		return
	}
	if cfg.TableIdleMinutes <= 0 {
		log.Println("[IDLE] TABLE_IDLE_MINUTES <= 0; idle worker disabled")
		return
	}
	poll := time.Duration(cfg.IdleWorkerPollSeconds) * time.Second
	if poll <= 0 {
		poll = 30 * time.Second
	}
	maxIdle := time.Duration(cfg.TableIdleMinutes) * time.Minute

	log.Printf("[IDLE] Idle worker started (max_idle=%s poll=%s redis=%t)", maxIdle, poll, rdb != nil)
	go func() {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[IDLE] Idle worker stopping")
				return
			case <-ticker.C:
				if rdb != nil {
					reapFromRedis(ctx, tm, rdb, maxIdle)
				} else {
					reapFromMemory(tm, maxIdle)
				}
			}
		}
	}()
}

// reapFromRedis removes every table whose last activity is older than maxIdle.
// ZRem decides which instance wins a member, so each table is reaped once.
func reapFromRedis(ctx context.Context, tm *TableManager, rdb *redis.Client, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle).Unix()
	members, err := rdb.ZRangeByScore(ctx, rkeys.IdleSetKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", cutoff)}).Result()
	if err != nil {
		log.Printf("[IDLE] Failed to fetch idle tables: %v", err)
		return 0
	}

	reaped := 0
	for _, id := range members {
		removed, err := rdb.ZRem(ctx, rkeys.IdleSetKey, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		tm.RemoveTable(id)
		reaped++
		log.Printf("[IDLE] Reaped idle table %s", id)
	}
	return reaped
}

func reapFromMemory(tm *TableManager, maxIdle time.Duration) int {
	reaped := 0
	for _, id := range tm.TableIDs() {
		tm.mu.RLock()
		s := tm.tables[id]
		tm.mu.RUnlock()
		if s == nil || s.Idle() < maxIdle {
			continue
		}
		tm.RemoveTable(id)
		reaped++
		log.Printf("[IDLE] Reaped idle table %s", id)
	}
	return reaped
}
