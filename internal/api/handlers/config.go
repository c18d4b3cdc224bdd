package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/game"
)

// GetConfig returns the table geometry and loop settings a client needs to
// render and predict shots.
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	table := game.NewStandardTable()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"table":             table,
			"max_power":         game.MaxPower,
			"min_shot_power":    game.MinShotPower,
			"frame_interval_ms": cfg.FrameIntervalMs,
			"group_policy":      cfg.GroupPolicy,
		})
	}
}
