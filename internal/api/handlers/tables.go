package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/billiards/internal/auth"
	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/game"
)

// CreateTable racks a new table and issues the token that controls it.
func CreateTable(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Seats        int      `json:"seats"`
			Names        []string `json:"names"`
			ComputerSide int      `json:"computer_side"`
			GroupPolicy  string   `json:"group_policy"`
			Player1Group string   `json:"player1_group"`
			Player2Group string   `json:"player2_group"`
		}
		// an empty body creates a default two-seat table
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
		}

		if req.Seats != 0 && (req.Seats < 2 || req.Seats > 4) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seats must be 2, 3 or 4"})
			return
		}
		if req.ComputerSide < 0 || req.ComputerSide > 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "computer_side must be 0, 1 or 2"})
			return
		}
		for i, name := range req.Names {
			name = strings.TrimSpace(name)
			if len(name) > 50 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid name"})
				return
			}
			req.Names[i] = name
		}

		opts := game.Options{Seats: req.Seats, Names: req.Names}
		if req.GroupPolicy != "" {
			opts.Policy = game.ParseGroupPolicy(req.GroupPolicy)
		}
		if opts.Policy == game.PolicyLegacyPreset {
			g1, ok1 := parseGroup(req.Player1Group)
			g2, ok2 := parseGroup(req.Player2Group)
			if !ok1 || !ok2 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "groups must be solid, striped or empty"})
				return
			}
			opts.Player1Group, opts.Player2Group = g1, g2
		}

		s := game.Manager.CreateTable(opts, game.PlayerID(req.ComputerSide))
		token, err := auth.IssueTableToken(cfg.JWTSecret, s.ID, cfg.TableTokenTTL())
		if err != nil {
			log.Printf("[ERROR] CreateTable - failed to sign token for %s: %v", s.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue table token"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"table_id": s.ID,
			"token":    token,
			"state":    s.State(),
		})
	}
}

func parseGroup(s string) (game.Group, bool) {
	switch game.Group(s) {
	case game.GroupNone, game.GroupSolids, game.GroupStripes:
		return game.Group(s), true
	}
	return game.GroupNone, false
}

// GetTableState returns a read-only snapshot of a table.
func GetTableState() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := game.Manager.GetTable(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"table_id":      s.ID,
			"computer_side": s.ComputerSide,
			"state":         s.State(),
		})
	}
}

// TakeShot fires the cue for the side on turn. Input the core refuses is
// reported as not accepted rather than as an error.
func TakeShot() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Angle *float64 `json:"angle" binding:"required"`
			Power *float64 `json:"power" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "angle and power required"})
			return
		}

		id := c.Param("id")
		err := game.Manager.Shoot(id, *req.Angle, *req.Power)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"accepted": true})
		case shotRejected(err):
			c.JSON(http.StatusOK, gin.H{"accepted": false, "reason": err.Error()})
		default:
			abortWithError(c, err)
		}
	}
}

// ResetTable re-racks a table.
func ResetTable() gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := game.Manager.Reset(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": st})
	}
}

// ComputerShot plans and fires the computer side's shot.
func ComputerShot(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.AdvisorTimeout()+cfg.AdvisorTimeout()/2)
		defer cancel()
		plan, err := game.Manager.ComputerShot(ctx, c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"plan": plan})
	}
}

// PreviewPlan returns the local planner's shot for the side on turn without
// firing it.
func PreviewPlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := game.Manager.GetTable(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"plan": s.Plan()})
	}
}

// GetTableHistory lists the persisted shots of a table.
func GetTableHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		shots, err := game.Manager.History(c.Request.Context(), id)
		if err != nil {
			log.Printf("[DB] History for table %s failed: %v", id, err)
			abortWithError(c, err)
			return
		}
		rec, err := game.Manager.Record(c.Request.Context(), id)
		if err != nil {
			log.Printf("[DB] Record for table %s failed: %v", id, err)
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"table": rec, "shots": shots})
	}
}
