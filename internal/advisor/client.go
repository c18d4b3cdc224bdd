package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/game"
	rkeys "github.com/playmatatu/billiards/internal/redis"
	"github.com/redis/go-redis/v9"
)

var (
	ErrCoolingDown = errors.New("advisor cooling down")
	ErrBadResponse = errors.New("advisor returned an unusable shot")
)

// Client asks a remote shot advisor for the computer's shot. Every failure is
// absorbed: Plan always returns a shot, falling back to the local planner.
type Client struct {
	url           string
	apiKey        string
	httpClient    *http.Client
	rdb           *redis.Client
	cooldown      time.Duration
	minConfidence float64

	mu           sync.Mutex
	coolingUntil time.Time
}

// NewClient constructs an advisory client. Returns nil if not configured.
func NewClient(cfg *config.Config, rdb *redis.Client) *Client {
	if cfg == nil || cfg.AdvisorURL == "" {
		return nil
	}
	return &Client{
		url:           strings.TrimRight(cfg.AdvisorURL, "/"),
		apiKey:        cfg.AdvisorAPIKey,
		httpClient:    &http.Client{Timeout: cfg.AdvisorTimeout()},
		rdb:           rdb,
		cooldown:      cfg.AdvisorCooldown(),
		minConfidence: cfg.AdvisorMinConfidence,
	}
}

type wireBall struct {
	ID         int     `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	IsStriped  bool    `json:"isStriped"`
	IsPocketed bool    `json:"isPocketed"`
	Radius     float64 `json:"radius"`
}

type wirePocket struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

type planRequest struct {
	Balls   []wireBall   `json:"balls"`
	Pockets []wirePocket `json:"pockets"`
	Group   game.Group   `json:"group"`
}

type wireShot struct {
	Angle        *float64 `json:"angle"`
	Power        *float64 `json:"power"`
	TargetBallID *int     `json:"targetBallId"`
	Confidence   *float64 `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
}

type planResponse struct {
	wireShot
	Success *bool     `json:"success"`
	Shot    *wireShot `json:"shot"`
}

// Plan returns the advisor's shot when it answers in time with a usable plan,
// otherwise the local planner's.
func (c *Client) Plan(ctx context.Context, t *game.Table, balls []game.Ball, group game.Group) game.ShotPlan {
	local := game.PlanShot(t, balls, group)
	if c == nil {
		return local
	}
	if c.coolingDown(ctx) {
		return local
	}

	plan, err := c.fetch(ctx, t, balls, group)
	if err != nil {
		log.Printf("[ADVISOR] Falling back to local planner: %v", err)
		c.startCooldown(ctx)
		return local
	}
	if plan.Confidence < c.minConfidence && plan.Confidence < local.Confidence {
		log.Printf("[ADVISOR] Low confidence %.2f, using local plan (%.2f)", plan.Confidence, local.Confidence)
		return local
	}
	return plan
}

func (c *Client) fetch(ctx context.Context, t *game.Table, balls []game.Ball, group game.Group) (game.ShotPlan, error) {
	body, err := json.Marshal(buildRequest(t, balls, group))
	if err != nil {
		return game.ShotPlan{}, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return game.ShotPlan{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return game.ShotPlan{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return game.ShotPlan{}, fmt.Errorf("advisor returned %d: %s", resp.StatusCode, string(raw))
	}
	return parseResponse(raw)
}

func buildRequest(t *game.Table, balls []game.Ball, group game.Group) planRequest {
	req := planRequest{Group: group}
	for _, b := range balls {
		req.Balls = append(req.Balls, wireBall{
			ID:         b.ID,
			X:          b.Position.X,
			Y:          b.Position.Y,
			IsStriped:  b.Striped,
			IsPocketed: b.Pocketed,
			Radius:     b.Radius,
		})
	}
	for _, p := range t.Pockets {
		req.Pockets = append(req.Pockets, wirePocket{X: p.Position.X, Y: p.Position.Y, Radius: p.Radius})
	}
	return req
}

// parseResponse accepts either a bare shot or {success, shot} and validates it.
func parseResponse(raw []byte) (game.ShotPlan, error) {
	var resp planResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return game.ShotPlan{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	shot := resp.wireShot
	if resp.Shot != nil {
		if resp.Success != nil && !*resp.Success {
			return game.ShotPlan{}, fmt.Errorf("%w: success=false", ErrBadResponse)
		}
		shot = *resp.Shot
	}
	if shot.Angle == nil || shot.Power == nil || shot.TargetBallID == nil || shot.Confidence == nil {
		return game.ShotPlan{}, fmt.Errorf("%w: missing fields", ErrBadResponse)
	}

	plan := game.ShotPlan{
		Angle:        *shot.Angle,
		Power:        *shot.Power,
		TargetBallID: *shot.TargetBallID,
		PocketID:     -1,
		Confidence:   *shot.Confidence,
		Reasoning:    shot.Reasoning,
		Source:       "advisor",
	}
	if !plan.Valid() {
		return game.ShotPlan{}, fmt.Errorf("%w: %+v", ErrBadResponse, plan)
	}
	return plan, nil
}

func (c *Client) coolingDown(ctx context.Context) bool {
	if c.rdb != nil {
		n, err := c.rdb.Exists(ctx, rkeys.AdvisorCooldownKey).Result()
		if err == nil {
			return n > 0
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.coolingUntil)
}

func (c *Client) startCooldown(ctx context.Context) {
	if c.cooldown <= 0 {
		return
	}
	c.mu.Lock()
	c.coolingUntil = time.Now().Add(c.cooldown)
	c.mu.Unlock()
	if c.rdb != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := c.rdb.SetNX(rctx, rkeys.AdvisorCooldownKey, "1", c.cooldown).Err(); err != nil {
			log.Printf("[ADVISOR] Failed to set cooldown: %v", err)
		}
	}
}
