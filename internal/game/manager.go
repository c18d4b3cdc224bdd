package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/models"
	rkeys "github.com/playmatatu/billiards/internal/redis"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTableNotFound   = errors.New("table not found")
	ErrNotComputerTurn = errors.New("computer is not on turn")
	ErrNoPersistence   = errors.New("no database configured")
)

const (
	computerThinkDelay = 600 * time.Millisecond
	redisOpTimeout     = 2 * time.Second
)

// Advisor produces a shot plan for the computer side. Implementations must
// always return a usable plan, falling back to PlanShot on their own.
type Advisor interface {
	Plan(ctx context.Context, t *Table, balls []Ball, group Group) ShotPlan
}

// TableManager owns every live table on this instance. Tables are snapshotted
// to Redis after every resolved shot and rehydrated from there on a miss;
// resolved shots and final results go to SQL. Both stores are optional.
type TableManager struct {
	tables     map[string]*Session
	rdb        *redis.Client
	db         *sqlx.DB
	config     *config.Config
	table      *Table
	advisor    Advisor
	instanceID string

	sinks          MultiSink
	frameListeners []func(tableID string, balls []Ball)
	shotListeners  []func(tableID string, out ShotOutcome, state GameState)

	mu sync.RWMutex
}

// TableEvent is the payload published on the events channel.
type TableEvent struct {
	Origin  string `json:"origin"`
	TableID string `json:"table_id"`
	Event   Event  `json:"event"`
}

// snapshot is the Redis representation of a table.
type snapshot struct {
	ID           string    `json:"id"`
	ComputerSide PlayerID  `json:"computer_side"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	State        GameState `json:"state"`

	// ids pocketed so far by a shot still in flight
	Pocketed []int `json:"pocketed,omitempty"`
}

var (
	// Global table manager instance
	Manager *TableManager
)

// InitializeManager initializes the global table manager with Redis, DB and config
func InitializeManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	Manager = NewTableManager(db, rdb, cfg)
}

// NewTableManager creates a new table manager. db and rdb may be nil.
func NewTableManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) *TableManager {
	if cfg == nil {
		cfg = config.Default()
	}
	tm := &TableManager{
		tables:     make(map[string]*Session),
		rdb:        rdb,
		db:         db,
		config:     cfg,
		table:      NewStandardTable(),
		instanceID: generateToken(6),
	}
	if rdb != nil {
		tm.sinks = append(tm.sinks, EventSinkFunc(tm.publishEvent))
	}
	return tm
}

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// generateTableID generates a unique table ID
func generateTableID() string {
	return "tbl_" + generateToken(8)
}

// InstanceID identifies this process on the shared events channel.
func (tm *TableManager) InstanceID() string { return tm.instanceID }

// GetConfig returns the manager configuration.
func (tm *TableManager) GetConfig() *config.Config { return tm.config }

// SetAdvisor installs the computer shot advisor. nil means local planning only.
func (tm *TableManager) SetAdvisor(a Advisor) {
	tm.mu.Lock()
	tm.advisor = a
	tm.mu.Unlock()
}

// AddSink registers an event sink for every table on this instance.
func (tm *TableManager) AddSink(s EventSink) {
	tm.mu.Lock()
	tm.sinks = append(tm.sinks, s)
	tm.mu.Unlock()
}

// OnFrame registers a listener for in-flight ball frames.
func (tm *TableManager) OnFrame(fn func(tableID string, balls []Ball)) {
	tm.mu.Lock()
	tm.frameListeners = append(tm.frameListeners, fn)
	tm.mu.Unlock()
}

// OnShot registers a listener for resolved shots.
func (tm *TableManager) OnShot(fn func(tableID string, out ShotOutcome, state GameState)) {
	tm.mu.Lock()
	tm.shotListeners = append(tm.shotListeners, fn)
	tm.mu.Unlock()
}

// CreateTable racks a new table and persists it.
func (tm *TableManager) CreateTable(opts Options, computerSide PlayerID) *Session {
	if opts.Policy == "" {
		opts.Policy = ParseGroupPolicy(tm.config.GroupPolicy)
	}
	if computerSide != Player1 && computerSide != Player2 {
		computerSide = NoPlayer
	}

	s := NewSession(generateTableID(), tm.table, opts, computerSide, tm.config.FrameInterval(), tm.config.MaxStepsPerShot)
	s.SetHooks(tm.hooks())

	tm.mu.Lock()
	tm.tables[s.ID] = s
	tm.mu.Unlock()

	st := s.State()
	log.Printf("[TABLE] Table created: %s (seats=%d policy=%s computer=%d)", s.ID, len(st.Seats), st.Policy, computerSide)

	tm.recordTableCreated(s, st)
	tm.saveToRedis(s)
	tm.touchIdle(s.ID)

	if s.ComputerToMove() {
		go tm.playComputerAfterDelay(s.ID)
	}
	return s
}

// GetTable returns a live table, rehydrating it from Redis if this instance
// does not hold it.
func (tm *TableManager) GetTable(id string) (*Session, error) {
	tm.mu.RLock()
	s, exists := tm.tables[id]
	tm.mu.RUnlock()
	if exists {
		return s, nil
	}

	s, err := tm.loadFromRedis(id)
	if err != nil {
		return nil, ErrTableNotFound
	}

	tm.mu.Lock()
	if cur, ok := tm.tables[id]; ok {
		// lost a race with another loader
		tm.mu.Unlock()
		s.halt()
		return cur, nil
	}
	tm.tables[id] = s
	tm.mu.Unlock()

	log.Printf("[TABLE] Table %s rehydrated from Redis", id)
	return s, nil
}

// RemoveTable drops a table from memory and from Redis, and tells the other
// instances to drop theirs.
func (tm *TableManager) RemoveTable(id string) {
	tm.Forget(id)

	if tm.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		tm.rdb.Del(ctx, rkeys.StateKey(id))
		tm.rdb.ZRem(ctx, rkeys.IdleSetKey, id)
		tm.publishEvent(id, Event{Kind: EventTableRemoved, Message: "table removed"})
	}
	log.Printf("[TABLE] Table %s removed", id)
}

// Forget drops a table from this instance's memory only and stops its shot
// loop. It reports whether the table was held.
func (tm *TableManager) Forget(id string) bool {
	tm.mu.Lock()
	s, ok := tm.tables[id]
	delete(tm.tables, id)
	tm.mu.Unlock()
	if ok {
		s.halt()
	}
	return ok
}

// HandleRemoteEvent applies a table event published by another instance.
// A removal drops the local copy so it can not be saved back to Redis.
func (tm *TableManager) HandleRemoteEvent(te TableEvent) {
	if te.Origin == tm.instanceID || te.TableID == "" {
		return
	}
	if te.Event.Kind == EventTableRemoved && tm.Forget(te.TableID) {
		log.Printf("[TABLE] Table %s removed by instance %s", te.TableID, te.Origin)
	}
}

// TableIDs lists the tables held in memory.
func (tm *TableManager) TableIDs() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	ids := make([]string, 0, len(tm.tables))
	for id := range tm.tables {
		ids = append(ids, id)
	}
	return ids
}

// GetActiveTableCount returns the number of tables held in memory
func (tm *TableManager) GetActiveTableCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.tables)
}

// Shoot fires a shot on a table.
func (tm *TableManager) Shoot(id string, angle, power float64) error {
	s, err := tm.GetTable(id)
	if err != nil {
		return err
	}
	if err := s.Shoot(angle, power); err != nil {
		return err
	}
	tm.touchIdle(id)
	if s.Synchronous() {
		s.RunToRest()
	}
	return nil
}

// ChargeRelease fires a table's charged cue. It reports false for a release
// too weak to shoot.
func (tm *TableManager) ChargeRelease(id string, at time.Time) (bool, error) {
	s, err := tm.GetTable(id)
	if err != nil {
		return false, err
	}
	if !s.ChargeRelease(at) {
		return false, nil
	}
	tm.touchIdle(id)
	if s.Synchronous() {
		s.RunToRest()
	}
	return true, nil
}

// Reset re-racks a table.
func (tm *TableManager) Reset(id string) (GameState, error) {
	s, err := tm.GetTable(id)
	if err != nil {
		return GameState{}, err
	}
	st := s.Reset()
	tm.saveToRedis(s)
	tm.touchIdle(id)
	if s.ComputerToMove() {
		go tm.playComputerAfterDelay(id)
	}
	return st, nil
}

// Plan returns the shot the computer would take for the side on turn, asking
// the advisor when one is configured.
func (tm *TableManager) Plan(ctx context.Context, s *Session) ShotPlan {
	tm.mu.RLock()
	adv := tm.advisor
	tm.mu.RUnlock()

	if adv == nil {
		return s.Plan()
	}
	st := s.State()
	return adv.Plan(ctx, s.Table(), st.Balls, st.Side(st.CurrentPlayer).Group)
}

// ComputerShot plans and fires a shot for the side on turn. Tables with a
// computer side only accept it while that side is on turn.
func (tm *TableManager) ComputerShot(ctx context.Context, id string) (ShotPlan, error) {
	s, err := tm.GetTable(id)
	if err != nil {
		return ShotPlan{}, err
	}
	st := s.State()
	if st.GameOver {
		return ShotPlan{}, ErrGameOver
	}
	if !st.IsAiming {
		return ShotPlan{}, ErrNotAiming
	}
	if s.ComputerSide != NoPlayer && st.CurrentPlayer != s.ComputerSide {
		return ShotPlan{}, ErrNotComputerTurn
	}

	plan := tm.Plan(ctx, s)
	if err := s.Shoot(plan.Angle, plan.Power); err != nil {
		return plan, err
	}
	tm.touchIdle(id)
	if s.Synchronous() {
		s.RunToRest()
	}
	log.Printf("[TABLE] Table %s computer shot: target=%d angle=%.3f power=%.1f confidence=%.2f source=%s",
		id, plan.TargetBallID, plan.Angle, plan.Power, plan.Confidence, plan.Source)
	return plan, nil
}

func (tm *TableManager) playComputerAfterDelay(id string) {
	time.Sleep(computerThinkDelay)
	ctx, cancel := context.WithTimeout(context.Background(), tm.config.AdvisorTimeout()+time.Second)
	defer cancel()
	if _, err := tm.ComputerShot(ctx, id); err != nil && !errors.Is(err, ErrNotComputerTurn) {
		log.Printf("[TABLE] Table %s computer shot skipped: %v", id, err)
	}
}

// hooks wires a session's output into persistence and the registered listeners.
func (tm *TableManager) hooks() Hooks {
	return Hooks{
		Sink: EventSinkFunc(func(tableID string, ev Event) {
			tm.mu.RLock()
			sinks := tm.sinks
			tm.mu.RUnlock()
			sinks.Notify(tableID, ev)
		}),
		OnFrame: func(tableID string, balls []Ball) {
			tm.mu.RLock()
			listeners := tm.frameListeners
			tm.mu.RUnlock()
			for _, fn := range listeners {
				fn(tableID, balls)
			}
		},
		OnShot: tm.handleShot,
	}
}

func (tm *TableManager) handleShot(tableID string, out ShotOutcome, st GameState) {
	tm.recordShot(tableID, out)
	if out.GameOver {
		tm.recordCompleted(tableID, out.Winner)
	}

	tm.mu.RLock()
	s := tm.tables[tableID]
	listeners := tm.shotListeners
	tm.mu.RUnlock()

	if s != nil {
		tm.saveToRedis(s)
		tm.touchIdle(tableID)
	}

	for _, fn := range listeners {
		fn(tableID, out, st)
	}

	if s != nil && s.ComputerToMove() {
		go tm.playComputerAfterDelay(tableID)
	}
}

// publishEvent fans an event out to every instance through Redis.
func (tm *TableManager) publishEvent(tableID string, ev Event) {
	b, err := json.Marshal(TableEvent{Origin: tm.instanceID, TableID: tableID, Event: ev})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := tm.rdb.Publish(ctx, rkeys.EventsChannel, b).Err(); err != nil {
		log.Printf("[REDIS] publish %s event for table %s failed: %v", ev.Kind, tableID, err)
	}
}

// saveToRedis snapshots a table.
func (tm *TableManager) saveToRedis(s *Session) {
	if tm.rdb == nil {
		return
	}
	// a removed table must not be written back
	tm.mu.RLock()
	live := tm.tables[s.ID] == s
	tm.mu.RUnlock()
	if !live {
		return
	}

	s.mu.RLock()
	snap := snapshot{
		ID:           s.ID,
		ComputerSide: s.ComputerSide,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		State:        s.state.Clone(),
	}
	if s.flying {
		snap.Pocketed = append([]int(nil), s.pocketed...)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[REDIS] Failed to marshal table %s: %v", s.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := tm.rdb.SetEx(ctx, rkeys.StateKey(s.ID), data, tm.config.SnapshotTTL()).Err(); err != nil {
		log.Printf("[REDIS] Failed to save table %s: %v", s.ID, err)
	}
}

// loadFromRedis restores a table from its snapshot
func (tm *TableManager) loadFromRedis(id string) (*Session, error) {
	if tm.rdb == nil {
		return nil, errors.New("no redis client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := tm.rdb.Get(ctx, rkeys.StateKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.New("table not found in redis")
	}
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", id, err)
	}
	if len(snap.State.Balls) != NumBalls {
		return nil, fmt.Errorf("table %s snapshot has %d balls", id, len(snap.State.Balls))
	}

	s := NewSession(snap.ID, tm.table, snap.State.Options, snap.ComputerSide, tm.config.FrameInterval(), tm.config.MaxStepsPerShot)
	s.CreatedAt = snap.CreatedAt
	s.LastActivity = time.Now()
	s.SetHooks(tm.hooks())
	s.Restore(snap.State, snap.Pocketed)
	return s, nil
}

// touchIdle pushes a table's reap deadline forward.
func (tm *TableManager) touchIdle(id string) {
	tm.mu.RLock()
	s := tm.tables[id]
	tm.mu.RUnlock()
	if s != nil {
		s.Touch()
	}

	if tm.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := tm.rdb.ZAdd(ctx, rkeys.IdleSetKey, redis.Z{Score: float64(time.Now().Unix()), Member: id}).Err(); err != nil {
		log.Printf("[REDIS] Failed to touch idle set for table %s: %v", id, err)
	}
}

// Touch records activity on a table from outside the shot path (WS input).
func (tm *TableManager) Touch(id string) {
	tm.touchIdle(id)
}

func (tm *TableManager) recordTableCreated(s *Session, st GameState) {
	if tm.db == nil {
		return
	}
	_, err := tm.db.Exec(tm.db.Rebind(`INSERT INTO billiard_tables (id, seats, group_policy, computer_side, created_at) VALUES (?, ?, ?, ?, ?)`),
		s.ID, len(st.Seats), string(st.Policy), int(s.ComputerSide), s.CreatedAt.UTC())
	if err != nil {
		log.Printf("[DB] Failed to record table %s: %v", s.ID, err)
	}
}

func (tm *TableManager) recordShot(tableID string, out ShotOutcome) {
	if tm.db == nil {
		return
	}
	ids := out.Pocketed
	if ids == nil {
		ids = []int{}
	}
	pocketed, err := json.Marshal(ids)
	if err != nil {
		log.Printf("[DB] Failed to marshal pocketed balls for table %s: %v", tableID, err)
		return
	}
	_, err = tm.db.Exec(tm.db.Rebind(`INSERT INTO table_shots (table_id, shot_number, side, seat, angle, power, pocketed, foul, turn_switched, game_over, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		tableID, out.ShotNumber, int(out.Side), out.Seat, out.Angle, out.Power, string(pocketed), out.Foul, out.TurnSwitched, out.GameOver, time.Now().UTC())
	if err != nil {
		log.Printf("[DB] Failed to record shot %d for table %s: %v", out.ShotNumber, tableID, err)
	}
}

func (tm *TableManager) recordCompleted(tableID string, winner PlayerID) {
	if tm.db == nil {
		return
	}
	_, err := tm.db.Exec(tm.db.Rebind(`UPDATE billiard_tables SET completed_at = ?, winner = ? WHERE id = ?`),
		time.Now().UTC(), int(winner), tableID)
	if err != nil {
		log.Printf("[DB] Failed to record result for table %s: %v", tableID, err)
	}
}

// History returns the persisted shots of a table in shot order.
func (tm *TableManager) History(ctx context.Context, tableID string) ([]models.TableShot, error) {
	if tm.db == nil {
		return nil, ErrNoPersistence
	}
	shots := []models.TableShot{}
	err := tm.db.SelectContext(ctx, &shots, tm.db.Rebind(`SELECT id, table_id, shot_number, side, seat, angle, power, pocketed, foul, turn_switched, game_over, created_at FROM table_shots WHERE table_id = ? ORDER BY shot_number, id`), tableID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", tableID, err)
	}
	return shots, nil
}

// Record returns the persisted table row.
func (tm *TableManager) Record(ctx context.Context, tableID string) (*models.TableRecord, error) {
	if tm.db == nil {
		return nil, ErrNoPersistence
	}
	var rec models.TableRecord
	err := tm.db.GetContext(ctx, &rec, tm.db.Rebind(`SELECT id, seats, group_policy, computer_side, created_at, completed_at, winner FROM billiard_tables WHERE id = ?`), tableID)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", tableID, err)
	}
	return &rec, nil
}
