package game

import (
	"log"
	"sync"
	"time"
)

// Hooks receive table output. All are optional and called without the table
// lock held.
type Hooks struct {
	Sink    EventSink
	OnFrame func(tableID string, balls []Ball)
	OnShot  func(tableID string, out ShotOutcome, state GameState)
}

// Session drives one table: it owns the GameState, the cue controller and the
// shot loop. While a shot is in flight a single goroutine steps the integrator
// once per frame interval; steps never overlap.
type Session struct {
	ID           string    `json:"id"`
	ComputerSide PlayerID  `json:"computer_side,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	table    *Table
	state    GameState
	cue      Cue
	hooks    Hooks
	interval time.Duration
	maxSteps int

	// in-flight accumulators, reset on every shot
	steps     int
	pocketed  []int
	shotAngle float64
	shotPower float64
	flying    bool
	gen       uint64 // bumped per shot so a stale loop exits

	mu sync.RWMutex
}

// NewSession racks a new table. interval <= 0 means the caller drives the
// integrator with Tick (tests, self-play).
func NewSession(id string, t *Table, opts Options, computerSide PlayerID, interval time.Duration, maxSteps int) *Session {
	if maxSteps <= 0 {
		maxSteps = 20000
	}
	now := time.Now()
	return &Session{
		ID:           id,
		ComputerSide: computerSide,
		CreatedAt:    now,
		LastActivity: now,
		table:        t,
		state:        NewGameState(t, opts),
		interval:     interval,
		maxSteps:     maxSteps,
	}
}

// SetHooks replaces the session's output hooks.
func (s *Session) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Synchronous reports whether the caller drives the integrator.
func (s *Session) Synchronous() bool { return s.interval <= 0 }

// Table returns the static geometry.
func (s *Session) Table() *Table { return s.table }

// State returns a copy of the current game state.
func (s *Session) State() GameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Restore replaces the state, e.g. from a snapshot. A snapshot taken mid-shot
// resumes its shot loop with the ids pocketed so far in that shot.
func (s *Session) Restore(st GameState, pocketed []int) {
	s.mu.Lock()
	s.state = st.Clone()
	s.flying = st.Phase == PhaseInFlight
	s.steps = 0
	s.pocketed = nil
	if s.flying {
		s.pocketed = append([]int(nil), pocketed...)
	}
	s.gen++
	gen := s.gen
	resume := s.flying && s.interval > 0
	s.mu.Unlock()
	if resume {
		go s.run(gen)
	}
}

// Touch records activity on the table.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// Idle returns how long the table has been untouched.
func (s *Session) Idle() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.LastActivity)
}

// Aim points the cue toward a pointer position. Ignored unless aiming.
func (s *Session) Aim(pointer Vec2) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsAiming {
		return
	}
	if cue := s.state.CueBall(); cue != nil && !cue.Pocketed {
		s.cue.Aim(cue.Position, pointer)
	}
}

// ChargeStart begins charging power. Ignored unless aiming.
func (s *Session) ChargeStart(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsAiming {
		return
	}
	s.cue.Press(at)
}

// ChargeCancel abandons a charge with no state change.
func (s *Session) ChargeCancel() {
	s.mu.Lock()
	s.cue.Cancel()
	s.mu.Unlock()
}

// ChargeRelease fires the charged shot. It returns false when the release was
// too weak or the table is not aiming; both are silent no-ops.
func (s *Session) ChargeRelease(at time.Time) bool {
	s.mu.Lock()
	angle, power, ok := s.cue.Release(at)
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.Shoot(angle, power) == nil
}

// Cue returns the current aim angle and charge level.
func (s *Session) Cue(at time.Time) (angle, power float64, charging bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cue.Angle, s.cue.Power(at), s.cue.Charging()
}

// Shoot applies one impulse to the cue ball and starts the shot loop.
// Rejected input leaves the state untouched and returns the reason.
func (s *Session) Shoot(angle, power float64) error {
	s.mu.Lock()
	next, strike, err := Shoot(s.state, angle, power)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.cue.Cancel()
	s.steps = 0
	s.pocketed = s.pocketed[:0]
	s.shotAngle = angle
	s.shotPower = power
	s.flying = true
	s.gen++
	gen := s.gen
	s.LastActivity = time.Now()
	hooks := s.hooks
	loop := s.interval > 0
	s.mu.Unlock()

	notify(hooks, s.ID, strike)
	if loop {
		go s.run(gen)
	}
	return nil
}

// Reset discards everything and re-racks. A shot in flight is abandoned.
func (s *Session) Reset() GameState {
	s.mu.Lock()
	s.state = s.state.Reset(s.table)
	s.cue = Cue{}
	s.flying = false
	s.gen++
	s.steps = 0
	s.pocketed = nil
	s.LastActivity = time.Now()
	st := s.state.Clone()
	s.mu.Unlock()
	log.Printf("[TABLE] Table %s reset", s.ID)
	return st
}

// Tick advances an in-flight shot by one step. When the balls come to rest the
// shot is resolved and its outcome returned. done is true when no shot is in
// flight after the call.
func (s *Session) Tick() (outcome *ShotOutcome, done bool) {
	s.mu.Lock()
	return s.advance()
}

// tickGen is Tick for the shot loop of generation gen. A loop whose shot was
// reset or replaced finds out under the same lock that would step it.
func (s *Session) tickGen(gen uint64) (outcome *ShotOutcome, done bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil, true
	}
	return s.advance()
}

// advance runs with s.mu held and releases it before calling hooks.
func (s *Session) advance() (outcome *ShotOutcome, done bool) {
	if !s.flying {
		s.mu.Unlock()
		return nil, true
	}

	balls, rep := Step(s.table, s.state.Balls)
	s.state.Balls = balls
	s.steps++
	s.pocketed = append(s.pocketed, rep.Pocketed...)

	stopped := rep.AllStopped
	if !stopped && s.steps >= s.maxSteps {
		log.Printf("[PHYSICS] Table %s shot exceeded %d steps; force-stopping", s.ID, s.maxSteps)
		for i := range s.state.Balls {
			s.state.Balls[i].Velocity = Vec2{}
		}
		stopped = true
	}

	hooks := s.hooks
	frame := CloneBalls(s.state.Balls)
	var st GameState
	if stopped {
		var out ShotOutcome
		s.state, out = Resolve(s.table, s.state, s.pocketed)
		out.Angle = s.shotAngle
		out.Power = s.shotPower
		outcome = &out
		s.flying = false
		st = s.state.Clone()
		log.Printf("[RULES] Table %s shot %d side=%d seat=%d pocketed=%v foul=%t switched=%t game_over=%t steps=%d",
			s.ID, out.ShotNumber, out.Side, out.Seat, out.Pocketed, out.Foul, out.TurnSwitched, out.GameOver, s.steps)
	}
	s.mu.Unlock()

	for _, ev := range rep.Events {
		notify(hooks, s.ID, ev)
	}
	if hooks.OnFrame != nil {
		hooks.OnFrame(s.ID, frame)
	}
	if outcome != nil {
		for _, ev := range outcome.Events {
			notify(hooks, s.ID, ev)
		}
		if hooks.OnShot != nil {
			hooks.OnShot(s.ID, *outcome, st)
		}
	}
	return outcome, outcome != nil
}

// RunToRest steps synchronously until the shot resolves.
func (s *Session) RunToRest() *ShotOutcome {
	for {
		out, done := s.Tick()
		if done {
			return out
		}
	}
}

// Plan returns the local planner's shot for the side on turn.
func (s *Session) Plan() ShotPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PlanShot(s.table, s.state.Balls, s.state.Side(s.state.CurrentPlayer).Group)
}

// ComputerToMove reports whether the computer side is on turn and aiming.
func (s *Session) ComputerToMove() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ComputerSide != NoPlayer && s.state.CurrentPlayer == s.ComputerSide && s.state.IsAiming && !s.state.GameOver
}

// halt abandons any in-flight shot loop without touching the state.
func (s *Session) halt() {
	s.mu.Lock()
	s.gen++
	s.flying = false
	s.mu.Unlock()
}

func (s *Session) run(gen uint64) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for range ticker.C {
		if _, done := s.tickGen(gen); done {
			return
		}
	}
}

func notify(h Hooks, tableID string, ev Event) {
	if h.Sink != nil {
		h.Sink.Notify(tableID, ev)
	}
}
