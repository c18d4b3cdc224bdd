package game

// EventKind names a notification emitted for audio/visual collaborators.
type EventKind string

const (
	EventWallHit   EventKind = "wall_hit"
	EventBallHit   EventKind = "ball_hit"
	EventPocket    EventKind = "pocket"
	EventCueStrike EventKind = "cue_strike"
	EventFoul      EventKind = "foul"
	EventGameWon   EventKind = "game_won"
	EventTurn      EventKind = "turn"

	// EventTableRemoved tells other instances to drop their copy of a table.
	EventTableRemoved EventKind = "table_removed"
)

// Event is a fire-and-forget notification. The core never reads events back.
type Event struct {
	Kind      EventKind `json:"kind"`
	BallID    int       `json:"ball_id"`
	TargetID  int       `json:"target_id,omitempty"` // other ball, or pocket id
	Intensity float64   `json:"intensity,omitempty"` // 0..1
	Side      PlayerID  `json:"side,omitempty"`
	Seat      int       `json:"seat,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// EventSink receives table events. Implementations must not block the caller.
type EventSink interface {
	Notify(tableID string, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(tableID string, ev Event)

func (f EventSinkFunc) Notify(tableID string, ev Event) { f(tableID, ev) }

// MultiSink fans an event out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Notify(tableID string, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(tableID, ev)
		}
	}
}

// intensity maps an impact speed onto 0..1 relative to a full-power shot.
func intensity(speed float64) float64 {
	return clamp(speed/MaxBallSpeed, 0, 1)
}
