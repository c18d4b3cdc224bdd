package game

import (
	"encoding/json"
	"fmt"
)

// PlayerID identifies a side. Rule ownership (group, score, win) is per side.
type PlayerID int

const (
	NoPlayer PlayerID = 0
	Player1  PlayerID = 1
	Player2  PlayerID = 2
)

// Other returns the opposing side.
func (p PlayerID) Other() PlayerID {
	if p == Player1 {
		return Player2
	}
	return Player1
}

// Group is a side's assigned ball group. GroupNone marshals as JSON null.
type Group string

const (
	GroupNone    Group = ""
	GroupSolids  Group = "solid"
	GroupStripes Group = "striped"
)

func (g Group) Assigned() bool { return g == GroupSolids || g == GroupStripes }

// Opposite returns the other group; GroupNone stays GroupNone.
func (g Group) Opposite() Group {
	switch g {
	case GroupSolids:
		return GroupStripes
	case GroupStripes:
		return GroupSolids
	}
	return GroupNone
}

func (g Group) MarshalJSON() ([]byte, error) {
	if !g.Assigned() {
		return []byte("null"), nil
	}
	return json.Marshal(string(g))
}

func (g *Group) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*g = GroupNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch Group(s) {
	case GroupNone, GroupSolids, GroupStripes:
		*g = Group(s)
		return nil
	}
	return fmt.Errorf("unknown ball group %q", s)
}

// GroupSize is the number of balls in each group.
const GroupSize = 7

// GroupOf returns the group a ball id belongs to. Cue and 8-ball have none.
func GroupOf(id int) Group {
	if id >= 1 && id <= 7 {
		return GroupSolids
	}
	if id >= 9 && id <= 15 {
		return GroupStripes
	}
	return GroupNone
}

// GroupPolicy decides how sides receive their group.
type GroupPolicy string

const (
	// PolicyOpenTable assigns groups from the first legally pocketed group ball.
	PolicyOpenTable GroupPolicy = "open_table"
	// PolicyLegacyPreset never derives groups from play; they stay as created.
	PolicyLegacyPreset GroupPolicy = "legacy_preset"
)

// ParseGroupPolicy maps a config string to a policy, defaulting to open table.
func ParseGroupPolicy(s string) GroupPolicy {
	if GroupPolicy(s) == PolicyLegacyPreset {
		return PolicyLegacyPreset
	}
	return PolicyOpenTable
}

// Phase is the shot lifecycle state.
type Phase string

const (
	PhaseAiming   Phase = "aiming"
	PhaseInFlight Phase = "in_flight"
	PhaseGameOver Phase = "game_over"
)

// Seat is a physical player at the table. Seats alternate sides.
type Seat struct {
	Number int      `json:"number"`
	Name   string   `json:"name"`
	Side   PlayerID `json:"side"`
}

// SideState is the rule state owned by one side.
type SideState struct {
	Group    Group `json:"group"`
	Score    int   `json:"score"`
	Seats    []int `json:"seats"`
	Rotation int   `json:"rotation"` // index of the side's next seat to play
}

// Options configure a new game.
type Options struct {
	Seats        int         `json:"seats"`
	Names        []string    `json:"names,omitempty"`
	Policy       GroupPolicy `json:"group_policy"`
	Player1Group Group       `json:"player1_group"` // preset groups, legacy policy only
	Player2Group Group       `json:"player2_group"`
}

// normalize fills defaults and bounds the seat count to 2..4.
func (o Options) normalize() Options {
	if o.Seats < 2 {
		o.Seats = 2
	}
	if o.Seats > 4 {
		o.Seats = 4
	}
	if o.Policy == "" {
		o.Policy = PolicyOpenTable
	}
	if o.Policy != PolicyLegacyPreset {
		o.Player1Group, o.Player2Group = GroupNone, GroupNone
	}
	return o
}

// GameState is the complete rule and ball state of one table.
type GameState struct {
	Balls         []Ball      `json:"balls"`
	CurrentPlayer PlayerID    `json:"current_player"`
	CurrentSeat   int         `json:"current_seat"`
	Seats         []Seat      `json:"seats"`
	Player1       SideState   `json:"player1"`
	Player2       SideState   `json:"player2"`
	IsAiming      bool        `json:"is_aiming"`
	Phase         Phase       `json:"phase"`
	GameOver      bool        `json:"game_over"`
	Winner        PlayerID    `json:"winner,omitempty"`
	Foul          bool        `json:"foul"`
	Message       string      `json:"message"`
	ShotNumber    int         `json:"shot_number"`
	Policy        GroupPolicy `json:"group_policy"`
	Options       Options     `json:"options"`
}

// NewGameState racks a fresh game. Seat 1 (side 1) breaks.
func NewGameState(t *Table, opts Options) GameState {
	opts = opts.normalize()

	s := GameState{
		Balls:         t.Rack(),
		CurrentPlayer: Player1,
		CurrentSeat:   1,
		IsAiming:      true,
		Phase:         PhaseAiming,
		Policy:        opts.Policy,
		Options:       opts,
		Player1:       SideState{Group: opts.Player1Group},
		Player2:       SideState{Group: opts.Player2Group},
	}

	for n := 1; n <= opts.Seats; n++ {
		side := Player1
		if n%2 == 0 {
			side = Player2
		}
		name := fmt.Sprintf("Player %d", n)
		if n-1 < len(opts.Names) && opts.Names[n-1] != "" {
			name = opts.Names[n-1]
		}
		s.Seats = append(s.Seats, Seat{Number: n, Name: name, Side: side})
		ss := s.Side(side)
		ss.Seats = append(ss.Seats, n)
	}
	// seat 1 is on turn, so side 1's rotation already points past it
	s.Player1.Rotation = 1

	s.Message = fmt.Sprintf("%s - break!", s.seatName(1))
	return s
}

// Reset discards all state and re-racks with the same options.
func (s GameState) Reset(t *Table) GameState {
	return NewGameState(t, s.Options)
}

// Clone returns a deep copy.
func (s GameState) Clone() GameState {
	c := s
	c.Balls = CloneBalls(s.Balls)
	c.Seats = append([]Seat(nil), s.Seats...)
	c.Player1.Seats = append([]int(nil), s.Player1.Seats...)
	c.Player2.Seats = append([]int(nil), s.Player2.Seats...)
	c.Options.Names = append([]string(nil), s.Options.Names...)
	return c
}

// Side returns the rule state of p. Any value other than Player2 maps to side 1.
func (s *GameState) Side(p PlayerID) *SideState {
	if p == Player2 {
		return &s.Player2
	}
	return &s.Player1
}

// OwnerOf returns the side holding group g, or NoPlayer.
func (s *GameState) OwnerOf(g Group) PlayerID {
	if !g.Assigned() {
		return NoPlayer
	}
	if s.Player1.Group == g {
		return Player1
	}
	if s.Player2.Group == g {
		return Player2
	}
	return NoPlayer
}

// CueBall returns the cue ball, or nil when the rack has none.
func (s *GameState) CueBall() *Ball {
	for i := range s.Balls {
		if s.Balls[i].ID == CueBallID {
			return &s.Balls[i]
		}
	}
	return nil
}

// Ball returns the ball with the given id, or nil.
func (s *GameState) Ball(id int) *Ball {
	for i := range s.Balls {
		if s.Balls[i].ID == id {
			return &s.Balls[i]
		}
	}
	return nil
}

// GroupCleared reports whether every ball of g is pocketed.
func GroupCleared(balls []Ball, g Group) bool {
	if !g.Assigned() {
		return false
	}
	for i := range balls {
		if GroupOf(balls[i].ID) == g && !balls[i].Pocketed {
			return false
		}
	}
	return true
}

// Remaining counts un-pocketed balls of g.
func Remaining(balls []Ball, g Group) int {
	n := 0
	for i := range balls {
		if GroupOf(balls[i].ID) == g && !balls[i].Pocketed {
			n++
		}
	}
	return n
}

func (s *GameState) seatName(n int) string {
	for _, seat := range s.Seats {
		if seat.Number == n {
			return seat.Name
		}
	}
	return fmt.Sprintf("Player %d", n)
}

// CurrentName is the display name of the seat on turn.
func (s *GameState) CurrentName() string {
	return s.seatName(s.CurrentSeat)
}
