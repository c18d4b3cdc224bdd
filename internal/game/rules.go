package game

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var (
	ErrNotAiming = errors.New("table is not accepting a shot")
	ErrGameOver  = errors.New("game is over")
	ErrNoCueBall = errors.New("cue ball is not on the table")
	ErrWeakShot  = errors.New("shot power below threshold")
	ErrBadShot   = errors.New("shot angle or power is not a finite number")
)

// ShotOutcome is the result of resolving one completed shot.
type ShotOutcome struct {
	ShotNumber    int      `json:"shot_number"`
	Side          PlayerID `json:"side"`
	Seat          int      `json:"seat"`
	Angle         float64  `json:"angle"`
	Power         float64  `json:"power"`
	Pocketed      []int    `json:"pocketed"`
	Foul          bool     `json:"foul"`
	TurnSwitched  bool     `json:"turn_switched"`
	GroupAssigned bool     `json:"group_assigned"`
	GameOver      bool     `json:"game_over"`
	Winner        PlayerID `json:"winner,omitempty"`
	Events        []Event  `json:"events,omitempty"`
}

// Shoot validates a shot and applies it to the cue ball. The returned state is
// in flight. prev is not modified. Power above MaxPower is clamped.
func Shoot(prev GameState, angle, power float64) (GameState, Event, error) {
	if prev.GameOver {
		return prev, Event{}, ErrGameOver
	}
	if !prev.IsAiming {
		return prev, Event{}, ErrNotAiming
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) || math.IsNaN(power) || math.IsInf(power, 0) {
		return prev, Event{}, ErrBadShot
	}
	if power <= MinShotPower {
		return prev, Event{}, ErrWeakShot
	}
	power = math.Min(power, MaxPower)

	next := prev.Clone()
	cue := next.CueBall()
	if cue == nil || cue.Pocketed {
		return prev, Event{}, ErrNoCueBall
	}
	cue.Velocity = FromAngle(angle, power*ShotScale)

	next.IsAiming = false
	next.Phase = PhaseInFlight
	next.Message = "Balls moving..."

	ev := Event{
		Kind:      EventCueStrike,
		BallID:    CueBallID,
		Intensity: power / MaxPower,
		Side:      next.CurrentPlayer,
		Seat:      next.CurrentSeat,
	}
	return next, ev, nil
}

// Resolve applies the 8-ball rules to a state whose balls have come to rest.
// pocketed lists every ball captured during the shot in any order; it is
// normalized to ascending id. Group balls are processed first and the 8-ball
// last, against the post-shot table.
//
// The previous shot's foul flag is cleared on entry, so a foul stays visible
// while the next shooter aims and is consumed by the next resolution.
func Resolve(t *Table, prev GameState, pocketed []int) (GameState, ShotOutcome) {
	next := prev.Clone()
	next.Foul = false

	shooter := prev.CurrentPlayer
	opponent := shooter.Other()
	// A cue ball left off the table is a scratch even if the list lost it.
	if cue := next.CueBall(); cue != nil && cue.Pocketed {
		pocketed = append(pocketed[:len(pocketed):len(pocketed)], CueBallID)
	}
	ids := normalizeIDs(pocketed)

	out := ShotOutcome{
		ShotNumber: prev.ShotNumber + 1,
		Side:       shooter,
		Seat:       prev.CurrentSeat,
		Pocketed:   ids,
	}
	next.ShotNumber = out.ShotNumber

	eight := false
	for _, id := range ids {
		if id == CueBallID {
			next.Foul = true
		}
		if id == EightBallID {
			eight = true
		}
	}

	if next.Foul {
		respawnCue(t, &next)
		next.Message = "Foul! Cue ball pocketed"
		out.Events = append(out.Events, Event{Kind: EventFoul, BallID: CueBallID, Side: shooter, Seat: prev.CurrentSeat})
	}

	for _, id := range ids {
		g := GroupOf(id)
		if !g.Assigned() {
			continue
		}
		if next.Policy == PolicyOpenTable && !next.Side(shooter).Group.Assigned() && !next.Foul {
			next.Side(shooter).Group = g
			next.Side(opponent).Group = g.Opposite()
			out.GroupAssigned = true
		}
		owner := next.OwnerOf(g)
		if owner == NoPlayer {
			owner = shooter
		}
		next.Side(owner).Score++
	}
	if out.GroupAssigned {
		// balls credited while the table was open may belong to either side
		for _, p := range []PlayerID{Player1, Player2} {
			side := next.Side(p)
			side.Score = pottedIn(next.Balls, ids, side.Group)
		}
	}

	if eight {
		winner := opponent
		early := true
		if GroupCleared(next.Balls, next.Side(shooter).Group) {
			winner = shooter
			early = false
		}
		next.GameOver = true
		next.Winner = winner
		next.IsAiming = false
		next.Phase = PhaseGameOver
		next.Message = fmt.Sprintf("Player %d wins!", winner)
		if early {
			next.Message += " (8-ball pocketed early)"
		}
		out.Foul = next.Foul
		out.GameOver = true
		out.Winner = winner
		out.Events = append(out.Events, Event{Kind: EventGameWon, Side: winner, Message: next.Message})
		return next, out
	}

	out.Foul = next.Foul
	if len(ids) == 0 || next.Foul {
		next.advanceTurn()
		out.TurnSwitched = true
		if !next.Foul {
			next.Message = fmt.Sprintf("%s - your turn!", next.CurrentName())
		}
		out.Events = append(out.Events, Event{Kind: EventTurn, Side: next.CurrentPlayer, Seat: next.CurrentSeat})
	} else {
		next.Message = fmt.Sprintf("%s - shoot again!", next.CurrentName())
	}

	next.IsAiming = true
	next.Phase = PhaseAiming
	return next, out
}

// advanceTurn hands the table to the other side and picks that side's next
// seat in rotation.
func (s *GameState) advanceTurn() {
	s.CurrentPlayer = s.CurrentPlayer.Other()
	side := s.Side(s.CurrentPlayer)
	if len(side.Seats) == 0 {
		return
	}
	s.CurrentSeat = side.Seats[side.Rotation%len(side.Seats)]
	side.Rotation = (side.Rotation + 1) % len(side.Seats)
}

// respawnCue puts a pocketed cue ball back on its start point, or the nearest
// free spot to it, at rest.
func respawnCue(t *Table, s *GameState) {
	cue := s.CueBall()
	if cue == nil {
		return
	}
	cue.Pocketed = false
	cue.Velocity = Vec2{}
	cue.Position = t.FreeSpotNear(t.CueStart, s.Balls, CueBallID)
}

// pottedIn counts balls of g that are off the table or were pocketed this shot.
func pottedIn(balls []Ball, ids []int, g Group) int {
	n := 0
	for i := range balls {
		if GroupOf(balls[i].ID) != g {
			continue
		}
		if balls[i].Pocketed || slices.Contains(ids, balls[i].ID) {
			n++
		}
	}
	return n
}

func normalizeIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= NumBalls || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
