package game

import (
	"math"
	"sort"
)

// Ball is a single pool ball. Radius and Striped never change after creation.
type Ball struct {
	ID       int     `json:"id"`
	Position Vec2    `json:"position"`
	Velocity Vec2    `json:"velocity"`
	Radius   float64 `json:"radius"`
	Striped  bool    `json:"is_striped"`
	Pocketed bool    `json:"is_pocketed"`
}

// NewBall creates a resting, un-pocketed ball.
func NewBall(id int, pos Vec2, radius float64) Ball {
	return Ball{ID: id, Position: pos, Radius: radius, Striped: id >= 9 && id <= 15}
}

// Moving reports whether the ball is live and has any velocity.
func (b *Ball) Moving() bool {
	return !b.Pocketed && !b.Velocity.IsZero()
}

// StepReport describes what happened during one integration step.
type StepReport struct {
	AllStopped bool    `json:"all_stopped"`
	Pocketed   []int   `json:"pocketed,omitempty"` // captured this step, ascending id
	Events     []Event `json:"events,omitempty"`
}

// Step advances every non-pocketed ball by one fixed time-step and returns the
// new ball set. The input slice is left untouched.
//
// Motion is split into sub-steps so that no ball travels more than one radius
// per sub-step; a fast cue ball therefore cannot pass through another ball.
// Each sub-step moves the balls, resolves ball-ball collisions in ascending
// id order, clamps and reflects at the rails, then captures pockets. Friction
// and the rest snap are applied once per step, after the last sub-step.
func Step(t *Table, balls []Ball) ([]Ball, StepReport) {
	next := CloneBalls(balls)
	var rep StepReport

	n := substeps(next)
	inv := 1 / float64(n)
	for k := 0; k < n; k++ {
		for i := range next {
			if next[i].Pocketed {
				continue
			}
			next[i].Position = next[i].Position.Plus(next[i].Velocity.Times(inv))
		}

		rep.Events = append(rep.Events, CollideAll(next)...)

		for i := range next {
			b := &next[i]
			if b.Pocketed {
				continue
			}
			if speed, hit := reflectRails(t, b); hit {
				rep.Events = append(rep.Events, Event{Kind: EventWallHit, BallID: b.ID, Intensity: intensity(speed)})
			}
		}

		for i := range next {
			b := &next[i]
			if b.Pocketed {
				continue
			}
			if p, ok := CapturePocket(t, b); ok {
				rep.Pocketed = append(rep.Pocketed, b.ID)
				rep.Events = append(rep.Events, Event{Kind: EventPocket, BallID: b.ID, TargetID: p.ID})
			}
		}
	}

	for i := range next {
		if next[i].Pocketed {
			continue
		}
		applyFriction(&next[i])
	}

	sort.Ints(rep.Pocketed)
	rep.AllStopped = AllStopped(next)
	return next, rep
}

// substeps returns how many sub-steps keep every live ball's per-sub-step
// travel at or below its radius.
func substeps(balls []Ball) int {
	n := 1
	for i := range balls {
		b := &balls[i]
		if b.Pocketed || b.Radius <= 0 {
			continue
		}
		k := math.Ceil(b.Velocity.Magnitude() / b.Radius)
		if math.IsNaN(k) {
			continue
		}
		if k >= maxSubsteps {
			return maxSubsteps
		}
		if int(k) > n {
			n = int(k)
		}
	}
	return n
}

// AllStopped is true iff every non-pocketed ball has exactly zero velocity.
func AllStopped(balls []Ball) bool {
	for i := range balls {
		if balls[i].Moving() {
			return false
		}
	}
	return true
}

// CloneBalls returns an independent copy of balls.
func CloneBalls(balls []Ball) []Ball {
	out := make([]Ball, len(balls))
	copy(out, balls)
	return out
}

// applyFriction damps a ball's velocity by one step of rolling friction.
// Velocities below MinVelocity on both axes snap to exactly zero so balls come
// to rest.
func applyFriction(b *Ball) {
	b.Velocity = b.Velocity.Times(Friction)
	if math.Abs(b.Velocity.X) < MinVelocity && math.Abs(b.Velocity.Y) < MinVelocity {
		b.Velocity = Vec2{}
	}
}

// reflectRails clamps b into the playable interior. A component heading into
// a rail is negated and damped by CushionRestitution. Returns the normal speed
// of the impact and whether a rail was hit.
func reflectRails(t *Table, b *Ball) (float64, bool) {
	hit := false
	speed := 0.0

	if b.Position.X < t.MinX() {
		b.Position.X = t.MinX()
		if b.Velocity.X < 0 {
			speed = math.Max(speed, -b.Velocity.X)
			b.Velocity.X = -b.Velocity.X * CushionRestitution
			hit = true
		}
	} else if b.Position.X > t.MaxX() {
		b.Position.X = t.MaxX()
		if b.Velocity.X > 0 {
			speed = math.Max(speed, b.Velocity.X)
			b.Velocity.X = -b.Velocity.X * CushionRestitution
			hit = true
		}
	}

	if b.Position.Y < t.MinY() {
		b.Position.Y = t.MinY()
		if b.Velocity.Y < 0 {
			speed = math.Max(speed, -b.Velocity.Y)
			b.Velocity.Y = -b.Velocity.Y * CushionRestitution
			hit = true
		}
	} else if b.Position.Y > t.MaxY() {
		b.Position.Y = t.MaxY()
		if b.Velocity.Y > 0 {
			speed = math.Max(speed, b.Velocity.Y)
			b.Velocity.Y = -b.Velocity.Y * CushionRestitution
			hit = true
		}
	}

	return speed, hit
}

// Simulate steps until every ball is at rest or maxSteps is reached, and
// returns the final balls plus every ball pocketed along the way. Used by the
// planner tests and the headless self-play runner; the table runner steps one
// frame at a time instead.
func Simulate(t *Table, balls []Ball, maxSteps int) ([]Ball, []int, int) {
	var pocketed []int
	cur := balls
	steps := 0
	for steps < maxSteps {
		var rep StepReport
		cur, rep = Step(t, cur)
		steps++
		pocketed = append(pocketed, rep.Pocketed...)
		if rep.AllStopped {
			break
		}
	}
	return cur, pocketed, steps
}
