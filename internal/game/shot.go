package game

import (
	"math"
	"time"
)

// Cue turns pointer and button input into a shot. The pointer sets the aim
// angle from the cue ball toward the pointer; the shot travels the opposite
// way, as if the player pulls the cue back. Holding the button charges power
// by ChargeStep every ChargeInterval milliseconds up to MaxPower.
//
// A Cue is not safe for concurrent use; the table runner serializes access.
type Cue struct {
	Angle     float64 `json:"angle"`
	charging  bool
	pressedAt time.Time
}

// Aim points the cue from cuePos toward pointer.
func (c *Cue) Aim(cuePos, pointer Vec2) {
	d := pointer.Minus(cuePos)
	if d.IsZero() || !d.IsFinite() {
		return
	}
	c.Angle = d.Angle()
}

// Press starts charging. A second press while charging is ignored.
func (c *Cue) Press(at time.Time) {
	if c.charging {
		return
	}
	c.charging = true
	c.pressedAt = at
}

// Charging reports whether the button is held.
func (c *Cue) Charging() bool { return c.charging }

// Power returns the power accumulated by time at, or 0 when not charging.
func (c *Cue) Power(at time.Time) float64 {
	if !c.charging {
		return 0
	}
	elapsed := at.Sub(c.pressedAt)
	if elapsed < 0 {
		return 0
	}
	ticks := math.Floor(float64(elapsed) / float64(ChargeInterval*time.Millisecond))
	return math.Min(MaxPower, ticks*ChargeStep)
}

// Release ends charging and returns the shot to fire. ok is false when the
// accumulated power does not exceed MinShotPower; such a release is dropped.
func (c *Cue) Release(at time.Time) (angle, power float64, ok bool) {
	if !c.charging {
		return 0, 0, false
	}
	power = c.Power(at)
	c.charging = false
	if power <= MinShotPower {
		return 0, 0, false
	}
	return c.ShotAngle(), power, true
}

// Cancel abandons a charge without shooting.
func (c *Cue) Cancel() {
	c.charging = false
}

// ShotAngle is the direction the cue ball travels when struck.
func (c *Cue) ShotAngle() float64 {
	return c.Angle + math.Pi
}
