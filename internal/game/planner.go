package game

import (
	"fmt"
	"math"
)

// Planner weights.
const (
	plannerBase           = 1000.0
	plannerTargetWeight   = 0.5
	plannerBlockedPenalty = 500.0
	plannerAlignWeight    = 100.0
	plannerBlockMargin    = 1.2
	plannerPowerPerUnit   = 0.15
	plannerPowerBase      = 30.0
	plannerMinPower       = 25.0
	plannerMaxPower       = 80.0
	plannerFallbackConf   = 0.3
	plannerFallbackPower  = 50.0
)

// ShotPlan is a computer shot: where to aim and how hard, plus why.
type ShotPlan struct {
	Angle        float64 `json:"angle"`
	Power        float64 `json:"power"`
	TargetBallID int     `json:"targetBallId"`
	PocketID     int     `json:"pocketId"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	Source       string  `json:"source"`
}

// Valid reports whether the plan can be fired as-is.
func (p ShotPlan) Valid() bool {
	return !math.IsNaN(p.Angle) && !math.IsInf(p.Angle, 0) &&
		!math.IsNaN(p.Power) && p.Power >= 0 && p.Power <= MaxPower &&
		p.TargetBallID >= 0 && p.TargetBallID < NumBalls &&
		p.Confidence >= 0 && p.Confidence <= 1
}

// EligibleTargets returns the balls the side holding group may legally aim at:
// its own group while any remain, the 8-ball once the group is cleared, and
// any group ball while the table is open.
func EligibleTargets(balls []Ball, group Group) []Ball {
	var out []Ball
	if group.Assigned() && GroupCleared(balls, group) {
		for _, b := range balls {
			if b.ID == EightBallID && !b.Pocketed {
				out = append(out, b)
			}
		}
		return out
	}
	for _, b := range balls {
		if b.Pocketed || b.ID == CueBallID || b.ID == EightBallID {
			continue
		}
		if group.Assigned() && GroupOf(b.ID) != group {
			continue
		}
		out = append(out, b)
	}
	return out
}

// PlanShot scores every (eligible target, pocket) pair and returns the best.
// The cue ball is aimed at the ghost-ball point behind the target so the
// target leaves along the line to the pocket.
func PlanShot(t *Table, balls []Ball, group Group) ShotPlan {
	var cue *Ball
	for i := range balls {
		if balls[i].ID == CueBallID && !balls[i].Pocketed {
			cue = &balls[i]
		}
	}
	if cue == nil {
		return ShotPlan{Power: plannerFallbackPower, Reasoning: "no cue ball on the table", Source: "local"}
	}

	targets := EligibleTargets(balls, group)
	if len(targets) == 0 {
		return fallbackPlan(cue, balls)
	}

	best := ShotPlan{}
	bestScore := math.Inf(-1)
	for _, target := range targets {
		toTarget := target.Position.Minus(cue.Position)
		distTarget := toTarget.Magnitude()
		if distTarget == 0 {
			continue
		}
		for _, pocket := range t.Pockets {
			toPocket := pocket.Position.Minus(target.Position)
			distPocket := toPocket.Magnitude()

			score := plannerBase - distPocket - plannerTargetWeight*distTarget
			blocked := PathBlocked(cue, &target, balls)
			if blocked {
				score -= plannerBlockedPenalty
			}
			cut := angleDiff(toTarget.Angle(), toPocket.Angle())
			score += (math.Pi - cut) * plannerAlignWeight

			if score <= bestScore {
				continue
			}
			bestScore = score

			ghost := target.Position.Minus(toPocket.Normalize().Times(target.Radius + cue.Radius))
			aim := ghost.Minus(cue.Position)
			if aim.IsZero() {
				aim = toTarget
			}
			reason := fmt.Sprintf("ball %d to pocket %d, cut %.0f deg", target.ID, pocket.ID, cut*180/math.Pi)
			if blocked {
				reason += ", path blocked"
			}
			best = ShotPlan{
				Angle:        aim.Angle(),
				Power:        plannerPower(distTarget),
				TargetBallID: target.ID,
				PocketID:     pocket.ID,
				Confidence:   clamp((score+plannerBlockedPenalty)/(plannerBase+plannerBlockedPenalty), 0, 1),
				Reasoning:    reason,
				Source:       "local",
			}
		}
	}
	if math.IsInf(bestScore, -1) {
		return fallbackPlan(cue, balls)
	}
	return best
}

// PathBlocked reports whether any live ball other than cue and target sits on
// the straight line between them.
func PathBlocked(cue, target *Ball, balls []Ball) bool {
	line := target.Position.Minus(cue.Position)
	dist := line.Magnitude()
	if dist == 0 {
		return false
	}
	dir := line.Times(1 / dist)
	for i := range balls {
		b := &balls[i]
		if b.Pocketed || b.ID == cue.ID || b.ID == target.ID {
			continue
		}
		rel := b.Position.Minus(cue.Position)
		along := rel.Dot(dir)
		if along < 0 || along > dist {
			continue
		}
		perp := math.Abs(rel.Cross(dir))
		if perp < (cue.Radius+b.Radius)*plannerBlockMargin {
			return true
		}
	}
	return false
}

func plannerPower(dist float64) float64 {
	return clamp(dist*plannerPowerPerUnit+plannerPowerBase, plannerMinPower, plannerMaxPower)
}

// fallbackPlan aims straight at the nearest live object ball.
func fallbackPlan(cue *Ball, balls []Ball) ShotPlan {
	var nearest *Ball
	bestDist := math.Inf(1)
	for i := range balls {
		b := &balls[i]
		if b.Pocketed || b.ID == CueBallID {
			continue
		}
		if d := b.Position.Distance(cue.Position); d > 0 && d < bestDist {
			nearest, bestDist = b, d
		}
	}
	if nearest == nil {
		return ShotPlan{Power: plannerFallbackPower, Reasoning: "no ball to aim at", Source: "local"}
	}
	return ShotPlan{
		Angle:        nearest.Position.Minus(cue.Position).Angle(),
		Power:        plannerPower(bestDist),
		TargetBallID: nearest.ID,
		PocketID:     -1,
		Confidence:   plannerFallbackConf,
		Reasoning:    fmt.Sprintf("no eligible target, nudging nearest ball %d", nearest.ID),
		Source:       "local",
	}
}
