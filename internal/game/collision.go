package game

// CollideAll tests every unordered pair of live balls in ascending id order and
// resolves overlaps in place. Each pair is resolved with the velocities current
// at the time it is visited, so earlier pairs in the same step can influence
// later ones.
func CollideAll(balls []Ball) []Event {
	var events []Event
	for i := 0; i < len(balls); i++ {
		if balls[i].Pocketed {
			continue
		}
		for j := i + 1; j < len(balls); j++ {
			if balls[j].Pocketed {
				continue
			}
			a, b := &balls[i], &balls[j]
			if a.ID > b.ID {
				a, b = b, a
			}
			closing, ok := ResolvePair(a, b)
			if ok && closing > 0 {
				events = append(events, Event{Kind: EventBallHit, BallID: a.ID, TargetID: b.ID, Intensity: intensity(closing)})
			}
		}
	}
	return events
}

// Overlapping reports whether two balls interpenetrate.
func Overlapping(a, b *Ball) bool {
	r := a.Radius + b.Radius
	return a.Position.Minus(b.Position).MagnitudeSquared() < r*r
}

// ResolvePair resolves an overlapping pair. The normal n points from a to b and
// the closing speed is (va - vb)·n. When the pair is closing, an equal-mass
// impulse with BallRestitution is exchanged along n; tangential components are
// untouched. Overlapping pairs are always pushed apart by half the overlap
// each. Coincident centers have no normal and are skipped.
//
// Returns the pre-collision closing speed and whether the pair overlapped.
func ResolvePair(a, b *Ball) (float64, bool) {
	d := b.Position.Minus(a.Position)
	dist := d.Magnitude()
	if dist == 0 || dist >= a.Radius+b.Radius {
		return 0, false
	}
	n := d.Times(1 / dist)

	closing := a.Velocity.Minus(b.Velocity).Dot(n)
	if closing > 0 {
		j := (1 + BallRestitution) * closing / 2
		a.Velocity = a.Velocity.Minus(n.Times(j))
		b.Velocity = b.Velocity.Plus(n.Times(j))
	}

	overlap := (a.Radius + b.Radius - dist) / 2
	a.Position = a.Position.Minus(n.Times(overlap))
	b.Position = b.Position.Plus(n.Times(overlap))

	return closing, true
}

// CapturePocket drops b into the first pocket whose capture radius contains its
// center. A captured ball is marked pocketed and stops dead.
func CapturePocket(t *Table, b *Ball) (Pocket, bool) {
	if b.Pocketed {
		return Pocket{}, false
	}
	for _, p := range t.Pockets {
		if b.Position.Minus(p.Position).MagnitudeSquared() < p.Radius*p.Radius {
			b.Pocketed = true
			b.Velocity = Vec2{}
			return p, true
		}
	}
	return Pocket{}, false
}
