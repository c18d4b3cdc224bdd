package game

// Pocket is one of the six capture holes. Capture is center-based: a ball drops
// once its center is within Radius of Position.
type Pocket struct {
	ID       int     `json:"id"`
	Position Vec2    `json:"position"`
	Radius   float64 `json:"radius"`
}

// Table holds the static table geometry. It never changes after construction.
type Table struct {
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Inset      float64  `json:"inset"`
	BallRadius float64  `json:"ball_radius"`
	Pockets    []Pocket `json:"pockets"`
	CueStart   Vec2     `json:"cue_start"`
}

// rackPattern is the row-major id layout of the triangle, apex first.
var rackPattern = [][]int{
	{1},
	{9, 2},
	{3, 8, 10},
	{11, 4, 5, 12},
	{6, 13, 14, 7, 15},
}

// NewStandardTable creates the standard 800x400 table.
func NewStandardTable() *Table {
	return NewTable(TableWidth, TableHeight)
}

// NewTable creates a table with the given outer dimensions. Corner pockets sit
// on the interior rail corners and the two mid pockets sit just inside the long
// rails, so every pocket is reachable by a ball resting against a cushion.
func NewTable(width, height float64) *Table {
	in := RailInset
	midOffset := 4.0
	return &Table{
		Width:      width,
		Height:     height,
		Inset:      in,
		BallRadius: BallRadius,
		Pockets: []Pocket{
			{ID: 0, Position: NewVec2(in, in), Radius: PocketRadius},
			{ID: 1, Position: NewVec2(width/2, in-midOffset), Radius: PocketRadius},
			{ID: 2, Position: NewVec2(width-in, in), Radius: PocketRadius},
			{ID: 3, Position: NewVec2(in, height-in), Radius: PocketRadius},
			{ID: 4, Position: NewVec2(width/2, height-in+midOffset), Radius: PocketRadius},
			{ID: 5, Position: NewVec2(width-in, height-in), Radius: PocketRadius},
		},
		CueStart: NewVec2(width*CueStartFactor, height/2),
	}
}

// MinX etc. bound the playable interior for ball centers.
func (t *Table) MinX() float64 { return t.Inset + t.BallRadius }
func (t *Table) MaxX() float64 { return t.Width - t.Inset - t.BallRadius }
func (t *Table) MinY() float64 { return t.Inset + t.BallRadius }
func (t *Table) MaxY() float64 { return t.Height - t.Inset - t.BallRadius }

// Contains reports whether p is a legal center for a resting ball.
func (t *Table) Contains(p Vec2) bool {
	return p.X >= t.MinX() && p.X <= t.MaxX() && p.Y >= t.MinY() && p.Y <= t.MaxY()
}

// Rack returns all 16 balls in id order: the cue ball at its start point and
// the 15 object balls in a 5-row triangle whose apex points at the cue ball.
func (t *Table) Rack() []Ball {
	balls := make([]Ball, NumBalls)
	balls[CueBallID] = NewBall(CueBallID, t.CueStart, t.BallRadius)

	spacing := t.BallRadius * RackSpacingFactor
	apex := NewVec2(t.Width*RackApexFactor, t.Height/2)
	for row, ids := range rackPattern {
		x := apex.X + float64(row)*spacing*RackRowFactor
		for col, id := range ids {
			y := apex.Y + (float64(col)-float64(len(ids)-1)/2)*spacing
			balls[id] = NewBall(id, NewVec2(x, y), t.BallRadius)
		}
	}
	return balls
}

// FreeSpotNear returns p if no live ball (other than skip) overlaps it,
// otherwise the first free point stepping toward the left rail, then the right.
func (t *Table) FreeSpotNear(p Vec2, balls []Ball, skip int) Vec2 {
	free := func(c Vec2) bool {
		for i := range balls {
			b := &balls[i]
			if b.ID == skip || b.Pocketed {
				continue
			}
			if b.Position.Distance(c) < b.Radius+t.BallRadius {
				return false
			}
		}
		return true
	}
	if free(p) {
		return p
	}
	step := t.BallRadius / 2
	for x := p.X - step; x >= t.MinX(); x -= step {
		if c := NewVec2(x, p.Y); free(c) {
			return c
		}
	}
	for x := p.X + step; x <= t.MaxX(); x += step {
		if c := NewVec2(x, p.Y); free(c) {
			return c
		}
	}
	return p
}
