package game

// Table and physics constants. Units are table units and table units per step.
const (
	TableWidth  = 800.0
	TableHeight = 400.0
	RailWidth   = 60.0
	RailInset   = RailWidth / 2

	BallRadius   = 12.0
	PocketRadius = 22.0
	NumBalls     = 16 // 0=cue, 1-7=solids, 8=eight, 9-15=stripes

	Friction           = 0.985
	MinVelocity        = 0.1
	CushionRestitution = 0.8
	BallRestitution    = 0.95
	maxSubsteps        = 64

	// Shot input
	MaxPower       = 100.0
	MinShotPower   = 5.0
	ShotScale      = 0.3
	ChargeStep     = 2.0
	ChargeInterval = 30 // ms per ChargeStep

	// Rack layout
	RackSpacingFactor = 2.1
	RackRowFactor     = 0.866
	CueStartFactor    = 0.25
	RackApexFactor    = 0.7

	CueBallID   = 0
	EightBallID = 8
)

// MaxBallSpeed is the cue ball speed produced by a full-power shot.
const MaxBallSpeed = MaxPower * ShotScale
