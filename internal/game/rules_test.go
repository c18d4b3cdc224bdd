package game

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// setupGroups returns a fresh two-seat game where side 1 holds solids and side
// 2 stripes, with the given balls already pocketed.
func setupGroups(table *Table, pocketed ...int) GameState {
	st := NewGameState(table, Options{Seats: 2})
	st.Player1.Group = GroupSolids
	st.Player2.Group = GroupStripes
	for _, id := range pocketed {
		st.Ball(id).Pocketed = true
	}
	return st
}

func TestEightBallWinWithGroupCleared(t *testing.T) {
	table := NewStandardTable()
	st := setupGroups(table, 1, 2, 3, 4, 5, 6, 7, 8)

	next, out := Resolve(table, st, []int{8})

	if !next.GameOver || next.Winner != Player1 {
		t.Fatalf("gameOver=%t winner=%d, want true/1", next.GameOver, next.Winner)
	}
	if !out.GameOver || out.Winner != Player1 {
		t.Errorf("outcome gameOver=%t winner=%d", out.GameOver, out.Winner)
	}
	if next.IsAiming || next.Phase != PhaseGameOver {
		t.Errorf("finished game should not accept input (aiming=%t phase=%s)", next.IsAiming, next.Phase)
	}
	if next.Player1.Score != st.Player1.Score {
		t.Errorf("8-ball must not be scored: %d -> %d", st.Player1.Score, next.Player1.Score)
	}
}

func TestEightBallEarlyLoses(t *testing.T) {
	table := NewStandardTable()
	st := setupGroups(table, 1, 2, 3, 4, 5, 6, 8) // 7 still on the table

	next, _ := Resolve(table, st, []int{8})

	if !next.GameOver || next.Winner != Player2 {
		t.Fatalf("gameOver=%t winner=%d, want true/2", next.GameOver, next.Winner)
	}
}

func TestEightBallWithLastGroupBallSameShot(t *testing.T) {
	table := NewStandardTable()
	st := setupGroups(table, 1, 2, 3, 4, 5, 6, 7, 8)

	// order of the pocketed set must not matter
	for _, order := range [][]int{{8, 7}, {7, 8}} {
		next, _ := Resolve(table, st, order)
		if !next.GameOver || next.Winner != Player1 {
			t.Errorf("order %v: winner=%d, want 1", order, next.Winner)
		}
		if next.Player1.Score != 1 {
			t.Errorf("order %v: ball 7 should still be scored, got %d", order, next.Player1.Score)
		}
	}
}

func TestEightBallOnOpenTableLoses(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	st.Ball(8).Pocketed = true

	next, _ := Resolve(table, st, []int{8})

	if !next.GameOver || next.Winner != Player2 {
		t.Errorf("winner=%d, want 2 for an 8-ball sunk on an open table", next.Winner)
	}
}

func TestFoulRespawnsCueAndSwitchesTurn(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	cue := st.CueBall()
	cue.Position = NewVec2(30, 30)
	cue.Velocity = NewVec2(0, 0)
	cue.Pocketed = true

	next, out := Resolve(table, st, []int{CueBallID})

	if !next.Foul || !out.Foul {
		t.Error("pocketing the cue ball should be a foul")
	}
	got := next.CueBall()
	if got.Pocketed {
		t.Error("cue ball should be back on the table")
	}
	if got.Position != table.CueStart {
		t.Errorf("cue ball at %v, want %v", got.Position, table.CueStart)
	}
	if !got.Velocity.IsZero() {
		t.Errorf("respawned cue ball should be at rest, got %v", got.Velocity)
	}
	if next.CurrentPlayer != Player2 || !out.TurnSwitched {
		t.Errorf("turn should pass to player 2, got %d", next.CurrentPlayer)
	}
	if !next.IsAiming {
		t.Error("next shooter should be aiming")
	}

	hasFoul := false
	for _, e := range out.Events {
		if e.Kind == EventFoul {
			hasFoul = true
		}
	}
	if !hasFoul {
		t.Error("expected a foul event")
	}
}

func TestFoulClearedByNextResolution(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	st.CueBall().Pocketed = true

	fouled, _ := Resolve(table, st, []int{CueBallID})
	if !fouled.Foul {
		t.Fatal("expected foul after scratch")
	}

	next, out := Resolve(table, fouled, nil)
	if next.Foul || out.Foul {
		t.Error("foul should be consumed by the following shot")
	}
}

func TestFoulRespawnAvoidsOccupiedSpot(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	st.Ball(3).Position = table.CueStart
	st.CueBall().Pocketed = true

	next, _ := Resolve(table, st, []int{CueBallID})

	cue := next.CueBall()
	if d := cue.Position.Distance(table.CueStart); d < 2*BallRadius {
		t.Errorf("cue ball respawned on top of ball 3 (distance %.2f)", d)
	}
	if cue.Position.Y != table.CueStart.Y || !table.Contains(cue.Position) {
		t.Errorf("cue ball should stay on the long axis inside the table, got %v", cue.Position)
	}
}

func TestTurnInvariant(t *testing.T) {
	table := NewStandardTable()
	cases := []struct {
		name     string
		pocketed []int
		switches bool
	}{
		{"miss", nil, true},
		{"object ball", []int{3}, false},
		{"two object balls", []int{12, 3}, false},
		{"scratch", []int{0}, true},
		{"scratch with object ball", []int{3, 0}, true},
		{"duplicate ids", []int{5, 5}, false},
	}
	for _, tc := range cases {
		st := NewGameState(table, Options{Seats: 2})
		for _, id := range tc.pocketed {
			st.Ball(id).Pocketed = true
		}
		next, out := Resolve(table, st, tc.pocketed)

		switched := next.CurrentPlayer != st.CurrentPlayer
		if switched != tc.switches || out.TurnSwitched != tc.switches {
			t.Errorf("%s: switched=%t outcome=%t, want %t", tc.name, switched, out.TurnSwitched, tc.switches)
		}
		if next.ShotNumber != st.ShotNumber+1 {
			t.Errorf("%s: shot number %d, want %d", tc.name, next.ShotNumber, st.ShotNumber+1)
		}
	}
}

func TestOpenTableAssignsGroupFromFirstPocket(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2, Policy: PolicyOpenTable})

	next, out := Resolve(table, st, []int{10, 3})

	if next.Player1.Group != GroupSolids || next.Player2.Group != GroupStripes {
		t.Fatalf("groups = %q/%q, want solid/striped", next.Player1.Group, next.Player2.Group)
	}
	if !out.GroupAssigned {
		t.Error("outcome should report the assignment")
	}
	if next.Player1.Score != 1 || next.Player2.Score != 1 {
		t.Errorf("scores = %d/%d, want 1/1 (stripe credited to its owner)", next.Player1.Score, next.Player2.Score)
	}
	if next.CurrentPlayer != Player1 {
		t.Error("shooter should continue after pocketing")
	}
}

func TestOpenTableNoAssignmentOnFoul(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	st.CueBall().Pocketed = true

	next, _ := Resolve(table, st, []int{0, 4})

	if next.Player1.Group.Assigned() || next.Player2.Group.Assigned() {
		t.Error("a foul shot must not assign groups")
	}
	if next.Player1.Score != 1 {
		t.Errorf("unassigned ball should be credited to the shooter, got %d", next.Player1.Score)
	}
}

func TestOpenTableCreditReconciledOnAssignment(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2, Policy: PolicyOpenTable})

	// side 1 scratches while sinking the 1: credited, no groups
	st.CueBall().Pocketed = true
	st.Ball(1).Pocketed = true
	st, _ = Resolve(table, st, []int{0, 1})
	if st.CurrentPlayer != Player2 || st.Player1.Score != 1 {
		t.Fatalf("after foul: player=%d p1 score=%d", st.CurrentPlayer, st.Player1.Score)
	}

	// side 2 sinks the 2 and takes solids, which owns the 1 as well
	st.Ball(2).Pocketed = true
	next, out := Resolve(table, st, []int{2})

	if !out.GroupAssigned || next.Player2.Group != GroupSolids || next.Player1.Group != GroupStripes {
		t.Fatalf("groups = %q/%q, want striped/solid", next.Player1.Group, next.Player2.Group)
	}
	if next.Player2.Score != 2 || next.Player1.Score != 0 {
		t.Errorf("scores = %d/%d, want 0/2", next.Player1.Score, next.Player2.Score)
	}
	for _, p := range []PlayerID{Player1, Player2} {
		side := next.Side(p)
		if want := GroupSize - Remaining(next.Balls, side.Group); side.Score != want {
			t.Errorf("side %d score %d, want %d balls of %q off the table", p, side.Score, want, side.Group)
		}
	}
}

func TestPocketedCueIsFoulWhenMissingFromList(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	st.CueBall().Pocketed = true
	st.Ball(3).Pocketed = true
	ids := make([]int, 1, 4)
	ids[0] = 3

	next, out := Resolve(table, st, ids)

	if !out.Foul || !next.Foul {
		t.Error("a cue ball off the table must be a foul")
	}
	if next.CueBall().Pocketed {
		t.Error("cue ball should be respawned")
	}
	if next.CurrentPlayer != Player2 {
		t.Error("turn should pass after a scratch")
	}
	if len(out.Pocketed) != 2 || out.Pocketed[0] != CueBallID {
		t.Errorf("outcome pocketed = %v, want [0 3]", out.Pocketed)
	}
	if ids[:cap(ids)][1] != 0 || len(ids) != 1 {
		t.Error("Resolve wrote into the caller's slice")
	}
}

func TestLegacyPresetKeepsGroups(t *testing.T) {
	table := NewStandardTable()

	open := NewGameState(table, Options{Seats: 2, Policy: PolicyLegacyPreset})
	next, _ := Resolve(table, open, []int{2})
	if next.Player1.Group.Assigned() {
		t.Error("legacy policy must never derive groups from play")
	}
	if next.Player1.Score != 1 {
		t.Errorf("shooter should be credited, got %d", next.Player1.Score)
	}

	preset := NewGameState(table, Options{Seats: 2, Policy: PolicyLegacyPreset, Player1Group: GroupStripes, Player2Group: GroupSolids})
	next, _ = Resolve(table, preset, []int{2})
	if next.Player1.Group != GroupStripes || next.Player2.Score != 1 {
		t.Errorf("preset groups should hold: p1=%q p2 score=%d", next.Player1.Group, next.Player2.Score)
	}
}

func TestPresetGroupsIgnoredOnOpenTable(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2, Player1Group: GroupStripes, Player2Group: GroupSolids})
	if st.Player1.Group.Assigned() || st.Player2.Group.Assigned() {
		t.Error("open table should start without groups")
	}
}

func TestSeatRotation(t *testing.T) {
	table := NewStandardTable()
	cases := []struct {
		seats int
		want  []int
		sides []PlayerID
	}{
		{2, []int{1, 2, 1, 2, 1}, []PlayerID{1, 2, 1, 2, 1}},
		{3, []int{1, 2, 3, 2, 1}, []PlayerID{1, 2, 1, 2, 1}},
		{4, []int{1, 2, 3, 4, 1}, []PlayerID{1, 2, 1, 2, 1}},
	}
	for _, tc := range cases {
		st := NewGameState(table, Options{Seats: tc.seats})
		for i := range tc.want {
			if st.CurrentSeat != tc.want[i] || st.CurrentPlayer != tc.sides[i] {
				t.Errorf("%d seats, turn %d: seat %d side %d, want seat %d side %d",
					tc.seats, i, st.CurrentSeat, st.CurrentPlayer, tc.want[i], tc.sides[i])
			}
			st, _ = Resolve(table, st, nil)
		}
	}
}

func TestSeatNamesInMessages(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2, Names: []string{"Ada", "Grace"}})
	if st.Seats[0].Name != "Ada" || st.Seats[1].Name != "Grace" {
		t.Fatalf("seat names = %q/%q", st.Seats[0].Name, st.Seats[1].Name)
	}
	next, _ := Resolve(table, st, nil)
	if next.Message != "Grace - your turn!" {
		t.Errorf("message = %q", next.Message)
	}
}

func TestResetFromAnyState(t *testing.T) {
	table := NewStandardTable()
	st := setupGroups(table, 1, 2, 3, 4, 5, 6, 7, 8)
	st.Player1.Score = 7
	st.Player2.Score = 3
	over, _ := Resolve(table, st, []int{8})
	over.CueBall().Pocketed = true

	fresh := over.Reset(table)

	if len(fresh.Balls) != NumBalls {
		t.Fatalf("reset produced %d balls", len(fresh.Balls))
	}
	cue := fresh.CueBall()
	if cue.Pocketed || cue.Position != table.CueStart || !cue.Velocity.IsZero() {
		t.Errorf("cue ball after reset: %+v", *cue)
	}
	if fresh.Player1.Score != 0 || fresh.Player2.Score != 0 {
		t.Errorf("scores after reset: %d/%d", fresh.Player1.Score, fresh.Player2.Score)
	}
	if fresh.CurrentPlayer != Player1 || fresh.GameOver || fresh.Winner != NoPlayer {
		t.Errorf("reset state: player=%d gameOver=%t winner=%d", fresh.CurrentPlayer, fresh.GameOver, fresh.Winner)
	}
	if !fresh.IsAiming || fresh.Foul {
		t.Error("reset state should be aiming without a foul")
	}
	for _, b := range fresh.Balls {
		if b.Pocketed {
			t.Errorf("ball %d still pocketed after reset", b.ID)
		}
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})
	st.CueBall().Pocketed = true
	before := st.Clone()

	Resolve(table, st, []int{0, 3})

	if st.CueBall().Pocketed != before.CueBall().Pocketed || st.Player1.Score != before.Player1.Score || st.CurrentPlayer != before.CurrentPlayer {
		t.Error("Resolve mutated its input state")
	}
}

func TestShootAppliesImpulse(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})

	next, ev, err := Shoot(st, 0.5, 40)
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	want := FromAngle(0.5, 40*ShotScale)
	if next.CueBall().Velocity.Distance(want) > 1e-12 {
		t.Errorf("cue velocity %v, want %v", next.CueBall().Velocity, want)
	}
	if next.IsAiming || next.Phase != PhaseInFlight {
		t.Error("state should be in flight after a shot")
	}
	if !st.CueBall().Velocity.IsZero() {
		t.Error("Shoot mutated its input state")
	}
	if ev.Kind != EventCueStrike || math.Abs(ev.Intensity-0.4) > 1e-12 {
		t.Errorf("strike event = %+v", ev)
	}

	if _, _, err := Shoot(next, 0.5, 40); !errors.Is(err, ErrNotAiming) {
		t.Errorf("shot while in flight: err=%v, want ErrNotAiming", err)
	}
}

func TestShootRejectsInvalidInput(t *testing.T) {
	table := NewStandardTable()
	st := NewGameState(table, Options{Seats: 2})

	if _, _, err := Shoot(st, 0, MinShotPower); !errors.Is(err, ErrWeakShot) {
		t.Errorf("weak shot: err=%v", err)
	}
	if _, _, err := Shoot(st, math.NaN(), 50); !errors.Is(err, ErrBadShot) {
		t.Errorf("NaN angle: err=%v", err)
	}
	if _, _, err := Shoot(st, 0, math.Inf(1)); !errors.Is(err, ErrBadShot) {
		t.Errorf("infinite power: err=%v", err)
	}

	noCue := st.Clone()
	noCue.CueBall().Pocketed = true
	if _, _, err := Shoot(noCue, 0, 50); !errors.Is(err, ErrNoCueBall) {
		t.Errorf("pocketed cue: err=%v", err)
	}

	over := st.Clone()
	over.GameOver = true
	if _, _, err := Shoot(over, 0, 50); !errors.Is(err, ErrGameOver) {
		t.Errorf("game over: err=%v", err)
	}

	strong, _, err := Shoot(st, 0, 250)
	if err != nil {
		t.Fatalf("overpowered shot: %v", err)
	}
	if got := strong.CueBall().Velocity.Magnitude(); math.Abs(got-MaxBallSpeed) > 1e-9 {
		t.Errorf("power should clamp to max, speed=%.3f", got)
	}
}

func TestGroupJSON(t *testing.T) {
	b, err := json.Marshal(SideState{})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw["group"]; !ok || v != nil {
		t.Errorf("unassigned group should encode as null, got %s", b)
	}

	var side SideState
	if err := json.Unmarshal([]byte(`{"group":"striped"}`), &side); err != nil || side.Group != GroupStripes {
		t.Errorf("decode striped: %v %q", err, side.Group)
	}
	if err := json.Unmarshal([]byte(`{"group":"spots"}`), &side); err == nil {
		t.Error("unknown group should fail to decode")
	}
}

func TestRandomPlayKeepsInvariants(t *testing.T) {
	table := NewStandardTable()
	for _, seed := range []int64{1, 7, 42, 2024} {
		rng := rand.New(rand.NewSource(seed))
		st := NewGameState(table, Options{Seats: 2, Policy: PolicyOpenTable})

		for shot := 0; shot < 60 && !st.GameOver; shot++ {
			angle := rng.Float64() * 2 * math.Pi
			power := MinShotPower + 1 + rng.Float64()*(MaxPower-MinShotPower-1)
			next, _, err := Shoot(st, angle, power)
			if err != nil {
				t.Fatalf("seed %d shot %d: Shoot(%.3f, %.1f): %v", seed, shot, angle, power, err)
			}

			var pocketed []int
			for step := 0; ; step++ {
				var rep StepReport
				next.Balls, rep = Step(table, next.Balls)
				pocketed = append(pocketed, rep.Pocketed...)
				assertContained(t, table, next.Balls, step)
				if rep.AllStopped {
					break
				}
				if step > 20000 {
					t.Fatalf("seed %d shot %d: balls never came to rest", seed, shot)
				}
			}

			st, _ = Resolve(table, next, pocketed)
			assertContained(t, table, st.Balls, -1)
			if !st.GameOver {
				if cue := st.CueBall(); cue == nil || cue.Pocketed {
					t.Fatalf("seed %d shot %d: cue ball off the table while aiming", seed, shot)
				}
			}
			for _, p := range []PlayerID{Player1, Player2} {
				side := st.Side(p)
				if !side.Group.Assigned() {
					continue
				}
				if want := GroupSize - Remaining(st.Balls, side.Group); side.Score != want {
					t.Fatalf("seed %d shot %d: side %d score %d, want %d", seed, shot, p, side.Score, want)
				}
			}
		}
	}
}
