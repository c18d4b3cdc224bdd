package game

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/database"
	"github.com/playmatatu/billiards/internal/migrations"
)

// syncConfig resolves shots inside the call that fires them.
func syncConfig() *config.Config {
	cfg := config.Default()
	cfg.FrameIntervalMs = 0
	return cfg
}

func TestManagerTableLifecycle(t *testing.T) {
	tm := NewTableManager(nil, nil, syncConfig())

	s := tm.CreateTable(Options{Seats: 3, Names: []string{"a", "b", "c"}}, NoPlayer)
	if s.ID == "" {
		t.Fatal("table id should be set")
	}
	got, err := tm.GetTable(s.ID)
	if err != nil || got != s {
		t.Fatalf("GetTable: %v", err)
	}
	if tm.GetActiveTableCount() != 1 {
		t.Errorf("active tables = %d", tm.GetActiveTableCount())
	}

	if err := tm.Shoot(s.ID, 0, 70); err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	st := s.State()
	if st.ShotNumber != 1 {
		t.Errorf("synchronous shot should be resolved, shot number %d", st.ShotNumber)
	}

	if _, err := tm.Reset(s.ID); err != nil {
		t.Fatal(err)
	}
	if s.State().ShotNumber != 0 {
		t.Error("reset should re-rack")
	}

	tm.RemoveTable(s.ID)
	if _, err := tm.GetTable(s.ID); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("removed table: err=%v, want ErrTableNotFound", err)
	}
}

func TestManagerUnknownTable(t *testing.T) {
	tm := NewTableManager(nil, nil, syncConfig())
	if _, err := tm.GetTable("tbl_missing"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("err=%v, want ErrTableNotFound", err)
	}
	if err := tm.Shoot("tbl_missing", 0, 50); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("shoot err=%v", err)
	}
	if _, err := tm.History(context.Background(), "tbl_missing"); !errors.Is(err, ErrNoPersistence) {
		t.Errorf("history without a database: err=%v", err)
	}
}

func TestManagerComputerShot(t *testing.T) {
	tm := NewTableManager(nil, nil, syncConfig())

	human := tm.CreateTable(Options{Seats: 2}, Player2)
	if _, err := tm.ComputerShot(context.Background(), human.ID); !errors.Is(err, ErrNotComputerTurn) {
		t.Errorf("computer shot on the human's turn: err=%v", err)
	}

	open := tm.CreateTable(Options{Seats: 2}, NoPlayer)
	plan, err := tm.ComputerShot(context.Background(), open.ID)
	if err != nil {
		t.Fatalf("ComputerShot: %v", err)
	}
	if !plan.Valid() {
		t.Errorf("invalid plan %+v", plan)
	}
	if open.State().ShotNumber != 1 {
		t.Error("computer shot should have been played")
	}
}

type fixedAdvisor struct{ plan ShotPlan }

func (f fixedAdvisor) Plan(context.Context, *Table, []Ball, Group) ShotPlan { return f.plan }

func TestManagerUsesAdvisor(t *testing.T) {
	tm := NewTableManager(nil, nil, syncConfig())
	tm.SetAdvisor(fixedAdvisor{plan: ShotPlan{Angle: 0, Power: 42, TargetBallID: 1, Confidence: 0.9, Source: "advisor"}})
	s := tm.CreateTable(Options{Seats: 2}, NoPlayer)

	plan, err := tm.ComputerShot(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Source != "advisor" || plan.Power != 42 {
		t.Errorf("advisor plan not used: %+v", plan)
	}
}

func TestManagerPersistsShots(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "billiards.db")
	if err := migrations.RunMigrations(url, filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	db, err := database.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	tm := NewTableManager(db, nil, syncConfig())
	s := tm.CreateTable(Options{Seats: 2}, NoPlayer)

	if err := tm.Shoot(s.ID, 0, 70); err != nil {
		t.Fatal(err)
	}
	if err := tm.Shoot(s.ID, 3.0, 40); err != nil && !errors.Is(err, ErrGameOver) {
		t.Fatal(err)
	}

	shots, err := tm.History(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(shots) == 0 || shots[0].ShotNumber != 1 || shots[0].Power != 70 {
		t.Fatalf("history = %+v", shots)
	}
	if shots[0].Pocketed == "" {
		t.Error("pocketed column should hold a JSON array")
	}

	rec, err := tm.Record(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Seats != 2 || rec.GroupPolicy != string(PolicyOpenTable) {
		t.Errorf("record = %+v", rec)
	}
}

func TestManagerChargeRelease(t *testing.T) {
	tm := NewTableManager(nil, nil, syncConfig())
	s := tm.CreateTable(Options{Seats: 2}, NoPlayer)

	start := time.Now()
	s.Aim(NewVec2(100, 200))
	s.ChargeStart(start)
	fired, err := tm.ChargeRelease(s.ID, start.Add(60*time.Millisecond))
	if err != nil || fired {
		t.Errorf("weak release: fired=%t err=%v", fired, err)
	}

	s.ChargeStart(start)
	fired, err = tm.ChargeRelease(s.ID, start.Add(900*time.Millisecond))
	if err != nil || !fired {
		t.Fatalf("full release: fired=%t err=%v", fired, err)
	}
	if s.State().ShotNumber != 1 {
		t.Error("released shot should be resolved synchronously")
	}
}

func TestManagerRemoteRemovalForgetsTable(t *testing.T) {
	cfg := config.Default()
	cfg.FrameIntervalMs = 50
	tm := NewTableManager(nil, nil, cfg)
	s := tm.CreateTable(Options{Seats: 2}, NoPlayer)
	if err := s.Shoot(0, 70); err != nil {
		t.Fatal(err)
	}

	tm.HandleRemoteEvent(TableEvent{Origin: tm.InstanceID(), TableID: s.ID, Event: Event{Kind: EventTableRemoved}})
	tm.HandleRemoteEvent(TableEvent{Origin: "other", TableID: s.ID, Event: Event{Kind: EventPocket, BallID: 3}})
	if tm.GetActiveTableCount() != 1 {
		t.Fatal("own or non-removal events must not drop the table")
	}

	tm.HandleRemoteEvent(TableEvent{Origin: "other", TableID: s.ID, Event: Event{Kind: EventTableRemoved}})
	if _, err := tm.GetTable(s.ID); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("table removed elsewhere: err=%v, want ErrTableNotFound", err)
	}
	if out, done := s.Tick(); out != nil || !done {
		t.Error("shot loop of a forgotten table should be stopped")
	}
	if tm.Forget(s.ID) {
		t.Error("second forget should report nothing held")
	}
}
