package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/billiards/internal/advisor"
	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/database"
	"github.com/playmatatu/billiards/internal/game"
)

func main() {
	maxShots := flag.Int("max-shots", 200, "stop after this many shots")
	seats := flag.Int("seats", 2, "number of seats (2-4)")
	policy := flag.String("policy", "", "group policy: open_table or legacy_preset (default from GROUP_POLICY)")
	record := flag.Bool("record", false, "record shots to DATABASE_URL")
	useAdvisor := flag.Bool("advisor", false, "ask ADVISOR_URL for shots")
	flag.Parse()

	cfg := config.Load()
	cfg.FrameIntervalMs = 0

	var db *sqlx.DB
	if *record {
		var err error
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
	}

	tm := game.NewTableManager(db, nil, cfg)
	if *useAdvisor {
		if client := advisor.NewClient(cfg, nil); client != nil {
			tm.SetAdvisor(client)
		} else {
			log.Println("[ADVISOR] ADVISOR_URL not set; using the local planner")
		}
	}

	tm.OnShot(func(tableID string, out game.ShotOutcome, st game.GameState) {
		pocketed := make([]string, len(out.Pocketed))
		for i, id := range out.Pocketed {
			pocketed[i] = fmt.Sprint(id)
		}
		fmt.Printf("#%-3d side %d seat %d  angle %6.3f power %5.1f  pocketed [%s]  foul=%t  %s\n",
			out.ShotNumber, out.Side, out.Seat, out.Angle, out.Power, strings.Join(pocketed, " "), out.Foul, st.Message)
	})

	opts := game.Options{Seats: *seats}
	if *policy != "" {
		opts.Policy = game.ParseGroupPolicy(*policy)
	}
	s := tm.CreateTable(opts, game.NoPlayer)
	fmt.Printf("Table %s racked\n", s.ID)

	ctx := context.Background()
	for i := 0; i < *maxShots; i++ {
		if _, err := tm.ComputerShot(ctx, s.ID); err != nil {
			log.Printf("[TABLE] Stopping: %v", err)
			break
		}
		if s.State().GameOver {
			break
		}
	}

	st := s.State()
	if !st.GameOver {
		fmt.Printf("No winner after %d shots (side 1 %d, side 2 %d)\n", st.ShotNumber, st.Player1.Score, st.Player2.Score)
		return
	}
	fmt.Printf("Side %d wins after %d shots: %s\n", st.Winner, st.ShotNumber, st.Message)
}
