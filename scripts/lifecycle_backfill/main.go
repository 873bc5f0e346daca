package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	"github.com/noah-isme/journal-api/pkg/config"
	"github.com/noah-isme/journal-api/pkg/database"
)

type legacyStore interface {
	ListLegacy(ctx context.Context, limit int) ([]repository.LegacyArticleRow, error)
	SetDerivedState(ctx context.Context, id string, state models.LifecycleState) (bool, error)
}

type report struct {
	Scanned int
	Updated int
	Skipped int
	ByState map[models.LifecycleState]int
}

func main() {
	var (
		batch   int
		dryRun  bool
		timeout time.Duration
	)

	flag.IntVar(&batch, "batch", 500, "Rows read per batch")
	flag.BoolVar(&dryRun, "dry-run", false, "Print the derived states of one batch without writing")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	repo := repository.NewArticleRepository(db, database.ReadPolicy{Attempts: cfg.Database.ReadRetries, Delay: cfg.Database.ReadRetryDelay})
	rep, err := backfill(ctx, repo, batch, dryRun)
	printReport(rep, dryRun)
	if err != nil {
		log.Printf("backfill stopped: %v", err)
		os.Exit(1)
	}
}

// backfill derives lifecycle_state for rows that predate the column. Rows are written
// with a conditional update, so concurrent runs never overwrite each other.
func backfill(ctx context.Context, store legacyStore, batch int, dryRun bool) (report, error) {
	rep := report{ByState: make(map[models.LifecycleState]int)}
	if batch <= 0 {
		batch = 500
	}

	for {
		rows, err := store.ListLegacy(ctx, batch)
		if err != nil {
			return rep, err
		}
		if len(rows) == 0 {
			return rep, nil
		}

		progressed := false
		for _, row := range rows {
			state := models.DeriveLifecycleState(row.Record())
			rep.Scanned++
			rep.ByState[state]++
			if dryRun {
				continue
			}
			ok, err := store.SetDerivedState(ctx, row.ID, state)
			if err != nil {
				return rep, fmt.Errorf("article %s: %w", row.ID, err)
			}
			if ok {
				rep.Updated++
				progressed = true
			} else {
				rep.Skipped++
			}
		}

		if dryRun || !progressed {
			return rep, nil
		}
	}
}

func printReport(rep report, dryRun bool) {
	mode := "applied"
	if dryRun {
		mode = "dry run"
	}
	fmt.Printf("Lifecycle backfill (%s)\n", mode)

	states := make([]string, 0, len(rep.ByState))
	for state := range rep.ByState {
		states = append(states, string(state))
	}
	sort.Strings(states)
	for _, state := range states {
		fmt.Printf("  %-18s %d\n", state, rep.ByState[models.LifecycleState(state)])
	}
	fmt.Printf("Scanned: %d, Updated: %d, Skipped: %d\n", rep.Scanned, rep.Updated, rep.Skipped)
}
