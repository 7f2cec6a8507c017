// Command replay rebuilds learner stats from the local activity log and
// reports any document that no longer matches its log. With -repair, drifted
// documents are replaced by the rebuild.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/brightsteps/progression/internal/app"
	"github.com/brightsteps/progression/internal/infra"
	"github.com/brightsteps/progression/internal/progress"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	userID := flag.String("user", "", "replay a single user (default: every user)")
	repair := flag.Bool("repair", false, "replace drifted stats with the log rebuild")
	flag.Parse()

	drifted, err := run(logger, *userID, *repair)
	if err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
	if drifted > 0 && !*repair {
		os.Exit(2)
	}
}

func run(logger *slog.Logger, userID string, repair bool) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return 0, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("invalid config: %w", err)
	}

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer svc.Close(30 * time.Second)

	users := []string{userID}
	if userID == "" {
		all, err := svc.Local.ListAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("list users: %w", err)
		}
		users = users[:0]
		for _, s := range all {
			users = append(users, s.UserID)
		}
	}

	step := svc.Engine.Replay
	if repair {
		step = svc.Engine.RepairFromLog
	}

	enc := json.NewEncoder(os.Stdout)
	drifted := 0
	for _, id := range users {
		rep, err := step(ctx, id)
		if err != nil {
			return drifted, fmt.Errorf("replay %s: %w", id, err)
		}
		if !rep.Match {
			drifted++
		}
		if err := enc.Encode(summarize(rep)); err != nil {
			return drifted, err
		}
	}
	logger.Info("replay complete", "users", len(users), "drifted", drifted, "repair", repair)
	return drifted, nil
}

type summary struct {
	UserID  string `json:"user_id"`
	Entries int    `json:"entries"`
	Match   bool   `json:"match"`
	Version int64  `json:"version"`
	Stored  int64  `json:"stored_total_score"`
	Rebuilt int64  `json:"rebuilt_total_score"`
}

func summarize(rep *progress.ReplayReport) summary {
	return summary{
		UserID:  rep.UserID,
		Entries: rep.Entries,
		Match:   rep.Match,
		Version: rep.Stored.Version,
		Stored:  rep.Stored.TotalScore,
		Rebuilt: rep.Rebuilt.TotalScore,
	}
}
