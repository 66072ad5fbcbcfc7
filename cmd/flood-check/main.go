// Command flood-check runs one evaluation cycle for a user and prints the
// report as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-flood-alerts/internal/app"
	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/engine"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/logging"
)

func main() {
	userID := flag.String("user", "", "user id to evaluate")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	// stdout carries the report
	logging.SetupWriter(os.Stderr, cfg.Logging.Level)

	if *userID == "" {
		logging.Fatalf("-user is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// No /metrics endpoint in one-shot mode.
	a, err := app.Build(ctx, cfg, nil, clockwork.NewRealClock())
	if err != nil {
		logging.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	report, runErr := a.Engine.RunCycle(ctx, *userID, engine.TriggerManual)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logging.Fatalf("encode report: %v", err)
	}

	switch {
	case errors.Is(runErr, ingestion.ErrSourceUnavailable):
		a.Close()
		os.Exit(3)
	case runErr != nil:
		logging.Fatalf("cycle failed: %v", runErr)
	}
}
