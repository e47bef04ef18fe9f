package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/config"
	"github.com/dgnsrekt/menu_agent/internal/logging"
	"github.com/dgnsrekt/menu_agent/internal/notify"
	"github.com/dgnsrekt/menu_agent/internal/runner"
	"github.com/dgnsrekt/menu_agent/internal/snapshot"
	"github.com/dgnsrekt/menu_agent/internal/storage"
	"github.com/google/uuid"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		return 1
	}

	runID := uuid.NewString()
	slog.Info("menu capture config loaded",
		"run_id", runID,
		"session_provider", cfg.SessionProvider,
		"store_url", cfg.StoreURL,
		"target_endpoint", cfg.TargetEndpoint,
		"item_selector", cfg.MenuItemSelector,
		"step_timeout_ms", cfg.StepTimeoutMS,
		"capture_wait_ms", cfg.CaptureWaitMS,
		"output_file", cfg.OutputFile,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := runner.NewProvider(cfg)
	if err != nil {
		slog.Error("failed to create session provider", "error", err)
		return 1
	}

	var opts []runner.Option
	if cfg.JournalDir != "" {
		journal := storage.NewJSONLWriter(cfg.JournalDir, "item_responses_"+runID[:8], 256, cfg.JournalMaxSizeMB)
		slog.Info("capture journal enabled", "dir", cfg.JournalDir)
		defer func() { _ = journal.Close() }()
		opts = append(opts, runner.WithJournal(journal))
	}
	if cfg.SnapshotDir != "" {
		store, err := snapshot.NewStore(cfg.SnapshotDir)
		if err != nil {
			slog.Error("failed to open snapshot store", "dir", cfg.SnapshotDir, "error", err)
			return 1
		}
		opts = append(opts, runner.WithSnapshots(store))
	}

	res, runErr := runner.New(cfg, provider, opts...).Run(ctx)
	notifyResult(cfg.NotifyEndpoint, runID, res, runErr)
	if runErr != nil {
		slog.Error("menu capture failed", "run_id", runID, "error", runErr)
		return 1
	}

	slog.Info("menu capture finished", "run_id", runID, "summary", res.Summary(), "output_file", res.OutputFile)
	return 0
}

func notifyResult(endpoint, runID string, res *runner.Result, runErr error) {
	if endpoint == "" {
		return
	}
	msg := notify.RunFailed(runID, runErr)
	if runErr == nil {
		msg = notify.RunCompleted(runID, res.Summary())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := notify.Send(ctx, nil, endpoint, msg); err != nil {
		slog.Warn("notification failed", "endpoint", endpoint, "error", err)
	}
}
