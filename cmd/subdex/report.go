package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subdex/internal/config"
	"subdex/internal/numeric"
	"subdex/internal/report"
	"subdex/internal/storage/postgres"
)

func newReportCmd() *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate journal events into window metrics",
		RunE:  runReport,
	}

	reportCmd.Flags().String("in", "", "input journal JSONL (reads pool_events when empty and pg-dsn is set)")
	reportCmd.Flags().String("out", "", "output JSONL for window metrics (stdout when empty and pg-dsn is not set)")
	reportCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	reportCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	reportCmd.Flags().Int("batch-size", 1000, "batch size for sink writes")
	reportCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	reportCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	reportCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return reportCmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReport(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" && cfg.PGDSN == "" {
		return fmt.Errorf("input path or pg dsn is required")
	}

	windowDuration, err := time.ParseDuration(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if windowDuration <= 0 {
		return fmt.Errorf("window must be positive")
	}
	windowSeconds := uint64(windowDuration.Seconds())
	if windowSeconds == 0 {
		return fmt.Errorf("window must be at least 1s")
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *postgres.Store
	if cfg.PGDSN != "" {
		// Window metrics do not depend on the balance width.
		store, err = postgres.NewStore(ctx, cfg.PGDSN, numeric.Width256)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	var sink report.Sink
	switch {
	case cfg.Out != "":
		out, err := openOutput(cfg.Out)
		if err != nil {
			return err
		}
		defer out.Close()
		sink = report.NewJSONLSink(out)
	case store != nil:
		sink = store
	default:
		sink = report.NewJSONLSink(cmd.OutOrStdout())
	}

	var stateStore report.StateStore
	if cfg.StateFile != "" {
		stateStore = &report.FileStateStore{Path: cfg.StateFile}
	} else if store != nil {
		stateStore = &report.DBStateStore{Store: store, Name: fmt.Sprintf("report:%d", windowSeconds)}
	}

	agg := report.NewAggregator(report.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
	}, sink, logger)

	logger.Info("report start",
		zap.String("input", cfg.Input),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	if cfg.Input != "" {
		return agg.Run(ctx, cfg.Input)
	}

	after, err := agg.StartTimestamp(ctx)
	if err != nil {
		return err
	}
	events, err := store.Events(ctx, after)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	return agg.RunEvents(ctx, events)
}

func openOutput(path string) (io.WriteCloser, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}
