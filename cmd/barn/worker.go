package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/barnqueue/barn/internal/events"
	"github.com/barnqueue/barn/internal/metrics"
	"github.com/barnqueue/barn/internal/registry"
	"github.com/barnqueue/barn/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the worker pool that claims and executes queued tasks",
	RunE:  runWorker,
}

var workerConcurrencyFlag int

func init() {
	workerCmd.Flags().IntVar(&workerConcurrencyFlag, "concurrency", 0,
		"worker concurrency (overrides WORKER_CONCURRENCY if set)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	// A flag left at its zero value never overrides the env-sourced
	// config, matching caarlos0/env's own "env wins unless asked
	// otherwise" convention.
	if workerConcurrencyFlag > 0 {
		cfg.WorkerConcurrency = workerConcurrencyFlag
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer be.Close()

	metrics.Register()
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	// Function bodies live in the binary that embeds Barn as a library;
	// a bare `barn worker` process only drains what is already queued,
	// so an unrecognized func fails with domain.ErrFuncNotRegistered
	// until the embedding application registers its own.
	reg := registry.New()

	w := worker.New(be.tasks, reg, events.New(), be.bus, logger, worker.Config{
		PollInterval: cfg.TaskPollInterval,
		FinishedTTL:  cfg.TaskFinishedTTL,
		Concurrency:  cfg.WorkerConcurrency,
	})
	if cfg.TaskSync {
		reg.EnableSync(w)
	}

	runStop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(runStop)
	}()

	logger.Info("worker starting", "concurrency", cfg.WorkerConcurrency)
	w.Run(ctx, runStop)
	return nil
}
