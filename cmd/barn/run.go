package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/barnqueue/barn/internal/events"
	"github.com/barnqueue/barn/internal/leader"
	"github.com/barnqueue/barn/internal/metrics"
	"github.com/barnqueue/barn/internal/registry"
	"github.com/barnqueue/barn/internal/scheduler"
	"github.com/barnqueue/barn/internal/worker"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker pool and the scheduler in a single process (dev mode)",
	RunE:  runAll,
}

func runAll(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
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

	workerStop := make(chan struct{})
	schedulerStop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(workerStop)
		close(schedulerStop)
	}()

	reg := registry.New()
	w := worker.New(be.tasks, reg, events.New(), be.bus, logger, worker.Config{
		PollInterval: cfg.TaskPollInterval,
		FinishedTTL:  cfg.TaskFinishedTTL,
		Concurrency:  cfg.WorkerConcurrency,
	})
	if cfg.TaskSync {
		reg.EnableSync(w)
	}

	evs := events.New()
	elector := leader.New(be.locks, evs, logger, cfg.LeaseName, "", cfg.HeartbeatInterval, cfg.LeaseTTL)
	s := scheduler.New(be.schedules, evs, be.bus, elector, logger, scheduler.Config{
		PollInterval: cfg.SchedulePollInterval,
		FinishedTTL:  cfg.ScheduleFinishedTTL,
	})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); elector.Run(ctx, schedulerStop) }()
	go func() { defer wg.Done(); w.Run(ctx, workerStop) }()
	go func() { defer wg.Done(); s.Run(ctx, schedulerStop) }()

	logger.Info("barn running", "mode", "single-process")
	wg.Wait()
	return nil
}
