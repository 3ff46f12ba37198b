package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/barnqueue/barn/internal/events"
	"github.com/barnqueue/barn/internal/leader"
	"github.com/barnqueue/barn/internal/metrics"
	"github.com/barnqueue/barn/internal/scheduler"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the scheduler, materializing due schedules behind the leader lease",
	RunE:  runScheduler,
}

var schedulerBusFlag bool

func init() {
	schedulerCmd.Flags().BoolVar(&schedulerBusFlag, "bus", false,
		"enable the Postgres LISTEN/NOTIFY bus (overrides BUS_ENABLED if set)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	if cmd.Flags().Changed("bus") {
		cfg.BusEnabled = schedulerBusFlag
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

	evs := events.New()
	elector := leader.New(be.locks, evs, logger, cfg.LeaseName, "", cfg.HeartbeatInterval, cfg.LeaseTTL)

	s := scheduler.New(be.schedules, evs, be.bus, elector, logger, scheduler.Config{
		PollInterval: cfg.SchedulePollInterval,
		FinishedTTL:  cfg.ScheduleFinishedTTL,
	})

	runStop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(runStop)
	}()

	go elector.Run(ctx, runStop)

	logger.Info("scheduler starting", "lease_name", cfg.LeaseName)
	s.Run(ctx, runStop)
	return nil
}
