package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/barnqueue/barn/internal/email"
	"github.com/barnqueue/barn/internal/events"
	"github.com/barnqueue/barn/internal/leader"
	"github.com/barnqueue/barn/internal/metrics"
	httptransport "github.com/barnqueue/barn/internal/transport/http"
	"github.com/barnqueue/barn/internal/transport/http/handler"
	"github.com/barnqueue/barn/internal/usecase"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin/inspection HTTP API (tasks, schedules, leader status, magic-link auth)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	taskUsecase := usecase.NewTaskUsecase(be.tasks)
	scheduleUsecase := usecase.NewScheduleUsecase(be.schedules)

	emailSender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	authUsecase := usecase.NewAuthUsecase(be.users, emailSender, []byte(cfg.JWTSecret), cfg.MagicLinkBase)

	// The admin process is itself a candidate for the scheduler's lease so
	// that GET /leader reflects real TryAcquire/Confirm state rather than
	// a process that never participates in the election.
	elector := leader.New(be.locks, events.New(), logger, cfg.LeaseName, "", cfg.HeartbeatInterval, cfg.LeaseTTL)
	electorStop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(electorStop)
	}()
	go elector.Run(ctx, electorStop)

	router := httptransport.NewRouter(
		logger,
		handler.NewTaskHandler(taskUsecase, logger),
		handler.NewScheduleHandler(scheduleUsecase, logger),
		handler.NewAuthHandler(authUsecase, logger),
		handler.NewStatusHandler(elector),
		be.checker,
		[]byte(cfg.JWTSecret),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("admin api started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin api", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
