package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/barnqueue/barn/config"
	barnlog "github.com/barnqueue/barn/internal/log"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func mustLoadConfig() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	return barnlog.New(cfg.Env, cfg.SlogLevel(), os.Stdout)
}
