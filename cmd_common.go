package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/config"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/logger"
	"github.com/BatmanBruc/olymp-quiz-bot/store"
)

var envFile string

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.Init(cfg.LogLevel, cfg.LogFormat), nil
}

func openPostgres(ctx context.Context, cfg *config.Config, migrate bool) (*store.PostgresStore, error) {
	pg, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), migrate)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pg, nil
}
