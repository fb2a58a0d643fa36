package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/198cad/orcish-dashboard/internal/app"
	"github.com/198cad/orcish-dashboard/migrations"
)

// runMigrate applies the embedded migrations against PG_DSN.
func runMigrate() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	sqlDB, err := goose.OpenDBWithDriver("pgx", cfg.PGDSN)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Warn("close database", slog.Any("error", err))
		}
	}()

	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("set dialect", slog.Any("error", err))
		os.Exit(1)
	}
	if err := goose.RunContext(context.Background(), "up", sqlDB, "."); err != nil {
		logger.Error("goose up", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied")
}
