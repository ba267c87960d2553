package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/config"
	"github.com/JPdumas08/WebDev1.2-sub001/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Usage: migrate [-timeout 1m] <up|down|status|version|redo|reset>
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	timeout := flag.Duration("timeout", time.Minute, "overall migration timeout")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		logger.Error("failed to load database configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := goose.RunContext(ctx, command, db, ".", flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logger.Error("migration failed", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("migration finished", slog.String("command", command))
}
