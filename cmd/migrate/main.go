package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"mercadinho/backend/internal/config"
	"mercadinho/backend/internal/logger"
	pgstore "mercadinho/backend/internal/store/postgres"
)

func main() {
	_ = config.LoadDotEnv()

	cmd := flag.String("cmd", "up", "migration command: up|down|up-to|down-to|redo|reset|status|version|validate")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=up-to or down-to")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	if *cmd == "validate" {
		if err := pgstore.ValidateMigrations(); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logg.Error(ctx, "resource not working: database", err)
		os.Exit(1)
	}
	defer pg.Close()

	var args []string
	switch *cmd {
	case "up", "down", "status", "version", "redo", "reset":
	case "up-to", "down-to":
		if *version == "" {
			fmt.Fprintf(os.Stderr, "missing -version for %s\n", *cmd)
			os.Exit(1)
		}
		args = append(args, *version)
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}

	if err := pgstore.Migrate(ctx, pg.DB(), *cmd, args...); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}
