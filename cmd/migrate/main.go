// Package main provides a CLI tool for running database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/portfolio-aggregator/internal/config"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "postgres", "Database type: postgres, clickhouse")
		dir    = flag.String("dir", "migrations", "Root directory holding postgres/ and clickhouse/ migrations")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithFields(logging.Fields{"db": *dbType, "action": *action})

	switch *dbType {
	case "postgres":
		err = runPostgresMigrations(cfg, *dir+"/postgres", *action)
	case "clickhouse":
		err = runClickHouseMigrations(cfg, *dir+"/clickhouse", *action)
	default:
		err = fmt.Errorf("unknown database type: %s", *dbType)
	}
	if err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
}

func runPostgresMigrations(cfg *config.Config, migrationsPath, action string) error {
	logger := logging.GetGlobalLogger()
	migrator := storage.NewPostgresMigrator(cfg.Database.Postgres.URL(), migrationsPath)

	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.Info("Rolling back Postgres migration...")
		if err := migrator.Down(); err != nil {
			return err
		}
		logger.Info("Postgres migration rolled back successfully")

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		logger.WithFields(logging.Fields{"version": version, "dirty": dirty}).Info("Current Postgres migration version")

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}

func runClickHouseMigrations(cfg *config.Config, migrationsPath, action string) error {
	logger := logging.GetGlobalLogger()
	if action != "up" && action != "version" {
		return fmt.Errorf("ClickHouse migrations only support 'up' and 'version' actions")
	}
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", migrationsPath)
	}

	logger.Info("Connecting to ClickHouse...")
	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	ctx := context.Background()
	if action == "version" {
		applied, err := storage.ClickHouseMigrationStatus(ctx, db)
		if err != nil {
			return err
		}
		logger.WithFields(logging.Fields{"count": len(applied), "applied": applied}).Info("Applied ClickHouse migrations")
		return nil
	}

	logger.Info("Running ClickHouse migrations...")
	applied, err := storage.RunClickHouseMigrations(ctx, db, migrationsPath)
	if err != nil {
		return err
	}
	logger.WithField("applied", applied).Info("ClickHouse migrations completed successfully")
	return nil
}
