// Package main re-applies reference data (asset metadata, overrides) to a
// stored snapshot without calling any provider.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/portfolio-aggregator/internal/config"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/refdata"
	"github.com/portfolio-aggregator/internal/service"
	"github.com/portfolio-aggregator/internal/storage"
)

func main() {
	date := flag.String("date", "", "Ledger date to reprocess (YYYY-MM-DD); defaults to the current snapshot")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	reprocessor := service.NewReprocessor(
		refdata.NewStore(storage.NewReferenceRepository(postgres)),
		storage.NewSnapshotRepository(postgres),
		storage.NewLedgerRepository(clickhouse),
	)

	ctx := logging.WithLogger(context.Background(), logger)
	var result *service.ReprocessResult
	if *date == "" {
		result, err = reprocessor.ReprocessCurrent(ctx)
	} else {
		day, perr := time.Parse("2006-01-02", *date)
		if perr != nil {
			logger.WithError(perr).Fatal("Invalid -date, expected YYYY-MM-DD")
		}
		result, err = reprocessor.ReprocessDate(ctx, day)
	}
	if err != nil {
		logger.WithError(err).Fatal("Reprocess failed")
	}
	logger.WithFields(logging.Fields{
		"run_id":    result.RunID,
		"positions": result.Positions,
	}).Info("Reprocess complete")
}
