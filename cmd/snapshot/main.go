// Package main provides the snapshot worker entry point.
// The worker builds one portfolio snapshot per day at SNAPSHOT_RUN_AT (UTC);
// "snapshot run" builds a single snapshot and exits.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adshao/go-binance/v2"

	"github.com/portfolio-aggregator/internal/adapter"
	"github.com/portfolio-aggregator/internal/circuitbreaker"
	"github.com/portfolio-aggregator/internal/config"
	"github.com/portfolio-aggregator/internal/history"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/pricing"
	"github.com/portfolio-aggregator/internal/ratelimit"
	"github.com/portfolio-aggregator/internal/refdata"
	"github.com/portfolio-aggregator/internal/service"
	"github.com/portfolio-aggregator/internal/storage"
	"github.com/portfolio-aggregator/internal/types"
)

// providerRPS throttles each wallet provider client
const providerRPS = 2

func main() {
	fmt.Println("Portfolio Snapshot Worker")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)
	logger := logging.GetGlobalLogger()

	logger.Info("Connecting to databases...")

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

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	refStore := refdata.NewStore(storage.NewReferenceRepository(postgres))
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	ledgerRepo := storage.NewLedgerRepository(clickhouse)
	txRepo := storage.NewTransactionLedgerRepository(clickhouse)

	var ccOpts []adapter.ClientOption
	if cfg.Pricing.DailyCallBudget > 0 {
		budget, err := ratelimit.NewCallBudget(&ratelimit.BudgetConfig{
			Redis:    redis.Client(),
			Provider: "cryptocompare",
			Limit:    cfg.Pricing.DailyCallBudget,
		})
		if err != nil {
			logger.WithError(err).Fatal("Invalid CryptoCompare call budget")
		}
		ccOpts = append(ccOpts, adapter.WithCallBudget(budget))
	}
	cryptoCompare := newClient("cryptocompare", cfg.Pricing.CryptoCompareURL, cfg.Pricing.RequestsPerSecond, ccOpts...)
	coinGecko := newClient("coingecko", cfg.Pricing.CoinGeckoURL, cfg.Pricing.RequestsPerSecond)
	prices := pricing.NewPriceService(redis, cryptoCompare, cfg.Pricing.CryptoCompareAPIKey, coinGecko, refStore, cfg.Pricing.CacheTTL)

	sources := history.NewRegistry(
		history.NewCryptoCompareSource(cryptoCompare, cfg.Pricing.CryptoCompareAPIKey),
		history.NewBinanceSource(binance.NewClient(cfg.Binance.APIKey, cfg.Binance.APISecret)),
		history.NewCoinGeckoSource(coinGecko, refStore),
	)
	chain, err := sources.Chain(cfg.History.Sources)
	if err != nil {
		logger.WithError(err).Fatal("Invalid history source chain")
	}

	adapters, closeAdapters, err := buildAdapters(cfg, refStore, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize wallet adapters")
	}
	defer closeAdapters()

	enricher := service.NewEnricher(refStore, prices, service.EnrichmentConfig{
		DustThreshold:         cfg.Pipeline.DustThreshold,
		MissingSymbolMinValue: cfg.Pipeline.MissingSymbolMinValue,
	})
	betas := service.NewBetaEstimator(chain, cfg.History.Benchmark, cfg.History.LookbackDays)
	pipeline := service.NewPipeline(refStore, adapters, enricher, betas, ledgerRepo, txRepo, snapshotRepo)

	// One-time run mode
	if len(os.Args) > 1 && os.Args[1] == "run" {
		logger.Info("Running snapshot immediately...")
		result, err := pipeline.Run(context.Background())
		if err != nil {
			logger.WithError(err).Fatal("Snapshot failed")
		}
		logger.WithFields(logging.Fields{
			"run_id":    result.RunID,
			"positions": len(result.Positions),
			"failed":    result.WalletsFailed,
		}).Info("Snapshot complete")
		return
	}

	scheduler, err := service.NewScheduler(pipeline, cfg.Pipeline.RunAt)
	if err != nil {
		logger.WithError(err).Fatal("Invalid snapshot schedule")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down snapshot worker...")
	if err := scheduler.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	logger.Info("Worker stopped")
}

// buildAdapters registers one adapter per wallet type. EVM and Solana
// wallets go through Octav when a token is configured; without one, EVM
// wallets fall back to direct RPC balance reads.
func buildAdapters(cfg *config.Config, refStore *refdata.Store, logger *logging.Logger) (*adapter.Registry, func(), error) {
	p := cfg.Providers
	closeFn := func() {}

	dydx := adapter.NewDydxAdapter(
		newClient("dydx", p.DydxIndexerURL, providerRPS),
		cfg.Pipeline.ClosedLookback,
	)
	blockCypher := newClient("blockcypher", p.BlockCypherURL, providerRPS)
	btc, err := adapter.NewBlockCypherAdapter(blockCypher, p.BlockCypherToken, types.WalletBTC)
	if err != nil {
		return nil, closeFn, err
	}
	doge, err := adapter.NewBlockCypherAdapter(blockCypher, p.BlockCypherToken, types.WalletDoge)
	if err != nil {
		return nil, closeFn, err
	}
	circle := adapter.NewCircleAdapter(
		newClient("circle", p.CircleURL, providerRPS, adapter.WithBearerToken(p.CircleAPIKey)),
	)

	adapters := []adapter.WalletAdapter{dydx, btc, doge, circle, adapter.NewManualAdapter(refStore)}

	if p.OctavToken != "" {
		octav := newClient("octav", p.OctavURL, providerRPS, adapter.WithBearerToken(p.OctavToken))
		adapters = append(adapters,
			adapter.NewOctavAdapter(octav, types.WalletEVM),
			adapter.NewOctavAdapter(octav, types.WalletSolana),
		)
		return adapter.NewRegistry(adapters...), closeFn, nil
	}

	logger.Warn("OCTAV_API_TOKEN not set: EVM wallets use RPC balances and SOL wallets are unsupported")
	providers := make(map[types.ChainID]adapter.DataProvider, len(p.EVMChains))
	for name, chainCfg := range p.EVMChains {
		provider, err := adapter.NewRPCProvider(chainCfg.RPCPrimary, chainCfg.RPCSecondary)
		if err != nil {
			logger.WithError(err).WithField("chain", name).Warn("Failed to create provider for chain")
			continue
		}
		providers[types.NormalizeChainID(name)] = provider
	}
	evm := adapter.NewEVMAdapter(providers, nil)
	adapters = append(adapters, evm)
	return adapter.NewRegistry(adapters...), evm.Close, nil
}

// newClient builds a paced provider client guarded by a circuit breaker
func newClient(provider, baseURL string, rps float64, opts ...adapter.ClientOption) *adapter.JSONClient {
	opts = append(opts, adapter.WithCircuitBreaker(circuitbreaker.DefaultConfig(provider)))
	return adapter.NewJSONClient(provider, baseURL, rps, opts...)
}
