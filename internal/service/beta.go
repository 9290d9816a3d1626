package service

import (
	"context"
	"math"
	"sort"
	"strings"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/history"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/series"
	"github.com/portfolio-aggregator/internal/types"
)

// AssetBeta is the estimate for one base asset
type AssetBeta struct {
	Daily  float64
	Weekly float64
}

// MissingBeta is a base asset no history source could serve
type MissingBeta struct {
	BaseAsset string
	Positions int
	ValueUSD  float64
}

// BetaReport summarizes one estimation pass
type BetaReport struct {
	Betas   map[string]AssetBeta
	Missing []MissingBeta
}

// BetaEstimator computes daily and weekly beta of every base asset in a
// snapshot against a benchmark
type BetaEstimator struct {
	source    history.Source
	benchmark string
	lookback  int
}

// NewBetaEstimator creates an estimator. source is usually a history.Chain
// so each asset falls back through the configured sources independently.
func NewBetaEstimator(source history.Source, benchmark string, lookbackDays int) *BetaEstimator {
	return &BetaEstimator{
		source:    source,
		benchmark: strings.ToUpper(benchmark),
		lookback:  lookbackDays,
	}
}

// Estimate attaches beta_daily and beta_weekly to every position. Each
// asset is regressed against the benchmark from the same history source
// that served the asset. Assets without usable history get NaN; STABLE
// positions are forced to 0 after computation.
func (e *BetaEstimator) Estimate(ctx context.Context, positions []*types.Position) *BetaReport {
	logger := logging.FromContext(ctx).WithField("benchmark", e.benchmark)
	report := &BetaReport{Betas: make(map[string]AssetBeta)}

	assets := baseAssets(positions)
	if len(assets) == 0 {
		return report
	}

	benchmark, benchSrc, err := history.FetchFrom(ctx, e.source, e.benchmark, e.lookback)
	if err != nil {
		logger.WithError(err).Error("Benchmark history unavailable, every beta is undefined")
	}
	benchmarks := map[string]benchmarkResult{}
	if err == nil {
		benchmarks[benchSrc.Name()] = benchmarkResult{prices: benchmark}
	}

	for _, asset := range assets {
		beta := AssetBeta{Daily: math.NaN(), Weekly: math.NaN()}
		if err == nil {
			beta = e.estimateOne(ctx, asset, benchmarks)
		}
		report.Betas[asset] = beta
	}

	for _, p := range positions {
		beta := report.Betas[baseAsset(p)]
		p.BetaDaily = types.Ratio(beta.Daily)
		p.BetaWeekly = types.Ratio(beta.Weekly)
	}
	ApplyStableOverride(positions)

	report.Missing = missingBetas(positions)
	for _, m := range report.Missing {
		logger.WithFields(logging.Fields{
			"base_asset": m.BaseAsset,
			"positions":  m.Positions,
			"value_usd":  m.ValueUSD,
		}).Warn("Beta unavailable for asset")
	}
	return report
}

// benchmarkResult caches one source's benchmark fetch, failures included
type benchmarkResult struct {
	prices series.Series
	err    error
}

func (e *BetaEstimator) estimateOne(ctx context.Context, asset string, benchmarks map[string]benchmarkResult) AssetBeta {
	undefined := AssetBeta{Daily: math.NaN(), Weekly: math.NaN()}
	logger := logging.FromContext(ctx).WithField("base_asset", asset)

	prices, src, err := history.FetchFrom(ctx, e.source, asset, e.lookback)
	if err != nil {
		logger = logger.WithError(err)
		if apperrors.IsDataGap(err) {
			logger.Debug("No usable history")
		} else {
			logger.Warn("History fetch failed")
		}
		return undefined
	}

	bench, ok := benchmarks[src.Name()]
	if !ok {
		bench = e.fetchBenchmark(ctx, src)
		benchmarks[src.Name()] = bench
	}
	if bench.err != nil {
		logger.WithError(bench.err).WithField("source", src.Name()).Warn("Benchmark unavailable from the source serving this asset")
		return undefined
	}
	return AssetBeta{
		Daily:  series.DailyBeta(prices, bench.prices, e.lookback),
		Weekly: series.WeeklyBeta(prices, bench.prices, e.lookback),
	}
}

// fetchBenchmark reads the benchmark directly from one source
func (e *BetaEstimator) fetchBenchmark(ctx context.Context, src history.Source) benchmarkResult {
	prices, err := src.Fetch(ctx, e.benchmark, e.lookback)
	if err != nil {
		return benchmarkResult{err: err}
	}
	prices = prices.Normalize()
	if !prices.Usable() {
		return benchmarkResult{err: apperrors.NewMissingHistoryError(e.benchmark, src.Name(), nil)}
	}
	return benchmarkResult{prices: prices}
}

// ApplyStableOverride sets both betas of STABLE positions to 0
func ApplyStableOverride(positions []*types.Position) {
	for _, p := range positions {
		if p.AssetType.IsStable() {
			p.BetaDaily = 0
			p.BetaWeekly = 0
		}
	}
}

// baseAsset is the beta key of a position; symbol stands in until metadata is known
func baseAsset(p *types.Position) string {
	if p.BaseAsset != "" {
		return strings.ToUpper(p.BaseAsset)
	}
	return strings.ToUpper(p.Symbol)
}

func baseAssets(positions []*types.Position) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range positions {
		a := baseAsset(p)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// missingBetas groups positions left with an undefined daily beta by base asset
func missingBetas(positions []*types.Position) []MissingBeta {
	byAsset := make(map[string]*MissingBeta)
	for _, p := range positions {
		if !p.BetaDaily.IsNaN() {
			continue
		}
		a := baseAsset(p)
		m, ok := byAsset[a]
		if !ok {
			m = &MissingBeta{BaseAsset: a}
			byAsset[a] = m
		}
		m.Positions++
		m.ValueUSD += p.ValueOrZero()
	}

	out := make([]MissingBeta, 0, len(byAsset))
	for _, m := range byAsset {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ValueUSD != out[j].ValueUSD {
			return math.Abs(out[i].ValueUSD) > math.Abs(out[j].ValueUSD)
		}
		return out[i].BaseAsset < out[j].BaseAsset
	})
	return out
}
