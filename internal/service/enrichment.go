package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

// AssetCatalog is the reference data enrichment reads and extends
type AssetCatalog interface {
	Asset(symbol string) (*models.AssetInfo, bool)
	Override(positionID string) (*models.PositionOverride, bool)
	AddMissingSymbols(ctx context.Context, symbols []string) ([]string, error)
}

// PriceFetcher returns USD spot prices for the symbols it can resolve
type PriceFetcher interface {
	FetchPrices(ctx context.Context, symbols []string) map[string]float64
}

// EnrichmentConfig holds gap-filling thresholds
type EnrichmentConfig struct {
	// DustThreshold drops positions with |value| below it
	DustThreshold float64
	// MissingSymbolMinValue is the value above which unknown symbols are registered
	MissingSymbolMinValue float64
}

// cashProtocols hold plain balances; stable holdings there are labelled cash
var cashProtocols = map[string]bool{
	"wallet": true,
	"gemini": true,
	"circle": true,
	"dydxv4": true,
}

// Enricher merges asset metadata into normalized positions and fills
// price, value, equity and notional gaps
type Enricher struct {
	catalog AssetCatalog
	prices  PriceFetcher
	cfg     EnrichmentConfig
}

// NewEnricher creates a new enricher
func NewEnricher(catalog AssetCatalog, prices PriceFetcher, cfg EnrichmentConfig) *Enricher {
	return &Enricher{catalog: catalog, prices: prices, cfg: cfg}
}

// Enrich runs every enrichment step in order and returns the positions that
// survive the dust filter
func (e *Enricher) Enrich(ctx context.Context, positions []*types.Position) []*types.Position {
	e.MergeAssetInfo(positions)
	e.FillPrices(ctx, positions)
	FillDerived(positions)
	positions = DropDust(ctx, positions, e.cfg.DustThreshold)
	e.RegisterMissingSymbols(ctx, positions)
	e.Label(positions)
	return positions
}

// MergeAssetInfo copies base asset, asset type, sector and reward type from
// the catalog. Unknown symbols keep whatever the provider set.
func (e *Enricher) MergeAssetInfo(positions []*types.Position) {
	for _, p := range positions {
		info, ok := e.catalog.Asset(p.Symbol)
		if !ok || info.IsPlaceholder() {
			continue
		}
		p.BaseAsset = strings.ToUpper(info.BaseAsset)
		p.AssetType = info.AssetType
		p.Sector = info.Sector
		p.RewardType = info.RewardType
	}
}

// FillPrices fills nil prices, first from other positions of the same
// symbol in the snapshot, then from the price fetcher by symbol and
// finally by base asset
func (e *Enricher) FillPrices(ctx context.Context, positions []*types.Position) {
	known := make(map[string]float64)
	for _, p := range positions {
		if p.Price != nil && !math.IsNaN(*p.Price) {
			if _, ok := known[p.Symbol]; !ok {
				known[p.Symbol] = *p.Price
			}
		}
	}

	var wanted []string
	seen := make(map[string]bool)
	want := func(s string) {
		if s == "" || seen[s] {
			return
		}
		if _, ok := known[s]; ok {
			return
		}
		seen[s] = true
		wanted = append(wanted, s)
	}
	for _, p := range positions {
		if p.Price != nil {
			continue
		}
		want(p.Symbol)
		if p.BaseAsset != "" && p.BaseAsset != p.Symbol {
			want(p.BaseAsset)
		}
	}

	fetched := map[string]float64{}
	if len(wanted) > 0 && e.prices != nil {
		logging.FromContext(ctx).WithField("symbols", len(wanted)).Info("Fetching prices for unpriced positions")
		fetched = e.prices.FetchPrices(ctx, wanted)
	}

	lookup := func(s string) (float64, bool) {
		if v, ok := known[s]; ok {
			return v, true
		}
		v, ok := fetched[strings.ToUpper(s)]
		return v, ok
	}
	for _, p := range positions {
		if p.Price != nil {
			continue
		}
		if v, ok := lookup(p.Symbol); ok {
			p.Price = types.Float(v)
		} else if v, ok := lookup(p.BaseAsset); ok && p.BaseAsset != "" {
			p.Price = types.Float(v)
		}
	}
}

// FillDerived fills value from amount and price, equity from value for
// non-derivative positions, and notional as |value| except for negative
// stable balances which carry no notional
func FillDerived(positions []*types.Position) {
	for _, p := range positions {
		if p.Value == nil && p.Price != nil {
			p.Value = types.Float(p.Amount * *p.Price)
		}
		if p.Value == nil {
			continue
		}
		if p.Equity == nil && !p.IsDerivative() {
			p.Equity = types.Float(*p.Value)
		}
		p.Notional = types.Float(Notional(p.AssetType, *p.Value))
	}
}

// Notional is the absolute exposure of a value; negative stable balances
// collapse to 0
func Notional(assetType types.AssetType, value float64) float64 {
	if assetType.IsStable() && value < 0 {
		return 0
	}
	return math.Abs(value)
}

// DropDust removes positions whose |value| is below threshold. Closed
// positions and positions that could not be priced are kept.
func DropDust(ctx context.Context, positions []*types.Position, threshold float64) []*types.Position {
	out := positions[:0]
	dropped := 0
	for _, p := range positions {
		if p.Status != types.StatusClosed && p.Value != nil && math.Abs(*p.Value) < threshold {
			dropped++
			continue
		}
		out = append(out, p)
	}
	if dropped > 0 {
		logging.FromContext(ctx).WithFields(logging.Fields{
			"dropped":   dropped,
			"threshold": threshold,
		}).Debug("Dropped dust positions")
	}
	return out
}

// RegisterMissingSymbols adds placeholder asset rows for symbols without
// metadata whose position value exceeds the configured minimum
func (e *Enricher) RegisterMissingSymbols(ctx context.Context, positions []*types.Position) {
	logger := logging.FromContext(ctx)

	missing := make(map[string]bool)
	var register []string
	for _, p := range positions {
		if info, ok := e.catalog.Asset(p.Symbol); ok && !info.IsPlaceholder() {
			continue
		}
		missing[p.Symbol] = true
		if p.ValueOrZero() > e.cfg.MissingSymbolMinValue && !contains(register, p.Symbol) {
			register = append(register, p.Symbol)
		}
	}
	if len(missing) == 0 {
		return
	}

	symbols := make([]string, 0, len(missing))
	for s := range missing {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	logger.WithError(apperrors.NewMissingAssetError(strings.Join(symbols, ","))).
		Warn("Symbols missing from the asset dictionary, fill them in and run reprocess")

	if len(register) == 0 {
		return
	}
	added, err := e.catalog.AddMissingSymbols(ctx, register)
	if err != nil {
		logger.WithError(err).Error("Failed to register missing symbols")
		return
	}
	if len(added) > 0 {
		logger.WithField("symbols", added).Info("Registered missing symbols")
	}
}

// Label sets the display position of every row and applies overrides
func (e *Enricher) Label(positions []*types.Position) {
	for _, p := range positions {
		p.Position = DisplayLabel(p)
	}
	ApplyOverrides(e.catalog, positions)
}

// DisplayLabel groups a position for reporting: stable balances held in
// cash venues are "cash", protocol positions are "<protocol> - <symbol>"
// and plain wallet holdings use the symbol
func DisplayLabel(p *types.Position) string {
	reward := strings.ToLower(p.RewardType)
	if cashProtocols[p.Protocol] && p.AssetType.IsStable() && (reward == "" || reward == "none") {
		return "cash"
	}
	if p.Protocol != "wallet" {
		return fmt.Sprintf("%s - %s", p.Protocol, p.Symbol)
	}
	return p.Symbol
}

// ApplyOverrides replaces position label and type for ids with an override row
func ApplyOverrides(catalog AssetCatalog, positions []*types.Position) {
	for _, p := range positions {
		o, ok := catalog.Override(p.PositionID)
		if !ok {
			continue
		}
		if o.Position != "" {
			p.Position = o.Position
		}
		if o.PositionType != "" {
			p.PositionType = o.PositionType
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
