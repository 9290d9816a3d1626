package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

type fakeCatalog struct {
	assets    map[string]*models.AssetInfo
	overrides map[string]*models.PositionOverride
	added     []string
	addErr    error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		assets:    make(map[string]*models.AssetInfo),
		overrides: make(map[string]*models.PositionOverride),
	}
}

func (c *fakeCatalog) with(symbol, base string, assetType types.AssetType) *fakeCatalog {
	c.assets[symbol] = &models.AssetInfo{Symbol: symbol, BaseAsset: base, AssetType: assetType, Sector: "L1", RewardType: "none"}
	return c
}

func (c *fakeCatalog) Asset(symbol string) (*models.AssetInfo, bool) {
	a, ok := c.assets[strings.ToUpper(symbol)]
	return a, ok
}

func (c *fakeCatalog) Override(positionID string) (*models.PositionOverride, bool) {
	o, ok := c.overrides[positionID]
	return o, ok
}

func (c *fakeCatalog) AddMissingSymbols(ctx context.Context, symbols []string) ([]string, error) {
	if c.addErr != nil {
		return nil, c.addErr
	}
	var added []string
	for _, s := range symbols {
		if _, ok := c.assets[s]; !ok {
			c.assets[s] = &models.AssetInfo{Symbol: s}
			added = append(added, s)
		}
	}
	c.added = append(c.added, added...)
	return added, nil
}

type fakePrices struct {
	prices    map[string]float64
	requested []string
}

func (f *fakePrices) FetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	f.requested = append(f.requested, symbols...)
	out := make(map[string]float64)
	for _, s := range symbols {
		if v, ok := f.prices[strings.ToUpper(s)]; ok {
			out[strings.ToUpper(s)] = v
		}
	}
	return out
}

func walletPos(protocol string, positionType types.PositionType, symbol string, amount float64) *types.Position {
	return types.NewPosition(types.WalletRef{ID: "w"}, types.ChainEthereum, protocol, positionType, symbol, amount)
}

func TestMergeAssetInfo(t *testing.T) {
	cat := newFakeCatalog().with("WETH", "ETH", "LARGE_CAP")
	cat.assets["NEW"] = &models.AssetInfo{Symbol: "NEW"}

	weth := walletPos("wallet", types.PositionHodl, "WETH", 1)
	placeholder := walletPos("wallet", types.PositionHodl, "NEW", 1)
	placeholder.BaseAsset = "PROVIDER"

	NewEnricher(cat, nil, EnrichmentConfig{}).MergeAssetInfo([]*types.Position{weth, placeholder})

	assert.Equal(t, "ETH", weth.BaseAsset)
	assert.Equal(t, types.AssetType("LARGE_CAP"), weth.AssetType)
	assert.Equal(t, "L1", weth.Sector)
	assert.Equal(t, "PROVIDER", placeholder.BaseAsset)
}

func TestFillPrices(t *testing.T) {
	cat := newFakeCatalog().with("STETH", "ETH", "LARGE_CAP")
	prices := &fakePrices{prices: map[string]float64{"BTC": 60000, "ETH": 3000}}

	priced := walletPos("aave", types.PositionSupply, "LINK", 1)
	priced.Price = types.Float(15)
	samePrice := walletPos("wallet", types.PositionHodl, "LINK", 2)
	btc := walletPos("wallet", types.PositionHodl, "BTC", 1)
	steth := walletPos("lido", types.PositionHodl, "STETH", 1)
	steth.BaseAsset = "ETH"
	unknown := walletPos("wallet", types.PositionHodl, "ZZZ", 1)

	NewEnricher(cat, prices, EnrichmentConfig{}).FillPrices(context.Background(),
		[]*types.Position{priced, samePrice, btc, steth, unknown})

	assert.Equal(t, 15.0, *samePrice.Price)
	assert.Equal(t, 60000.0, *btc.Price)
	assert.Equal(t, 3000.0, *steth.Price)
	assert.Nil(t, unknown.Price)

	sort.Strings(prices.requested)
	assert.Equal(t, []string{"BTC", "ETH", "STETH", "ZZZ"}, prices.requested)
}

func TestFillDerived(t *testing.T) {
	spot := walletPos("wallet", types.PositionHodl, "ETH", 2)
	spot.Price = types.Float(100)

	perp := walletPos("dydxv4", types.PositionPerps, "BTC", -1)
	perp.Price = types.Float(50)

	negCash := walletPos("wallet", types.PositionCash, "USDC", -40)
	negCash.Price = types.Float(1)
	negCash.AssetType = types.AssetStable

	borrow := walletPos("aave", types.PositionBorrow, "WETH", -1)
	borrow.Value = types.Float(-300)

	unpriced := walletPos("wallet", types.PositionHodl, "ZZZ", 1)

	FillDerived([]*types.Position{spot, perp, negCash, borrow, unpriced})

	assert.Equal(t, 200.0, *spot.Value)
	assert.Equal(t, 200.0, *spot.Equity)
	assert.Equal(t, 200.0, *spot.Notional)

	assert.Equal(t, -50.0, *perp.Value)
	assert.Nil(t, perp.Equity, "perp equity comes from margin attribution")
	assert.Equal(t, 50.0, *perp.Notional)

	assert.Equal(t, -40.0, *negCash.Equity)
	assert.Equal(t, 0.0, *negCash.Notional)

	assert.Equal(t, 300.0, *borrow.Notional)
	assert.Equal(t, -300.0, *borrow.Equity)

	assert.Nil(t, unpriced.Value)
	assert.Nil(t, unpriced.Notional)
}

func TestNotional(t *testing.T) {
	assert.Equal(t, 0.0, Notional(types.AssetStable, -10))
	assert.Equal(t, 10.0, Notional(types.AssetStable, 10))
	assert.Equal(t, 10.0, Notional("LARGE_CAP", -10))
	assert.Equal(t, 0.0, Notional("", 0))
}

func TestDropDust(t *testing.T) {
	keep := walletPos("wallet", types.PositionHodl, "ETH", 1)
	keep.Value = types.Float(-1)
	dust := walletPos("wallet", types.PositionHodl, "SHIB", 1)
	dust.Value = types.Float(0.99)
	closed := walletPos("dydxv4", types.PositionPerps, "SOL", 0)
	closed.Status = types.StatusClosed
	closed.Value = types.Float(0)
	unpriced := walletPos("wallet", types.PositionHodl, "ZZZ", 1)

	out := DropDust(context.Background(), []*types.Position{keep, dust, closed, unpriced}, 1)
	require.Len(t, out, 3)
	assert.Equal(t, []*types.Position{keep, closed, unpriced}, out)
}

func TestRegisterMissingSymbols(t *testing.T) {
	cat := newFakeCatalog().with("ETH", "ETH", "LARGE_CAP")
	big := walletPos("wallet", types.PositionHodl, "NEWCOIN", 10)
	big.Value = types.Float(50)
	small := walletPos("wallet", types.PositionHodl, "TINY", 1)
	small.Value = types.Float(4)
	known := walletPos("wallet", types.PositionHodl, "ETH", 1)
	known.Value = types.Float(1000)

	e := NewEnricher(cat, nil, EnrichmentConfig{MissingSymbolMinValue: 5})
	e.RegisterMissingSymbols(context.Background(), []*types.Position{big, small, known})

	assert.Equal(t, []string{"NEWCOIN"}, cat.added)
}

func TestRegisterMissingSymbols_ErrorIsContained(t *testing.T) {
	cat := newFakeCatalog()
	cat.addErr = errors.New("db down")
	p := walletPos("wallet", types.PositionHodl, "NEWCOIN", 10)
	p.Value = types.Float(50)

	assert.NotPanics(t, func() {
		NewEnricher(cat, nil, EnrichmentConfig{MissingSymbolMinValue: 5}).RegisterMissingSymbols(context.Background(), []*types.Position{p})
	})
}

func TestDisplayLabel(t *testing.T) {
	cash := walletPos("circle", types.PositionCash, "USDC", 100)
	cash.AssetType = types.AssetStable
	cash.RewardType = "none"

	rewardStable := walletPos("wallet", types.PositionHodl, "SUSDE", 100)
	rewardStable.AssetType = types.AssetStable
	rewardStable.RewardType = "yield"

	lending := walletPos("aave", types.PositionSupply, "USDC", 100)
	lending.AssetType = types.AssetStable

	hodl := walletPos("wallet", types.PositionHodl, "ETH", 1)

	assert.Equal(t, "cash", DisplayLabel(cash))
	assert.Equal(t, "SUSDE", DisplayLabel(rewardStable))
	assert.Equal(t, "aave - USDC", DisplayLabel(lending))
	assert.Equal(t, "ETH", DisplayLabel(hodl))
}

func TestLabelAppliesOverrides(t *testing.T) {
	p := walletPos("pendle", types.PositionHodl, "PT-SUSDE", 10)
	cat := newFakeCatalog()
	cat.overrides[p.PositionID] = &models.PositionOverride{PositionID: p.PositionID, Position: "pendle fixed", PositionType: types.PositionLock}

	other := walletPos("pendle", types.PositionHodl, "YT-SUSDE", 10)

	NewEnricher(cat, nil, EnrichmentConfig{}).Label([]*types.Position{p, other})

	assert.Equal(t, "pendle fixed", p.Position)
	assert.Equal(t, types.PositionLock, p.PositionType)
	assert.Equal(t, "pendle - YT-SUSDE", other.Position)
	assert.Equal(t, types.PositionHodl, other.PositionType)
}

func TestEnrich(t *testing.T) {
	cat := newFakeCatalog().
		with("ETH", "ETH", "LARGE_CAP").
		with("USDC", "USDC", types.AssetStable)
	prices := &fakePrices{prices: map[string]float64{"ETH": 2000, "USDC": 1}}

	eth := walletPos("wallet", types.PositionHodl, "ETH", 0.5)
	usdc := walletPos("wallet", types.PositionHodl, "USDC", 0.4)

	out := NewEnricher(cat, prices, EnrichmentConfig{DustThreshold: 1, MissingSymbolMinValue: 5}).
		Enrich(context.Background(), []*types.Position{eth, usdc})

	require.Len(t, out, 1)
	assert.Equal(t, "ETH", out[0].Position)
	assert.Equal(t, 1000.0, *out[0].Equity)
}
