package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-aggregator/internal/types"
)

func valued(symbol string, amount, value float64) *types.Position {
	p := walletPos("wallet", types.PositionHodl, symbol, amount)
	p.Value = types.Float(value)
	return p
}

func TestDiff_NoPreviousSnapshot(t *testing.T) {
	eth := valued("ETH", 2, 6000)
	btc := valued("BTC", 1, 60000)
	btc.CostBasis = types.Float(40000)

	stats := Diff([]*types.Position{eth, btc}, nil)

	assert.Equal(t, DiffStats{New: 2}, stats)
	assert.Equal(t, 2.0, eth.AmountChange)
	assert.Equal(t, 6000.0, *eth.CostBasis)
	assert.Equal(t, 1.0, btc.AmountChange)
	assert.Equal(t, 40000.0, *btc.CostBasis, "provider cost basis is kept for new positions")
}

func TestDiff_PersistedPosition(t *testing.T) {
	prev := valued("ETH", 2, 5000)
	prev.CostBasis = types.Float(4000)

	cur := valued("ETH", 3.5, 9000)
	stats := Diff([]*types.Position{cur}, IndexByID([]*types.Position{prev}))

	assert.Equal(t, DiffStats{Persisted: 1}, stats)
	assert.InDelta(t, 1.5, cur.AmountChange, 1e-12)
	assert.Equal(t, 4000.0, *cur.CostBasis)
}

func TestDiff_PersistedWithoutPreviousCostBasis(t *testing.T) {
	prev := walletPos("wallet", types.PositionHodl, "ETH", 2)
	cur := valued("ETH", 2, 6100)

	Diff([]*types.Position{cur}, IndexByID([]*types.Position{prev}))

	assert.Equal(t, 0.0, cur.AmountChange)
	require.NotNil(t, cur.CostBasis)
	assert.Equal(t, 6100.0, *cur.CostBasis)
}

func TestDiff_DroppedAndReappearing(t *testing.T) {
	gone := valued("SOL", 10, 1500)
	kept := valued("ETH", 1, 3000)
	kept.CostBasis = types.Float(2500)

	// LINK was held two days ago but not yesterday, so it is new today
	link := valued("LINK", 5, 75)

	stats := Diff([]*types.Position{valued("ETH", 1, 3100), link}, IndexByID([]*types.Position{gone, kept}))

	assert.Equal(t, DiffStats{New: 1, Persisted: 1, Dropped: 1}, stats)
	assert.Equal(t, 5.0, link.AmountChange)
	assert.Equal(t, 75.0, *link.CostBasis)
}

func TestDiff_UnpricedNewPosition(t *testing.T) {
	p := walletPos("wallet", types.PositionHodl, "ZZZ", 3)
	Diff([]*types.Position{p}, map[string]*types.Position{})
	assert.Equal(t, 3.0, p.AmountChange)
	assert.Nil(t, p.CostBasis)
}

func TestIndexByID(t *testing.T) {
	a := valued("ETH", 1, 1)
	b := valued("BTC", 1, 1)
	idx := IndexByID([]*types.Position{a, b})
	assert.Len(t, idx, 2)
	assert.Same(t, a, idx[a.PositionID])
}
