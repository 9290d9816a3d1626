package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-aggregator/internal/types"
)

func TestAttributeEquity_ProRata(t *testing.T) {
	got := AttributeEquity(1000, []Claim{{ID: "A", Notional: 300}, {ID: "B", Notional: 700}})
	assert.InDelta(t, 300.0, got["A"], 1e-9)
	assert.InDelta(t, 700.0, got["B"], 1e-9)
}

func TestAttributeEquity_ZeroNotional(t *testing.T) {
	got := AttributeEquity(500, []Claim{{ID: "A", Notional: 0}, {ID: "B", Notional: 0}})
	assert.Equal(t, map[string]float64{"A": 0, "B": 0}, got)
}

func TestAttributeEquity_SinglePosition(t *testing.T) {
	got := AttributeEquity(1234.5, []Claim{{ID: "A", Notional: 42}})
	assert.InDelta(t, 1234.5, got["A"], 1e-9)
}

func TestAttributeEquity_Empty(t *testing.T) {
	assert.Empty(t, AttributeEquity(100, nil))
}

func TestAttributeEquityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	claimsOf := func(notionals []float64) []Claim {
		claims := make([]Claim, len(notionals))
		for i, n := range notionals {
			claims[i] = Claim{ID: fmt.Sprintf("p%d", i), Notional: n}
		}
		return claims
	}

	properties.Property("shares sum to total equity and are non-negative", prop.ForAll(
		func(equity float64, notionals []float64) bool {
			var total float64
			for _, n := range notionals {
				total += n
			}
			if total == 0 {
				return true
			}
			got := AttributeEquity(equity, claimsOf(notionals))
			var sum float64
			for _, v := range got {
				if v < 0 || math.IsNaN(v) {
					return false
				}
				sum += v
			}
			return math.Abs(sum-equity) <= 1e-6*math.Max(1, equity)
		},
		gen.Float64Range(0, 1e7),
		gen.SliceOfN(5, gen.Float64Range(0, 1e6)),
	))

	properties.Property("zero total notional attributes zero everywhere", prop.ForAll(
		func(equity float64, n int) bool {
			got := AttributeEquity(equity, claimsOf(make([]float64, n)))
			for _, v := range got {
				if v != 0 {
					return false
				}
			}
			return len(got) == n
		},
		gen.Float64Range(-1e6, 1e6),
		gen.IntRange(0, 10),
	))

	properties.Property("a single claim receives all equity", prop.ForAll(
		func(equity, notional float64) bool {
			got := AttributeEquity(equity, claimsOf([]float64{notional}))
			return math.Abs(got["p0"]-equity) <= 1e-9*math.Max(1, math.Abs(equity))
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(1e-6, 1e6),
	))

	properties.TestingRun(t)
}

func perp(walletID string, subaccount int, symbol string, amount, price float64) *types.Position {
	p := types.NewPosition(types.WalletRef{ID: walletID}, types.ChainDydx, "dydxv4", types.PositionPerps, symbol, amount)
	p.Subaccount = subaccount
	p.Price = types.Float(price)
	return p
}

func TestAttributeAccounts(t *testing.T) {
	btc := perp("w", 0, "BTC", 1, 300)
	eth := perp("w", 0, "ETH", -7, 100) // short: notional uses |value|
	closed := perp("w", 0, "SOL", 0, 0)
	closed.Status = types.StatusClosed
	broken := types.NewPosition(types.WalletRef{ID: "w"}, types.ChainDydx, "dydxv4", types.PositionPerps, "LINK", 3)

	other := perp("w", 1, "BTC", 2, 50)

	accounts := []*types.MarginAccount{
		{WalletID: "w", Subaccount: 0, Equity: 1000, Positions: []*types.Position{btc, eth, closed, broken}},
		{WalletID: "w", Subaccount: 1, Equity: 80, Positions: []*types.Position{other}},
	}
	AttributeAccounts(context.Background(), accounts)

	require.NotNil(t, btc.Equity)
	assert.InDelta(t, 300.0, *btc.Equity, 1e-9)
	assert.InDelta(t, 700.0, *eth.Equity, 1e-9)
	assert.InDelta(t, 700.0, *eth.Notional, 1e-9)
	assert.InDelta(t, -700.0, *eth.Value, 1e-9)

	assert.Equal(t, 0.0, *closed.Equity)
	assert.Nil(t, broken.Equity)

	// subaccount 1 is attributed on its own
	assert.InDelta(t, 80.0, *other.Equity, 1e-9)
}

func TestAttributeAccounts_AllZeroNotional(t *testing.T) {
	a := perp("w", 0, "BTC", 0, 100)
	b := perp("w", 0, "ETH", 0, 100)
	AttributeAccounts(context.Background(), []*types.MarginAccount{{WalletID: "w", Equity: 500, Positions: []*types.Position{a, b}}})
	assert.Equal(t, 0.0, *a.Equity)
	assert.Equal(t, 0.0, *b.Equity)
}

func TestAttributeAccounts_FlatOpenPerpGetsZeroEquity(t *testing.T) {
	btc := perp("w", 0, "BTC", 1, 100)
	flat := perp("w", 0, "ETH", 0, 0)
	flat.Value = types.Float(0)

	AttributeAccounts(context.Background(), []*types.MarginAccount{{WalletID: "w", Equity: 300, Positions: []*types.Position{btc, flat}}})

	require.NotNil(t, flat.Equity)
	assert.Equal(t, 0.0, *flat.Equity)
	assert.Equal(t, 0.0, *flat.Notional)
	assert.InDelta(t, 300.0, *btc.Equity, 1e-9)
}
