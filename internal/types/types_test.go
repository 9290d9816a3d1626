package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionID(t *testing.T) {
	id := PositionID("w1", ChainDydx, "dydxv4", PositionPerps, "ETH")
	assert.Equal(t, "w1-dydx-dydxv4-perps-ETH", id)
}

func TestNormalizeChainID(t *testing.T) {
	tests := []struct {
		in   string
		want ChainID
	}{
		{"ETH", ChainEthereum},
		{" arbitrum ", ChainArbitrum},
		{"bitcoin", ChainBitcoin},
		{"Solana", ChainSolana},
		{"zksync", ChainID("zksync")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeChainID(tt.in))
		})
	}
}

func TestAssetType_IsStable(t *testing.T) {
	assert.True(t, AssetStable.IsStable())
	assert.True(t, AssetType("stable").IsStable())
	assert.False(t, AssetType("MAJOR").IsStable())
	assert.False(t, AssetType("").IsStable())
}

func TestRatio_JSON(t *testing.T) {
	t.Run("NaN encodes as null", func(t *testing.T) {
		data, err := json.Marshal(struct {
			B Ratio `json:"b"`
		}{NaN()})
		require.NoError(t, err)
		assert.JSONEq(t, `{"b":null}`, string(data))
	})

	t.Run("finite value round trips", func(t *testing.T) {
		var r Ratio
		require.NoError(t, json.Unmarshal([]byte("1.25"), &r))
		assert.Equal(t, Ratio(1.25), r)
	})

	t.Run("null decodes as NaN", func(t *testing.T) {
		var r Ratio
		require.NoError(t, json.Unmarshal([]byte("null"), &r))
		assert.True(t, math.IsNaN(float64(r)))
	})
}

func TestNewPosition(t *testing.T) {
	w := WalletRef{ID: "w1", Address: "0xabc", Type: WalletEVM, Strategy: "hodl"}
	p := NewPosition(w, ChainEthereum, "wallet", PositionHodl, "ETH", 2)

	assert.Equal(t, "w1-ethereum-wallet-hodl-ETH", p.PositionID)
	assert.Equal(t, StatusOpen, p.Status)
	assert.True(t, p.BetaDaily.IsNaN())
	assert.True(t, p.BetaWeekly.IsNaN())
	assert.Nil(t, p.Price)
	assert.Equal(t, 0.0, p.ValueOrZero())
}
