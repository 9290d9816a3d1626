package refdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

type memLoader struct {
	wallets   []*models.Wallet
	assets    []*models.AssetInfo
	manual    []*models.ManualPosition
	overrides []*models.PositionOverride
	upserted  []string
	failAsset bool
}

func (m *memLoader) LoadWallets(ctx context.Context) ([]*models.Wallet, error) {
	return m.wallets, nil
}

func (m *memLoader) LoadAssets(ctx context.Context) ([]*models.AssetInfo, error) {
	if m.failAsset {
		return nil, errors.New("db down")
	}
	return m.assets, nil
}

func (m *memLoader) LoadManualPositions(ctx context.Context) ([]*models.ManualPosition, error) {
	return m.manual, nil
}

func (m *memLoader) LoadOverrides(ctx context.Context) ([]*models.PositionOverride, error) {
	return m.overrides, nil
}

func (m *memLoader) UpsertMissingAssets(ctx context.Context, symbols []string) error {
	m.upserted = append(m.upserted, symbols...)
	return nil
}

func fixtureLoader() *memLoader {
	return &memLoader{
		wallets: []*models.Wallet{
			{WalletID: "b", Type: types.WalletEVM, Active: true},
			{WalletID: "a", Type: types.WalletDydx, Active: true},
			{WalletID: "old", Type: types.WalletBTC, Active: false},
		},
		assets: []*models.AssetInfo{
			{Symbol: "eth", BaseAsset: "ETH", AssetType: "L1", CoinGeckoID: "ethereum"},
			{Symbol: "USDC", BaseAsset: "USDC", AssetType: types.AssetStable},
		},
		manual: []*models.ManualPosition{
			{WalletID: "m", Symbol: "EIGEN", Amount: 10},
			{WalletID: "m", Symbol: "SOL", Amount: 1},
		},
		overrides: []*models.PositionOverride{
			{PositionID: "a-dydx-dydxv4-perps-BTC", Position: "BTC basis", PositionType: types.PositionPerps},
		},
	}
}

func TestStoreLoad(t *testing.T) {
	s := NewStore(fixtureLoader())
	assert.True(t, s.LoadedAt().IsZero())
	require.NoError(t, s.Load(context.Background()))
	assert.False(t, s.LoadedAt().IsZero())

	wallets := s.Wallets()
	require.Len(t, wallets, 2)
	assert.Equal(t, "a", wallets[0].WalletID)
	assert.Equal(t, "b", wallets[1].WalletID)

	eth, ok := s.Asset("ETH")
	require.True(t, ok)
	assert.Equal(t, "ETH", eth.BaseAsset)
	assert.Equal(t, "ethereum", s.CoinGeckoID("eth"))
	assert.Equal(t, "", s.CoinGeckoID("DOGE"))

	assert.Len(t, s.ManualPositions("m"), 2)
	assert.Empty(t, s.ManualPositions("none"))

	o, ok := s.Override("a-dydx-dydxv4-perps-BTC")
	require.True(t, ok)
	assert.Equal(t, "BTC basis", o.Position)
}

func TestStoreLoadFailureKeepsPrevious(t *testing.T) {
	loader := fixtureLoader()
	s := NewStore(loader)
	require.NoError(t, s.Load(context.Background()))

	loader.failAsset = true
	loader.wallets = nil
	require.Error(t, s.Reload(context.Background()))
	assert.Len(t, s.Wallets(), 2)
}

func TestAddMissingSymbols(t *testing.T) {
	loader := fixtureLoader()
	s := NewStore(loader)
	require.NoError(t, s.Load(context.Background()))

	added, err := s.AddMissingSymbols(context.Background(), []string{"eth", "pepe", "PEPE", "wif", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"PEPE", "WIF"}, added)
	assert.Equal(t, []string{"PEPE", "WIF"}, loader.upserted)

	pepe, ok := s.Asset("PEPE")
	require.True(t, ok)
	assert.True(t, pepe.IsPlaceholder())

	added, err = s.AddMissingSymbols(context.Background(), []string{"PEPE"})
	require.NoError(t, err)
	assert.Empty(t, added)
}
