package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

func TestReprocessCurrent(t *testing.T) {
	cat := newFakeCatalog().with("USDE", "USDE", types.AssetStable)
	refdata := &fakeRefdata{fakeCatalog: cat}

	usde := walletPos("wallet", types.PositionHodl, "USDE", -20)
	usde.Value = types.Float(-20)
	usde.Notional = types.Float(20)
	usde.BetaDaily = 0.05
	usde.BetaWeekly = types.NaN()

	lp := walletPos("uniswap", types.PositionHodl, "UNI-V3", 1)
	cat.overrides[lp.PositionID] = &models.PositionOverride{PositionID: lp.PositionID, Position: "ETH/USDC LP", PositionType: types.PositionRelay}

	current := &memCurrent{positions: []*types.Position{usde, lp}}
	ledger := &memLedger{byDate: map[time.Time][]*types.Position{}}

	res, err := NewReprocessor(refdata, current, ledger).ReprocessCurrent(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, refdata.loads)
	assert.Equal(t, 2, res.Positions)
	assert.Equal(t, res.RunID, current.runID)
	assert.Equal(t, res.RunID, ledger.runID)
	assert.Len(t, ledger.appended, 2)

	assert.Equal(t, types.AssetStable, usde.AssetType)
	assert.Equal(t, 0.0, *usde.Notional)
	assert.Equal(t, types.Ratio(0), usde.BetaDaily)
	assert.Equal(t, types.Ratio(0), usde.BetaWeekly)
	assert.Equal(t, "cash", usde.Position)

	assert.Equal(t, "ETH/USDC LP", lp.Position)
	assert.Equal(t, types.PositionRelay, lp.PositionType)
}

func TestReprocessCurrent_Empty(t *testing.T) {
	ledger := &memLedger{}
	res, err := NewReprocessor(&fakeRefdata{fakeCatalog: newFakeCatalog()}, &memCurrent{}, ledger).ReprocessCurrent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Positions)
	assert.Empty(t, ledger.appended)
}

func TestReprocessDate(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cat := newFakeCatalog().with("WBTC", "BTC", "LARGE_CAP")
	wbtc := walletPos("wallet", types.PositionHodl, "WBTC", 1)
	ledger := &memLedger{byDate: map[time.Time][]*types.Position{day: {wbtc}}}
	current := &memCurrent{}

	res, err := NewReprocessor(&fakeRefdata{fakeCatalog: cat}, current, ledger).ReprocessDate(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Positions)
	assert.Equal(t, "BTC", wbtc.BaseAsset)
	assert.Len(t, ledger.appended, 1)
	assert.Empty(t, current.runID, "past dates leave the current snapshot alone")
}

func TestReprocess_LoadFailure(t *testing.T) {
	refdata := &fakeRefdata{fakeCatalog: newFakeCatalog(), loadErr: errors.New("down")}
	_, err := NewReprocessor(refdata, &memCurrent{}, &memLedger{}).ReprocessCurrent(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}
