package adapter

import (
	"context"
	"strings"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

// ManualPositionSource supplies operator-entered positions per wallet
type ManualPositionSource interface {
	ManualPositions(walletID string) []*models.ManualPosition
}

// ManualAdapter turns reference-data positions into snapshot positions.
// Prices are left empty for the enrichment stage.
type ManualAdapter struct {
	source ManualPositionSource
}

// NewManualAdapter creates an adapter reading from source
func NewManualAdapter(source ManualPositionSource) *ManualAdapter {
	return &ManualAdapter{source: source}
}

// Type implements WalletAdapter
func (a *ManualAdapter) Type() types.WalletType {
	return types.WalletManual
}

// Fetch implements WalletAdapter
func (a *ManualAdapter) Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error) {
	return a.source.ManualPositions(wallet.WalletID), nil
}

// Normalize implements WalletAdapter
func (a *ManualAdapter) Normalize(wallet *models.Wallet, raw RawData) (*Result, error) {
	rows, ok := raw.([]*models.ManualPosition)
	if !ok {
		return nil, ErrUnexpectedPayload
	}

	res := &Result{}
	for _, row := range rows {
		positionType := types.PositionType(strings.ToLower(string(row.PositionType)))
		if positionType == "" {
			positionType = types.PositionHodl
		}
		p := types.NewPosition(wallet.Ref(), types.NormalizeChainID(string(row.Chain)), row.Protocol, positionType, strings.ToUpper(row.Symbol), row.Amount)
		p.CostBasis = row.CostBasis
		res.Positions = append(res.Positions, p)
	}
	return res, nil
}
