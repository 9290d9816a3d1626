package adapter

import (
	"context"
	"strings"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

type circleMoney struct {
	Amount   jsonDecimal `json:"amount"`
	Currency string      `json:"currency"`
}

type circleBalances struct {
	Data struct {
		Available []circleMoney `json:"available"`
		Unsettled []circleMoney `json:"unsettled"`
	} `json:"data"`
}

// CircleAdapter reads the USD balance of a Circle business account as USDC cash
type CircleAdapter struct {
	client *JSONClient
}

// NewCircleAdapter creates an adapter; the client must carry the API key as bearer token
func NewCircleAdapter(client *JSONClient) *CircleAdapter {
	return &CircleAdapter{client: client}
}

// Type implements WalletAdapter
func (a *CircleAdapter) Type() types.WalletType {
	return types.WalletCircle
}

// Fetch implements WalletAdapter
func (a *CircleAdapter) Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error) {
	var balances circleBalances
	if err := a.client.GetJSON(ctx, "/businessAccount/balances", nil, &balances); err != nil {
		return nil, err
	}
	return &balances, nil
}

// Normalize implements WalletAdapter. Available and unsettled USD are summed.
func (a *CircleAdapter) Normalize(wallet *models.Wallet, raw RawData) (*Result, error) {
	balances, ok := raw.(*circleBalances)
	if !ok {
		return nil, ErrUnexpectedPayload
	}

	var total float64
	for _, list := range [][]circleMoney{balances.Data.Available, balances.Data.Unsettled} {
		for _, m := range list {
			if strings.EqualFold(m.Currency, "USD") {
				total += float64(m.Amount)
			}
		}
	}

	p := types.NewPosition(wallet.Ref(), types.ChainCircle, "circle", types.PositionCash, "USDC", total)
	p.ContractAddress = "USDC"
	p.Position = "cash"
	return &Result{Positions: []*types.Position{p}}, nil
}
