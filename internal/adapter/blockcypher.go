package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

const satoshisPerCoin = 1e8

type blockcypherBalance struct {
	Address      string `json:"address"`
	Balance      int64  `json:"balance"`
	FinalBalance int64  `json:"final_balance"`
	NTx          int    `json:"n_tx"`
}

// BlockCypherAdapter reads BTC or DOGE address balances. Prices are left
// empty for the enrichment stage.
type BlockCypherAdapter struct {
	client *JSONClient
	token  string
	coin   string // btc | doge
	wtype  types.WalletType
	chain  types.ChainID
}

// NewBlockCypherAdapter creates an adapter for walletType (BTC or DOGE)
func NewBlockCypherAdapter(client *JSONClient, token string, walletType types.WalletType) (*BlockCypherAdapter, error) {
	a := &BlockCypherAdapter{client: client, token: token, wtype: walletType}
	switch walletType {
	case types.WalletBTC:
		a.coin, a.chain = "btc", types.ChainBitcoin
	case types.WalletDoge:
		a.coin, a.chain = "doge", types.ChainDoge
	default:
		return nil, fmt.Errorf("blockcypher does not serve wallet type %s", walletType)
	}
	return a, nil
}

// Type implements WalletAdapter
func (a *BlockCypherAdapter) Type() types.WalletType {
	return a.wtype
}

// Fetch implements WalletAdapter
func (a *BlockCypherAdapter) Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error) {
	if strings.TrimSpace(wallet.Address) == "" {
		return nil, NewAdapterError(a.wtype, "Fetch", ErrInvalidAddress, nil)
	}
	var q url.Values
	if a.token != "" {
		q = url.Values{"token": []string{a.token}}
	}
	var bal blockcypherBalance
	path := fmt.Sprintf("/%s/main/addrs/%s/balance", a.coin, url.PathEscape(wallet.Address))
	if err := a.client.GetJSON(ctx, path, q, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// Normalize implements WalletAdapter
func (a *BlockCypherAdapter) Normalize(wallet *models.Wallet, raw RawData) (*Result, error) {
	bal, ok := raw.(*blockcypherBalance)
	if !ok {
		return nil, ErrUnexpectedPayload
	}
	amount := float64(bal.FinalBalance) / satoshisPerCoin
	p := types.NewPosition(wallet.Ref(), a.chain, "wallet", types.PositionHodl, strings.ToUpper(a.coin), amount)
	return &Result{Positions: []*types.Position{p}}, nil
}
