package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

const dydxProtocol = "dydxv4"

// Indexer payloads. Numeric fields arrive as decimal strings.

type dydxAddressResponse struct {
	Subaccounts []dydxSubaccount `json:"subaccounts"`
}

type dydxSubaccount struct {
	Address          string `json:"address"`
	SubaccountNumber int    `json:"subaccountNumber"`
	Equity           string `json:"equity"`
	FreeCollateral   string `json:"freeCollateral"`
}

type dydxPerpetualPosition struct {
	Market        string `json:"market"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entryPrice"`
	RealizedPnl   string `json:"realizedPnl"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	NetFunding    string `json:"netFunding"`
	CreatedAt     string `json:"createdAt"`
	ClosedAt      string `json:"closedAt"`
}

type dydxPerpetualPositionsResponse struct {
	Positions []dydxPerpetualPosition `json:"positions"`
}

type dydxAssetPosition struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Size   string `json:"size"`
}

type dydxAssetPositionsResponse struct {
	Positions []dydxAssetPosition `json:"positions"`
}

type dydxFill struct {
	ID        string `json:"id"`
	Side      string `json:"side"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Fee       string `json:"fee"`
	CreatedAt string `json:"createdAt"`
}

type dydxFillsResponse struct {
	Fills []dydxFill `json:"fills"`
}

type dydxTransfer struct {
	ID        string `json:"id"`
	Size      string `json:"size"`
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
}

type dydxTransfersResponse struct {
	Transfers []dydxTransfer `json:"transfers"`
}

// dydxSubaccountData is everything fetched for one subaccount
type dydxSubaccountData struct {
	Subaccount dydxSubaccount
	Perps      []dydxPerpetualPosition
	Assets     []dydxAssetPosition
	Fills      []dydxFill
	Transfers  []dydxTransfer
}

// DydxRaw is the raw payload of a dYdX v4 wallet
type DydxRaw struct {
	FetchedAt   time.Time
	Subaccounts []dydxSubaccountData
}

// DydxAdapter reads dYdX v4 subaccounts from the public indexer
type DydxAdapter struct {
	client         *JSONClient
	closedLookback time.Duration
	now            func() time.Time
}

// NewDydxAdapter creates an adapter; closed positions newer than
// closedLookback are kept with zero equity
func NewDydxAdapter(client *JSONClient, closedLookback time.Duration) *DydxAdapter {
	return &DydxAdapter{
		client:         client,
		closedLookback: closedLookback,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Type implements WalletAdapter
func (a *DydxAdapter) Type() types.WalletType {
	return types.WalletDydx
}

// Fetch implements WalletAdapter
func (a *DydxAdapter) Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error) {
	if !strings.HasPrefix(wallet.Address, "dydx1") {
		return nil, NewAdapterError(a.Type(), "Fetch", ErrInvalidAddress, map[string]interface{}{"address": wallet.Address})
	}

	var info dydxAddressResponse
	if err := a.client.GetJSON(ctx, "/addresses/"+url.PathEscape(wallet.Address), nil, &info); err != nil {
		return nil, err
	}

	raw := &DydxRaw{FetchedAt: a.now()}
	for _, sub := range info.Subaccounts {
		q := url.Values{}
		q.Set("address", wallet.Address)
		q.Set("subaccountNumber", strconv.Itoa(sub.SubaccountNumber))

		data := dydxSubaccountData{Subaccount: sub}

		var perps dydxPerpetualPositionsResponse
		if err := a.client.GetJSON(ctx, "/perpetualPositions", q, &perps); err != nil {
			return nil, err
		}
		data.Perps = perps.Positions

		var assets dydxAssetPositionsResponse
		if err := a.client.GetJSON(ctx, "/assetPositions", q, &assets); err != nil {
			return nil, err
		}
		data.Assets = assets.Positions

		// activity is informational; a failure here must not drop the holdings
		var fills dydxFillsResponse
		if err := a.client.GetJSON(ctx, "/fills", q, &fills); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("wallet_id", wallet.WalletID).Warn("dYdX fills unavailable")
		}
		data.Fills = fills.Fills

		var transfers dydxTransfersResponse
		if err := a.client.GetJSON(ctx, "/transfers", q, &transfers); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("wallet_id", wallet.WalletID).Warn("dYdX transfers unavailable")
		}
		data.Transfers = transfers.Transfers

		raw.Subaccounts = append(raw.Subaccounts, data)
	}
	return raw, nil
}

// Normalize implements WalletAdapter. Each subaccount becomes one margin
// account holding its open perps and recently closed perps. A subaccount
// with no open perps reports its USDC collateral as cash instead.
func (a *DydxAdapter) Normalize(wallet *models.Wallet, raw RawData) (*Result, error) {
	data, ok := raw.(*DydxRaw)
	if !ok {
		return nil, ErrUnexpectedPayload
	}
	logger := logging.WithField("wallet_id", wallet.WalletID)
	cutoff := data.FetchedAt.Add(-a.closedLookback)

	res := &Result{}
	for _, sub := range data.Subaccounts {
		num := sub.Subaccount.SubaccountNumber
		equity, err := parseDecimal(sub.Subaccount.Equity)
		if err != nil {
			return nil, apperrors.NewMalformedResponseError("dydx", fmt.Sprintf("subaccount %d equity: %v", num, err))
		}

		acct := &types.MarginAccount{WalletID: wallet.WalletID, Subaccount: num, Equity: equity}
		seen := make(map[string]bool)
		hasOpen := false

		// open first so a same-market position closed earlier in the window
		// does not shadow the live one
		for _, wantOpen := range []bool{true, false} {
			for _, perp := range sub.Perps {
				isOpen := strings.EqualFold(perp.Status, "OPEN")
				if isOpen != wantOpen {
					continue
				}
				var closedAt *time.Time
				if !isOpen {
					ts, err := time.Parse(time.RFC3339Nano, perp.ClosedAt)
					if err != nil || !strings.EqualFold(perp.Status, "CLOSED") || ts.Before(cutoff) {
						continue
					}
					closedAt = &ts
				}

				p, err := a.perpPosition(wallet, num, perp)
				if err != nil {
					logger.WithError(err).WithField("market", perp.Market).Warn("Skipping malformed dYdX position")
					continue
				}
				if seen[p.PositionID] {
					continue
				}
				seen[p.PositionID] = true
				if closedAt != nil {
					p.Status = types.StatusClosed
					p.ClosedAt = closedAt
				} else {
					hasOpen = true
				}
				acct.Positions = append(acct.Positions, p)
			}
		}

		if len(acct.Positions) > 0 {
			res.Accounts = append(res.Accounts, acct)
		}

		if !hasOpen {
			for _, asset := range sub.Assets {
				if !strings.EqualFold(asset.Symbol, "USDC") {
					continue
				}
				size, err := parseDecimal(asset.Size)
				if err != nil || size <= 0 {
					continue
				}
				p := newSubaccountPosition(wallet, num, types.PositionCash, "USDC", size)
				p.Price = types.Float(1)
				p.Value = types.Float(size)
				p.Equity = types.Float(size)
				res.Positions = append(res.Positions, p)
			}
		}

		res.Transactions = append(res.Transactions, a.transactions(wallet, sub, cutoff)...)
	}
	return res, nil
}

// perpPosition derives price, cost basis and realized gain from the indexer row:
// price = entry + unrealized/size (0 when flat), cost = entry*size,
// realized = realizedPnl - netFunding
func (a *DydxAdapter) perpPosition(wallet *models.Wallet, subaccount int, perp dydxPerpetualPosition) (*types.Position, error) {
	symbol := strings.SplitN(perp.Market, "-", 2)[0]
	if symbol == "" {
		return nil, fmt.Errorf("empty market")
	}
	size, err := parseDecimal(perp.Size)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	entry, err := parseDecimal(perp.EntryPrice)
	if err != nil {
		return nil, fmt.Errorf("entryPrice: %w", err)
	}
	unrealized := parseDecimalOr(perp.UnrealizedPnl, 0)
	realized := parseDecimalOr(perp.RealizedPnl, 0) - parseDecimalOr(perp.NetFunding, 0)

	p := newSubaccountPosition(wallet, subaccount, types.PositionPerps, symbol, size)
	// a flat perp is a zero-notional claim on the account
	price := 0.0
	if size != 0 {
		price = entry + unrealized/size
	}
	p.Price = types.Float(price)
	p.Value = types.Float(size * price)
	p.CostBasis = types.Float(entry * size)
	p.UnrealizedGain = types.Float(unrealized)
	p.RealizedGain = types.Float(realized)
	return p, nil
}

func (a *DydxAdapter) transactions(wallet *models.Wallet, sub dydxSubaccountData, cutoff time.Time) []*types.Transaction {
	var out []*types.Transaction
	for _, f := range sub.Fills {
		ts, err := time.Parse(time.RFC3339Nano, f.CreatedAt)
		if err != nil || ts.Before(cutoff) {
			continue
		}
		txType := "Sell"
		if strings.EqualFold(f.Side, "BUY") {
			txType = "Buy"
		}
		tx := newTransaction(wallet, types.ChainDydx, dydxProtocol, ts)
		tx.TransactionID = f.ID
		tx.Type = txType
		tx.Symbol = f.Market
		tx.Amount = parseDecimalOr(f.Size, 0)
		tx.Price = types.Float(parseDecimalOr(f.Price, 0))
		tx.Fee = parseDecimalOr(f.Fee, 0)
		tx.FeeAsset = "USDC"
		out = append(out, tx)
	}
	for _, t := range sub.Transfers {
		ts, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
		if err != nil || ts.Before(cutoff) {
			continue
		}
		tx := newTransaction(wallet, types.ChainDydx, dydxProtocol, ts)
		tx.TransactionID = t.ID
		tx.Type = capitalize(t.Type)
		tx.Symbol = t.Symbol
		tx.Amount = parseDecimalOr(t.Size, 0)
		if strings.EqualFold(t.Symbol, "USDC") {
			tx.Price = types.Float(1)
		}
		tx.FeeAsset = t.Symbol
		out = append(out, tx)
	}
	return out
}

// newSubaccountPosition keeps subaccount 0 ids in the plain wallet form and
// qualifies the rest as wallet:N so ids stay unique across subaccounts.
// WalletID always stays the plain wallet id.
func newSubaccountPosition(wallet *models.Wallet, subaccount int, positionType types.PositionType, symbol string, amount float64) *types.Position {
	ref := wallet.Ref()
	if subaccount != 0 {
		ref.ID = fmt.Sprintf("%s:%d", wallet.WalletID, subaccount)
	}
	p := types.NewPosition(ref, types.ChainDydx, dydxProtocol, positionType, symbol, amount)
	p.WalletID = wallet.WalletID
	p.Subaccount = subaccount
	return p
}

func newTransaction(wallet *models.Wallet, chain types.ChainID, protocol string, ts time.Time) *types.Transaction {
	return &types.Transaction{
		Date:          time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		Timestamp:     ts.UTC(),
		WalletID:      wallet.WalletID,
		WalletAddress: wallet.Address,
		WalletType:    wallet.Type,
		Strategy:      wallet.Strategy,
		Chain:         chain,
		Protocol:      protocol,
	}
}

func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseFloat(s, 64)
}

func parseDecimalOr(s string, fallback float64) float64 {
	v, err := parseDecimal(s)
	if err != nil {
		return fallback
	}
	return v
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
