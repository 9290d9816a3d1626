package adapter

import (
	"context"
	"net/url"
	"sort"
	"strings"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

type octavAsset struct {
	Symbol   string      `json:"symbol"`
	Balance  jsonDecimal `json:"balance"`
	Price    jsonDecimal `json:"price"`
	UUID     string      `json:"uuid"`
	Contract string      `json:"contract"`
}

type octavNestedPosition struct {
	Name           string       `json:"name"`
	Assets         []octavAsset `json:"assets"`
	DexAssets      []octavAsset `json:"dexAssets"`
	SupplyAssets   []octavAsset `json:"supplyAssets"`
	BorrowAssets   []octavAsset `json:"borrowAssets"`
	RewardAssets   []octavAsset `json:"rewardAssets"`
	TotalOpenPnl   jsonDecimal  `json:"totalOpenPnl"`
	TotalClosedPnl jsonDecimal  `json:"totalClosedPnl"`
}

type octavPositionGroup struct {
	Assets            []octavAsset          `json:"assets"`
	ProtocolPositions []octavNestedPosition `json:"protocolPositions"`
	TotalOpenPnl      jsonDecimal           `json:"totalOpenPnl"`
}

type octavChain struct {
	ProtocolPositions map[string]octavPositionGroup `json:"protocolPositions"`
}

type octavProtocol struct {
	Name   string                `json:"name"`
	Chains map[string]octavChain `json:"chains"`
}

// OctavPortfolio is one address portfolio from the Octav API
type OctavPortfolio struct {
	Address          string                   `json:"address"`
	AssetByProtocols map[string]octavProtocol `json:"assetByProtocols"`
}

// OctavAdapter reads EVM and Solana holdings grouped by protocol from Octav
type OctavAdapter struct {
	client *JSONClient
	wtype  types.WalletType
}

// NewOctavAdapter creates an adapter serving walletType (EVM or SOL); the
// client must carry the bearer token
func NewOctavAdapter(client *JSONClient, walletType types.WalletType) *OctavAdapter {
	return &OctavAdapter{client: client, wtype: walletType}
}

// Type implements WalletAdapter
func (a *OctavAdapter) Type() types.WalletType {
	return a.wtype
}

// Fetch implements WalletAdapter
func (a *OctavAdapter) Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error) {
	var portfolios []OctavPortfolio
	q := url.Values{"addresses": []string{wallet.Address}}
	if err := a.client.GetJSON(ctx, "/portfolio", q, &portfolios); err != nil {
		return nil, err
	}
	if len(portfolios) == 0 {
		return nil, apperrors.NewMalformedResponseError("octav", "empty portfolio list")
	}
	return &portfolios[0], nil
}

// Normalize implements WalletAdapter. Borrowed assets are typed borrow and
// carry negative amounts.
// Assets repeating the same identity within a position group are summed.
func (a *OctavAdapter) Normalize(wallet *models.Wallet, raw RawData) (*Result, error) {
	portfolio, ok := raw.(*OctavPortfolio)
	if !ok {
		return nil, ErrUnexpectedPayload
	}

	byID := make(map[string]*types.Position)
	var order []string
	add := func(chain types.ChainID, protocol string, positionType types.PositionType, asset octavAsset, sign float64, openPnl, closedPnl *float64) {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return
		}
		amount := sign * float64(asset.Balance)
		id := types.PositionID(wallet.WalletID, chain, protocol, positionType, symbol)
		if p, ok := byID[id]; ok {
			p.Amount += amount
			p.Value = types.Float(p.Amount * types.Deref(p.Price, 0))
			return
		}
		p := types.NewPosition(wallet.Ref(), chain, protocol, positionType, symbol, amount)
		p.ContractAddress = asset.Contract
		if p.ContractAddress == "" {
			p.ContractAddress = asset.UUID
		}
		if asset.Price != 0 {
			p.Price = types.Float(float64(asset.Price))
			p.Value = types.Float(amount * float64(asset.Price))
		}
		p.UnrealizedGain = openPnl
		p.RealizedGain = closedPnl
		byID[id] = p
		order = append(order, id)
	}

	for _, protocolKey := range sortedKeys(portfolio.AssetByProtocols) {
		protocol := portfolio.AssetByProtocols[protocolKey]
		for _, chainKey := range sortedKeys(protocol.Chains) {
			chain := types.NormalizeChainID(chainKey)
			groups := protocol.Chains[chainKey].ProtocolPositions
			for _, groupKey := range sortedKeys(groups) {
				group := groups[groupKey]
				positionType := types.PositionType(strings.ToLower(groupKey))
				openPnl := group.TotalOpenPnl.Ptr()

				for _, asset := range group.Assets {
					add(chain, protocolKey, positionType, asset, 1, openPnl, nil)
				}
				for _, nested := range group.ProtocolPositions {
					nOpen, nClosed := nested.TotalOpenPnl.Ptr(), nested.TotalClosedPnl.Ptr()
					for _, list := range [][]octavAsset{nested.Assets, nested.DexAssets, nested.SupplyAssets, nested.RewardAssets} {
						for _, asset := range list {
							add(chain, protocolKey, positionType, asset, 1, nOpen, nClosed)
						}
					}
					for _, asset := range nested.BorrowAssets {
						add(chain, protocolKey, types.PositionBorrow, asset, -1, nOpen, nClosed)
					}
				}
			}
		}
	}

	res := &Result{Positions: make([]*types.Position, 0, len(order))}
	for _, id := range order {
		res.Positions = append(res.Positions, byID[id])
	}
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
