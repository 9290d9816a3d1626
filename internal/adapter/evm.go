package adapter

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

var evmAddressPattern = regexp.MustCompile("^0x[a-fA-F0-9]{40}$")

// BalanceReader is the subset of ethclient.Client the EVM adapter needs
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer opens a BalanceReader for an RPC URL
type Dialer func(ctx context.Context, rpcURL string) (BalanceReader, error)

func dialEthclient(ctx context.Context, rpcURL string) (BalanceReader, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// evmChain is one configured chain with its endpoint pair and live client
type evmChain struct {
	mu       sync.Mutex
	chainID  types.ChainID
	provider DataProvider
	client   BalanceReader
}

// EVMAdapter reads native balances over JSON-RPC on every configured chain
type EVMAdapter struct {
	chains []*evmChain
	dial   Dialer
}

// NewEVMAdapter creates an adapter over the given chain providers. Clients
// are dialed lazily on first use.
func NewEVMAdapter(providers map[types.ChainID]DataProvider, dial Dialer) *EVMAdapter {
	if dial == nil {
		dial = dialEthclient
	}
	a := &EVMAdapter{dial: dial}
	for chainID, provider := range providers {
		a.chains = append(a.chains, &evmChain{chainID: chainID, provider: provider})
	}
	sort.Slice(a.chains, func(i, j int) bool { return a.chains[i].chainID < a.chains[j].chainID })
	return a
}

// Type implements WalletAdapter
func (a *EVMAdapter) Type() types.WalletType {
	return types.WalletEVM
}

// EVMRaw maps chain to native balance in wei
type EVMRaw map[types.ChainID]*big.Int

// Fetch implements WalletAdapter. A chain that fails on both endpoints is
// logged and left out; the wallet fails only if every chain fails.
func (a *EVMAdapter) Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error) {
	if !ValidateEVMAddress(wallet.Address) {
		return nil, NewAdapterError(a.Type(), "Fetch", ErrInvalidAddress, map[string]interface{}{"address": wallet.Address})
	}
	addr := common.HexToAddress(wallet.Address)
	logger := logging.FromContext(ctx).WithField("wallet_id", wallet.WalletID)

	raw := EVMRaw{}
	var lastErr error
	for _, chain := range a.chains {
		bal, err := a.balance(ctx, chain, addr)
		if err != nil {
			lastErr = err
			logger.WithError(err).WithField("chain", chain.chainID).Warn("EVM balance unavailable")
			continue
		}
		raw[chain.chainID] = bal
	}
	if len(raw) == 0 && lastErr != nil {
		return nil, NewAdapterError(a.Type(), "Fetch", lastErr, map[string]interface{}{"address": wallet.Address})
	}
	return raw, nil
}

// balance queries the current endpoint, failing over once on transport errors
func (a *EVMAdapter) balance(ctx context.Context, chain *evmChain, addr common.Address) (*big.Int, error) {
	chain.mu.Lock()
	defer chain.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if chain.client == nil {
			rpcURL, err := chain.provider.GetCurrentURL()
			if err != nil {
				return nil, err
			}
			client, err := a.dial(ctx, rpcURL)
			if err != nil {
				chain.provider.RecordFailure(err)
				if attempt == 0 && chain.provider.Failover() == nil {
					continue
				}
				return nil, fmt.Errorf("dial %s: %w", chain.chainID, err)
			}
			chain.client = client
		}

		start := time.Now()
		bal, err := chain.client.BalanceAt(ctx, addr, nil)
		if err == nil {
			chain.provider.RecordSuccess(time.Since(start))
			return bal, nil
		}
		chain.provider.RecordFailure(err)
		if attempt == 0 && shouldFailover(err) && chain.provider.Failover() == nil {
			chain.client.Close()
			chain.client = nil
			continue
		}
		return nil, err
	}
	return nil, ErrProviderUnavailable
}

// Normalize implements WalletAdapter
func (a *EVMAdapter) Normalize(wallet *models.Wallet, raw RawData) (*Result, error) {
	balances, ok := raw.(EVMRaw)
	if !ok {
		return nil, ErrUnexpectedPayload
	}

	chains := make([]types.ChainID, 0, len(balances))
	for c := range balances {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	res := &Result{}
	for _, chain := range chains {
		amount := WeiToEther(balances[chain])
		if amount == 0 {
			continue
		}
		res.Positions = append(res.Positions,
			types.NewPosition(wallet.Ref(), chain, "wallet", types.PositionHodl, NativeAsset(chain), amount))
	}
	return res, nil
}

// Close releases every open RPC client
func (a *EVMAdapter) Close() {
	for _, chain := range a.chains {
		chain.mu.Lock()
		if chain.client != nil {
			chain.client.Close()
			chain.client = nil
		}
		chain.mu.Unlock()
	}
}

// ValidateEVMAddress checks for 0x followed by 40 hex characters
func ValidateEVMAddress(address string) bool {
	return evmAddressPattern.MatchString(address)
}

// WeiToEther converts a wei amount to a float ether amount
func WeiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}

// NativeAsset returns the native asset symbol for a chain
func NativeAsset(chain types.ChainID) string {
	switch chain {
	case types.ChainPolygon:
		return "MATIC"
	default:
		// Ethereum and its rollups (Arbitrum, Optimism, Base) use ETH
		return "ETH"
	}
}
