package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

// RawData is the undecoded provider payload for one wallet. Each adapter
// knows the concrete type it returns from Fetch and accepts in Normalize.
type RawData interface{}

// Result is the normalized output of one wallet
type Result struct {
	Positions    []*types.Position
	Transactions []*types.Transaction
	// Accounts groups derivative positions by margin account for equity
	// attribution; those positions are not repeated in Positions
	Accounts []*types.MarginAccount
}

// AllPositions returns plain positions followed by margin account positions
func (r *Result) AllPositions() []*types.Position {
	out := make([]*types.Position, 0, len(r.Positions))
	out = append(out, r.Positions...)
	for _, acct := range r.Accounts {
		out = append(out, acct.Positions...)
	}
	return out
}

// WalletAdapter fetches and normalizes the holdings of one wallet type
type WalletAdapter interface {
	// Type returns the wallet type this adapter serves
	Type() types.WalletType

	// Fetch retrieves the raw provider payload for a wallet
	Fetch(ctx context.Context, wallet *models.Wallet) (RawData, error)

	// Normalize converts the raw payload into positions and transactions.
	// Prices may be left nil for the enrichment stage to fill.
	Normalize(wallet *models.Wallet, raw RawData) (*Result, error)
}

// Common error types for wallet adapters
var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrUnexpectedPayload indicates Normalize received a payload from another adapter
	ErrUnexpectedPayload = fmt.Errorf("unexpected raw payload type")

	// ErrNoAdapter indicates no adapter is registered for a wallet type
	ErrNoAdapter = fmt.Errorf("no adapter registered for wallet type")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	WalletType types.WalletType
	Op         string // Fetch, Normalize, ...
	Err        error
	Details    map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("wallet adapter error [%s:%s]: %v (details: %+v)", e.WalletType, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("wallet adapter error [%s:%s]: %v", e.WalletType, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(walletType types.WalletType, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		WalletType: walletType,
		Op:         op,
		Err:        err,
		Details:    details,
	}
}

// Registry maps wallet types to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.WalletType]WalletAdapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...WalletAdapter) *Registry {
	r := &Registry{adapters: make(map[types.WalletType]WalletAdapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Type()
func (r *Registry) Register(a WalletAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Get returns the adapter for a wallet type
func (r *Registry) Get(walletType types.WalletType) (WalletAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[walletType]
	if !ok {
		return nil, NewAdapterError(walletType, "Lookup", ErrNoAdapter, nil)
	}
	return a, nil
}

// Types lists registered wallet types in sorted order
func (r *Registry) Types() []types.WalletType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.WalletType, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Process runs Fetch then Normalize for a wallet, wrapping failures in AdapterError
func Process(ctx context.Context, a WalletAdapter, wallet *models.Wallet) (*Result, error) {
	raw, err := a.Fetch(ctx, wallet)
	if err != nil {
		return nil, wrap(a.Type(), "Fetch", err, wallet)
	}
	res, err := a.Normalize(wallet, raw)
	if err != nil {
		return nil, wrap(a.Type(), "Normalize", err, wallet)
	}
	return res, nil
}

func wrap(walletType types.WalletType, op string, err error, wallet *models.Wallet) error {
	if _, ok := err.(*AdapterError); ok {
		return err
	}
	return NewAdapterError(walletType, op, err, map[string]interface{}{"walletId": wallet.WalletID})
}
