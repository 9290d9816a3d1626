// Package refdata holds the reference tables a snapshot run reads: wallets,
// asset metadata, manual positions and position overrides.
package refdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/portfolio-aggregator/internal/models"
)

// Loader reads and extends the persisted reference tables
type Loader interface {
	LoadWallets(ctx context.Context) ([]*models.Wallet, error)
	LoadAssets(ctx context.Context) ([]*models.AssetInfo, error)
	LoadManualPositions(ctx context.Context) ([]*models.ManualPosition, error)
	LoadOverrides(ctx context.Context) ([]*models.PositionOverride, error)
	// UpsertMissingAssets inserts empty rows for symbols not yet present
	UpsertMissingAssets(ctx context.Context, symbols []string) error
}

// Store is an in-memory copy of reference data. It is empty until Load.
type Store struct {
	loader Loader

	mu       sync.RWMutex
	wallets  []*models.Wallet
	assets   map[string]*models.AssetInfo
	manual   map[string][]*models.ManualPosition
	override map[string]*models.PositionOverride
	loadedAt time.Time
}

// NewStore creates an empty store backed by loader
func NewStore(loader Loader) *Store {
	return &Store{
		loader:   loader,
		assets:   make(map[string]*models.AssetInfo),
		manual:   make(map[string][]*models.ManualPosition),
		override: make(map[string]*models.PositionOverride),
	}
}

// Load reads every reference table. The previous contents stay in place
// if any table fails to load.
func (s *Store) Load(ctx context.Context) error {
	wallets, err := s.loader.LoadWallets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load wallets: %w", err)
	}
	assets, err := s.loader.LoadAssets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}
	manual, err := s.loader.LoadManualPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load manual positions: %w", err)
	}
	overrides, err := s.loader.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("failed to load position overrides: %w", err)
	}

	assetMap := make(map[string]*models.AssetInfo, len(assets))
	for _, a := range assets {
		assetMap[strings.ToUpper(a.Symbol)] = a
	}
	manualMap := make(map[string][]*models.ManualPosition)
	for _, m := range manual {
		manualMap[m.WalletID] = append(manualMap[m.WalletID], m)
	}
	overrideMap := make(map[string]*models.PositionOverride, len(overrides))
	for _, o := range overrides {
		overrideMap[o.PositionID] = o
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].WalletID < wallets[j].WalletID })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = wallets
	s.assets = assetMap
	s.manual = manualMap
	s.override = overrideMap
	s.loadedAt = time.Now().UTC()
	return nil
}

// Reload is Load under its lifecycle name for long-running processes
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// LoadedAt returns when the store was last loaded; zero if never
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Wallets returns the active wallets ordered by id
func (s *Store) Wallets() []*models.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		if w.Active {
			out = append(out, w)
		}
	}
	return out
}

// Asset returns the metadata row of a symbol
func (s *Store) Asset(symbol string) (*models.AssetInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[strings.ToUpper(symbol)]
	return a, ok
}

// CoinGeckoID returns the CoinGecko id of a symbol, or "" when unknown
func (s *Store) CoinGeckoID(symbol string) string {
	if a, ok := s.Asset(symbol); ok {
		return a.CoinGeckoID
	}
	return ""
}

// ManualPositions returns the manual positions of a wallet
func (s *Store) ManualPositions(walletID string) []*models.ManualPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manual[walletID]
}

// Override returns the override of a position id
func (s *Store) Override(positionID string) (*models.PositionOverride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.override[positionID]
	return o, ok
}

// AddMissingSymbols registers empty asset rows for symbols not in the store,
// persisting them through the loader. It returns the symbols it added.
func (s *Store) AddMissingSymbols(ctx context.Context, symbols []string) ([]string, error) {
	s.mu.RLock()
	var missing []string
	seen := make(map[string]bool)
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		if _, ok := s.assets[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return nil, nil
	}
	sort.Strings(missing)
	if err := s.loader.UpsertMissingAssets(ctx, missing); err != nil {
		return nil, fmt.Errorf("failed to register missing symbols: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range missing {
		if _, ok := s.assets[sym]; !ok {
			s.assets[sym] = &models.AssetInfo{Symbol: sym}
		}
	}
	return missing, nil
}
