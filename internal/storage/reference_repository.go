package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

// ReferenceRepository reads and maintains the reference tables in Postgres
type ReferenceRepository struct {
	db *PostgresDB
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *PostgresDB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// LoadWallets returns every wallet row
func (r *ReferenceRepository) LoadWallets(ctx context.Context) ([]*models.Wallet, error) {
	query := `
		SELECT wallet_id, address, wallet_type, strategy, active, created_at
		FROM wallets
		ORDER BY wallet_id
	`
	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		var w models.Wallet
		var walletType string
		if err := rows.Scan(&w.WalletID, &w.Address, &walletType, &w.Strategy, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		w.Type = types.ParseWalletType(walletType)
		wallets = append(wallets, &w)
	}
	return wallets, rows.Err()
}

// LoadAssets returns every asset metadata row
func (r *ReferenceRepository) LoadAssets(ctx context.Context) ([]*models.AssetInfo, error) {
	query := `
		SELECT symbol, base_asset, asset_type, sector, reward_type, coingecko_id
		FROM assets
	`
	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.AssetInfo
	for rows.Next() {
		var a models.AssetInfo
		var assetType string
		if err := rows.Scan(&a.Symbol, &a.BaseAsset, &assetType, &a.Sector, &a.RewardType, &a.CoinGeckoID); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		a.AssetType = types.AssetType(assetType)
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

// LoadManualPositions returns every manual position row
func (r *ReferenceRepository) LoadManualPositions(ctx context.Context) ([]*models.ManualPosition, error) {
	query := `
		SELECT wallet_id, chain, protocol, position_type, symbol, amount, cost_basis
		FROM manual_positions
		ORDER BY wallet_id, id
	`
	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual positions: %w", err)
	}
	defer rows.Close()

	var out []*models.ManualPosition
	for rows.Next() {
		var m models.ManualPosition
		var chain, positionType string
		if err := rows.Scan(&m.WalletID, &chain, &m.Protocol, &positionType, &m.Symbol, &m.Amount, &m.CostBasis); err != nil {
			return nil, fmt.Errorf("failed to scan manual position row: %w", err)
		}
		m.Chain = types.ChainID(chain)
		m.PositionType = types.PositionType(positionType)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// LoadOverrides returns every position override row
func (r *ReferenceRepository) LoadOverrides(ctx context.Context) ([]*models.PositionOverride, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT position_id, position, position_type FROM position_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to query position overrides: %w", err)
	}
	defer rows.Close()

	var out []*models.PositionOverride
	for rows.Next() {
		var o models.PositionOverride
		var positionType string
		if err := rows.Scan(&o.PositionID, &o.Position, &positionType); err != nil {
			return nil, fmt.Errorf("failed to scan override row: %w", err)
		}
		o.PositionType = types.PositionType(positionType)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// UpsertMissingAssets inserts empty asset rows; existing rows are untouched
func (r *ReferenceRepository) UpsertMissingAssets(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range symbols {
		batch.Queue(`INSERT INTO assets (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING`, strings.ToUpper(s))
	}
	if err := r.db.Pool().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert missing assets: %w", err)
	}
	return nil
}

// UpsertWallet creates or updates a wallet row
func (r *ReferenceRepository) UpsertWallet(ctx context.Context, w *models.Wallet) error {
	query := `
		INSERT INTO wallets (wallet_id, address, wallet_type, strategy, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id) DO UPDATE SET
			address = EXCLUDED.address,
			wallet_type = EXCLUDED.wallet_type,
			strategy = EXCLUDED.strategy,
			active = EXCLUDED.active
	`
	if _, err := r.db.Pool().Exec(ctx, query, w.WalletID, w.Address, string(w.Type), w.Strategy, w.Active); err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return nil
}

// UpsertAsset creates or replaces an asset metadata row
func (r *ReferenceRepository) UpsertAsset(ctx context.Context, a *models.AssetInfo) error {
	query := `
		INSERT INTO assets (symbol, base_asset, asset_type, sector, reward_type, coingecko_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			base_asset = EXCLUDED.base_asset,
			asset_type = EXCLUDED.asset_type,
			sector = EXCLUDED.sector,
			reward_type = EXCLUDED.reward_type,
			coingecko_id = EXCLUDED.coingecko_id,
			updated_at = NOW()
	`
	_, err := r.db.Pool().Exec(ctx, query,
		strings.ToUpper(a.Symbol), a.BaseAsset, string(a.AssetType), a.Sector, a.RewardType, a.CoinGeckoID)
	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}
	return nil
}
