package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portfolio-aggregator/internal/types"
)

var currentColumns = []string{
	"position_id", "date", "run_id", "wallet_id", "wallet_address", "wallet_type", "strategy",
	"subaccount", "contract_address", "chain", "protocol", "position_type", "position", "status",
	"closed_at", "symbol", "base_asset", "asset_type", "sector", "reward_type", "amount",
	"amount_change", "price", "value", "equity", "notional", "cost_basis", "unrealized_gain",
	"realized_gain", "income_usd", "beta_daily", "beta_weekly",
}

// SnapshotRepository keeps the latest snapshot in Postgres positions_current
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Replace swaps the table contents for positions in one transaction
func (r *SnapshotRepository) Replace(ctx context.Context, runID string, positions []*types.Position) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM positions_current`); err != nil {
		return fmt.Errorf("failed to clear positions_current: %w", err)
	}

	rows := make([][]interface{}, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, []interface{}{
			p.PositionID, p.Date, runID, p.WalletID, p.WalletAddress, string(p.WalletType), p.Strategy,
			int32(p.Subaccount), p.ContractAddress, string(p.Chain), p.Protocol, string(p.PositionType), // #nosec G115 - subaccount numbers are small
			p.Position, string(p.Status), p.ClosedAt, p.Symbol, p.BaseAsset, string(p.AssetType),
			p.Sector, p.RewardType, p.Amount, p.AmountChange, p.Price, p.Value, p.Equity, p.Notional,
			p.CostBasis, p.UnrealizedGain, p.RealizedGain, p.IncomeUSD,
			nullableRatio(p.BetaDaily), nullableRatio(p.BetaWeekly),
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"positions_current"}, currentColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to copy positions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Current returns the latest snapshot ordered by position id
func (r *SnapshotRepository) Current(ctx context.Context) ([]*types.Position, error) {
	query := `
		SELECT position_id, date, wallet_id, wallet_address, wallet_type, strategy, subaccount,
			contract_address, chain, protocol, position_type, position, status, closed_at, symbol,
			base_asset, asset_type, sector, reward_type, amount, amount_change, price, value, equity,
			notional, cost_basis, unrealized_gain, realized_gain, income_usd, beta_daily, beta_weekly
		FROM positions_current
		ORDER BY position_id
	`
	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions_current: %w", err)
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		var (
			p                                                   types.Position
			walletType, chain, positionType, status, assetType string
			subaccount                                          int32
			closedAt                                            *time.Time
			betaDaily, betaWeekly                               *float64
		)
		err := rows.Scan(
			&p.PositionID, &p.Date, &p.WalletID, &p.WalletAddress, &walletType, &p.Strategy, &subaccount,
			&p.ContractAddress, &chain, &p.Protocol, &positionType, &p.Position, &status, &closedAt, &p.Symbol,
			&p.BaseAsset, &assetType, &p.Sector, &p.RewardType, &p.Amount, &p.AmountChange, &p.Price, &p.Value,
			&p.Equity, &p.Notional, &p.CostBasis, &p.UnrealizedGain, &p.RealizedGain, &p.IncomeUSD,
			&betaDaily, &betaWeekly,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		p.WalletType = types.WalletType(walletType)
		p.Chain = types.ChainID(chain)
		p.PositionType = types.PositionType(positionType)
		p.Status = types.PositionStatus(status)
		p.AssetType = types.AssetType(assetType)
		p.Subaccount = int(subaccount)
		p.ClosedAt = closedAt
		p.BetaDaily = ratioFromNullable(betaDaily)
		p.BetaWeekly = ratioFromNullable(betaWeekly)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func nullableRatio(r types.Ratio) *float64 {
	if r.IsNaN() || math.IsInf(float64(r), 0) {
		return nil
	}
	f := float64(r)
	return &f
}

func ratioFromNullable(f *float64) types.Ratio {
	if f == nil {
		return types.NaN()
	}
	return types.Ratio(*f)
}
