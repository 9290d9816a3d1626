package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

var ledgerColumns = []string{
	"date", "run_id", "position_id", "wallet_id", "wallet_address", "wallet_type", "strategy",
	"subaccount", "contract_address", "chain", "protocol", "position_type", "position", "status",
	"closed_at", "symbol", "base_asset", "asset_type", "sector", "reward_type", "amount",
	"amount_change", "price", "value", "equity", "notional", "cost_basis", "unrealized_gain",
	"realized_gain", "income_usd", "beta_daily", "beta_weekly",
}

var transactionColumns = []string{
	"date", "run_id", "timestamp", "transaction_id", "wallet_id", "wallet_address", "wallet_type",
	"strategy", "chain", "protocol", "type", "symbol", "amount", "price", "fee", "fee_asset",
}

// LedgerRepository reads and appends the ClickHouse positions_ledger
type LedgerRepository struct {
	db *ClickHouseDB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *ClickHouseDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendBatch writes one ledger row per position
func (r *LedgerRepository) AppendBatch(ctx context.Context, runID string, positions []*types.Position) error {
	if len(positions) == 0 {
		return nil
	}
	batch, err := r.db.Conn().PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO positions_ledger (%s)", strings.Join(ledgerColumns, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare ledger batch: %w", err)
	}
	for _, p := range positions {
		if err := batch.AppendStruct(models.NewLedgerRow(runID, p)); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append ledger row %s: %w", p.PositionID, err)
		}
	}
	return batch.Send()
}

// GetByDate returns the ledger rows of one snapshot date
func (r *LedgerRepository) GetByDate(ctx context.Context, date time.Time) ([]*types.Position, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM positions_ledger FINAL
		WHERE date = ?
		ORDER BY position_id
	`, strings.Join(ledgerColumns, ", "))
	return r.selectPositions(ctx, query, types.Day(date))
}

// History returns the rows of one position between from and to inclusive
func (r *LedgerRepository) History(ctx context.Context, positionID string, from, to time.Time) ([]*types.Position, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM positions_ledger FINAL
		WHERE position_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, strings.Join(ledgerColumns, ", "))
	return r.selectPositions(ctx, query, positionID, types.Day(from), types.Day(to))
}

// LatestDate returns the most recent snapshot date; ok is false for an empty ledger
func (r *LedgerRepository) LatestDate(ctx context.Context) (date time.Time, ok bool, err error) {
	var result struct {
		Date  time.Time `ch:"latest"`
		Count uint64    `ch:"n"`
	}
	row := r.db.Conn().QueryRow(ctx, `SELECT max(date) AS latest, count() AS n FROM positions_ledger`)
	if err := row.ScanStruct(&result); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read latest ledger date: %w", err)
	}
	if result.Count == 0 {
		return time.Time{}, false, nil
	}
	return result.Date.UTC(), true, nil
}

// PreviousDate returns the latest snapshot date strictly before date
func (r *LedgerRepository) PreviousDate(ctx context.Context, date time.Time) (prev time.Time, ok bool, err error) {
	var result struct {
		Date  time.Time `ch:"prev"`
		Count uint64    `ch:"n"`
	}
	row := r.db.Conn().QueryRow(ctx, `SELECT max(date) AS prev, count() AS n FROM positions_ledger WHERE date < ?`, types.Day(date))
	if err := row.ScanStruct(&result); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read previous ledger date: %w", err)
	}
	if result.Count == 0 {
		return time.Time{}, false, nil
	}
	return result.Date.UTC(), true, nil
}

func (r *LedgerRepository) selectPositions(ctx context.Context, query string, args ...interface{}) ([]*types.Position, error) {
	var rows []models.LedgerRow
	if err := r.db.Conn().Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query positions_ledger: %w", err)
	}
	out := make([]*types.Position, len(rows))
	for i := range rows {
		out[i] = rows[i].ToPosition()
	}
	return out, nil
}

// TransactionLedgerRepository appends the ClickHouse transactions_ledger
type TransactionLedgerRepository struct {
	db *ClickHouseDB
}

// NewTransactionLedgerRepository creates a new transaction ledger repository
func NewTransactionLedgerRepository(db *ClickHouseDB) *TransactionLedgerRepository {
	return &TransactionLedgerRepository{db: db}
}

// AppendBatch writes one row per transaction
func (r *TransactionLedgerRepository) AppendBatch(ctx context.Context, runID string, txs []*types.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch, err := r.db.Conn().PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO transactions_ledger (%s)", strings.Join(transactionColumns, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare transaction batch: %w", err)
	}
	for _, t := range txs {
		if err := batch.AppendStruct(models.NewTransactionRow(runID, t)); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append transaction %s: %w", t.TransactionID, err)
		}
	}
	return batch.Send()
}
