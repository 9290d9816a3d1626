package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-aggregator/internal/adapter"
	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/models"
	"github.com/portfolio-aggregator/internal/types"
)

// ReferenceData is the reference store a run loads and reads
type ReferenceData interface {
	AssetCatalog
	Load(ctx context.Context) error
	Wallets() []*models.Wallet
}

// AdapterLookup resolves the adapter of a wallet type
type AdapterLookup interface {
	Get(walletType types.WalletType) (adapter.WalletAdapter, error)
}

// BetaAttacher attaches beta_daily and beta_weekly to positions
type BetaAttacher interface {
	Estimate(ctx context.Context, positions []*types.Position) *BetaReport
}

// LedgerStore reads previous snapshots and appends new ones
type LedgerStore interface {
	GetByDate(ctx context.Context, date time.Time) ([]*types.Position, error)
	PreviousDate(ctx context.Context, date time.Time) (time.Time, bool, error)
	AppendBatch(ctx context.Context, runID string, positions []*types.Position) error
}

// TransactionStore appends normalized transactions
type TransactionStore interface {
	AppendBatch(ctx context.Context, runID string, txs []*types.Transaction) error
}

// CurrentSnapshotStore holds the latest snapshot
type CurrentSnapshotStore interface {
	Replace(ctx context.Context, runID string, positions []*types.Position) error
	Current(ctx context.Context) ([]*types.Position, error)
}

// RunResult summarizes one snapshot run
type RunResult struct {
	RunID            string
	Date             time.Time
	Positions        []*types.Position
	Transactions     []*types.Transaction
	WalletsProcessed int
	WalletsFailed    int
	Diff             DiffStats
	MissingBetas     []MissingBeta
	Duration         time.Duration
}

// Pipeline produces one daily snapshot: fetch every wallet, attribute
// margin equity, enrich, estimate betas, diff against the previous
// snapshot and persist
type Pipeline struct {
	refdata  ReferenceData
	adapters AdapterLookup
	enricher *Enricher
	betas    BetaAttacher
	ledger   LedgerStore
	txs      TransactionStore
	current  CurrentSnapshotStore
	now      func() time.Time
}

// NewPipeline creates a new snapshot pipeline
func NewPipeline(
	refdata ReferenceData,
	adapters AdapterLookup,
	enricher *Enricher,
	betas BetaAttacher,
	ledger LedgerStore,
	txs TransactionStore,
	current CurrentSnapshotStore,
) *Pipeline {
	return &Pipeline{
		refdata:  refdata,
		adapters: adapters,
		enricher: enricher,
		betas:    betas,
		ledger:   ledger,
		txs:      txs,
		current:  current,
		now:      time.Now,
	}
}

// Run executes one snapshot. Wallet, price and history failures are logged
// and contained; only reference data and storage errors abort the run.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	started := p.now()
	result := &RunResult{
		RunID: uuid.New().String(),
		Date:  types.Day(started),
	}
	logger := logging.FromContext(ctx).WithFields(logging.Fields{
		"run_id": result.RunID,
		"date":   result.Date.Format("2006-01-02"),
	})
	ctx = logging.WithLogger(ctx, logger)
	logger.Info("Snapshot run starting")

	if err := p.refdata.Load(ctx); err != nil {
		return nil, apperrors.NewStorageError("load reference data", err)
	}

	positions, txs := p.collect(ctx, result)
	logger.WithFields(logging.Fields{
		"positions":    len(positions),
		"transactions": len(txs),
	}).Info("Wallets collected")

	positions = p.enricher.Enrich(ctx, positions)

	for _, pos := range positions {
		pos.Date = result.Date
	}
	for _, tx := range txs {
		tx.Date = result.Date
	}

	report := p.betas.Estimate(ctx, positions)
	result.MissingBetas = report.Missing

	previous, err := p.previousSnapshot(ctx, result.Date)
	if err != nil {
		return nil, err
	}
	result.Diff = Diff(positions, previous)

	if err := p.current.Replace(ctx, result.RunID, positions); err != nil {
		return nil, apperrors.NewStorageError("replace current snapshot", err)
	}
	if err := p.ledger.AppendBatch(ctx, result.RunID, positions); err != nil {
		return nil, apperrors.NewStorageError("append positions ledger", err)
	}
	if err := p.txs.AppendBatch(ctx, result.RunID, txs); err != nil {
		return nil, apperrors.NewStorageError("append transactions ledger", err)
	}

	result.Positions = positions
	result.Transactions = txs
	result.Duration = p.now().Sub(started)
	logger.WithFields(logging.Fields{
		"positions":         len(positions),
		"wallets_processed": result.WalletsProcessed,
		"wallets_failed":    result.WalletsFailed,
		"new":               result.Diff.New,
		"persisted":         result.Diff.Persisted,
		"dropped":           result.Diff.Dropped,
		"missing_betas":     len(result.MissingBetas),
		"duration_ms":       result.Duration.Milliseconds(),
	}).Info("Snapshot run complete")
	return result, nil
}

// collect runs every active wallet through its adapter, one at a time, and
// attributes margin equity per account
func (p *Pipeline) collect(ctx context.Context, result *RunResult) ([]*types.Position, []*types.Transaction) {
	var (
		positions []*types.Position
		txs       []*types.Transaction
	)
	seen := make(map[string]bool)

	for _, wallet := range p.refdata.Wallets() {
		wlog := logging.FromContext(ctx).WithFields(logging.Fields{
			"wallet_id":   wallet.WalletID,
			"wallet_type": wallet.Type,
		})
		if ctx.Err() != nil {
			wlog.WithError(ctx.Err()).Warn("Run cancelled, skipping remaining wallets")
			break
		}

		a, err := p.adapters.Get(wallet.Type)
		if err != nil {
			result.WalletsFailed++
			wlog.WithError(err).Warn("No adapter for wallet type")
			continue
		}
		res, err := adapter.Process(logging.WithLogger(ctx, wlog), a, wallet)
		if err != nil {
			result.WalletsFailed++
			wlog.WithError(apperrors.NewAdapterFailure(wallet.WalletID, string(wallet.Type), err)).
				Error("Wallet failed, its positions are left out of this snapshot")
			continue
		}
		result.WalletsProcessed++

		AttributeAccounts(ctx, res.Accounts)
		for _, pos := range res.AllPositions() {
			if seen[pos.PositionID] {
				wlog.WithField("position_id", pos.PositionID).Warn("Duplicate position id, keeping the first")
				continue
			}
			seen[pos.PositionID] = true
			positions = append(positions, pos)
		}
		txs = append(txs, res.Transactions...)
	}
	return positions, txs
}

// previousSnapshot loads the latest ledger snapshot before date; nil when
// the ledger has none
func (p *Pipeline) previousSnapshot(ctx context.Context, date time.Time) (map[string]*types.Position, error) {
	prevDate, ok, err := p.ledger.PreviousDate(ctx, date)
	if err != nil {
		return nil, apperrors.NewStorageError("read previous snapshot date", err)
	}
	if !ok {
		logging.FromContext(ctx).Info("No previous snapshot, every position is new")
		return nil, nil
	}
	rows, err := p.ledger.GetByDate(ctx, prevDate)
	if err != nil {
		return nil, apperrors.NewStorageError("read previous snapshot", err)
	}
	return IndexByID(rows), nil
}
