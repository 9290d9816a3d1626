package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/types"
)

// LedgerRewriter reads ledger snapshots and appends replacement rows
type LedgerRewriter interface {
	GetByDate(ctx context.Context, date time.Time) ([]*types.Position, error)
	AppendBatch(ctx context.Context, runID string, positions []*types.Position) error
}

// ReprocessResult summarizes one reprocess pass
type ReprocessResult struct {
	RunID     string
	Positions int
}

// Reprocessor re-applies asset metadata and position overrides to stored
// snapshots after an operator edits reference data, without refetching
// wallets
type Reprocessor struct {
	refdata  ReferenceData
	enricher *Enricher
	current  CurrentSnapshotStore
	ledger   LedgerRewriter
}

// NewReprocessor creates a new reprocessor
func NewReprocessor(refdata ReferenceData, current CurrentSnapshotStore, ledger LedgerRewriter) *Reprocessor {
	return &Reprocessor{
		refdata:  refdata,
		enricher: NewEnricher(refdata, nil, EnrichmentConfig{}),
		current:  current,
		ledger:   ledger,
	}
}

// ReprocessCurrent rewrites the current snapshot and its ledger rows
func (r *Reprocessor) ReprocessCurrent(ctx context.Context) (*ReprocessResult, error) {
	if err := r.refdata.Load(ctx); err != nil {
		return nil, apperrors.NewStorageError("load reference data", err)
	}
	positions, err := r.current.Current(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("read current snapshot", err)
	}

	res := &ReprocessResult{RunID: uuid.New().String(), Positions: len(positions)}
	if len(positions) == 0 {
		logging.FromContext(ctx).Info("Current snapshot is empty, nothing to reprocess")
		return res, nil
	}
	r.apply(positions)

	if err := r.current.Replace(ctx, res.RunID, positions); err != nil {
		return nil, apperrors.NewStorageError("replace current snapshot", err)
	}
	if err := r.ledger.AppendBatch(ctx, res.RunID, positions); err != nil {
		return nil, apperrors.NewStorageError("rewrite ledger", err)
	}
	logging.FromContext(ctx).WithFields(logging.Fields{
		"run_id":    res.RunID,
		"positions": res.Positions,
	}).Info("Reprocessed current snapshot")
	return res, nil
}

// ReprocessDate rewrites the ledger rows of one past snapshot date. The
// ledger keeps the latest insert per (date, position_id).
func (r *Reprocessor) ReprocessDate(ctx context.Context, date time.Time) (*ReprocessResult, error) {
	if err := r.refdata.Load(ctx); err != nil {
		return nil, apperrors.NewStorageError("load reference data", err)
	}
	positions, err := r.ledger.GetByDate(ctx, date)
	if err != nil {
		return nil, apperrors.NewStorageError("read ledger snapshot", err)
	}

	res := &ReprocessResult{RunID: uuid.New().String(), Positions: len(positions)}
	if len(positions) == 0 {
		return res, nil
	}
	r.apply(positions)

	if err := r.ledger.AppendBatch(ctx, res.RunID, positions); err != nil {
		return nil, apperrors.NewStorageError("rewrite ledger", err)
	}
	logging.FromContext(ctx).WithFields(logging.Fields{
		"run_id":    res.RunID,
		"date":      types.Day(date).Format("2006-01-02"),
		"positions": res.Positions,
	}).Info("Reprocessed ledger snapshot")
	return res, nil
}

func (r *Reprocessor) apply(positions []*types.Position) {
	r.enricher.MergeAssetInfo(positions)
	for _, p := range positions {
		if p.Value != nil {
			p.Notional = types.Float(Notional(p.AssetType, *p.Value))
		}
	}
	r.enricher.Label(positions)
	ApplyStableOverride(positions)
}
