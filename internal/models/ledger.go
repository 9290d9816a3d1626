package models

import (
	"time"

	"github.com/portfolio-aggregator/internal/types"
)

// LedgerRow is one row of the ClickHouse positions_ledger table, keyed by
// (date, position_id). Betas are stored as plain Float64 so NaN survives.
type LedgerRow struct {
	Date            time.Time  `ch:"date"`
	RunID           string     `ch:"run_id"`
	PositionID      string     `ch:"position_id"`
	WalletID        string     `ch:"wallet_id"`
	WalletAddress   string     `ch:"wallet_address"`
	WalletType      string     `ch:"wallet_type"`
	Strategy        string     `ch:"strategy"`
	Subaccount      int32      `ch:"subaccount"`
	ContractAddress string     `ch:"contract_address"`
	Chain           string     `ch:"chain"`
	Protocol        string     `ch:"protocol"`
	PositionType    string     `ch:"position_type"`
	Position        string     `ch:"position"`
	Status          string     `ch:"status"`
	ClosedAt        *time.Time `ch:"closed_at"`
	Symbol          string     `ch:"symbol"`
	BaseAsset       string     `ch:"base_asset"`
	AssetType       string     `ch:"asset_type"`
	Sector          string     `ch:"sector"`
	RewardType      string     `ch:"reward_type"`
	Amount          float64    `ch:"amount"`
	AmountChange    float64    `ch:"amount_change"`
	Price           *float64   `ch:"price"`
	Value           *float64   `ch:"value"`
	Equity          *float64   `ch:"equity"`
	Notional        *float64   `ch:"notional"`
	CostBasis       *float64   `ch:"cost_basis"`
	UnrealizedGain  *float64   `ch:"unrealized_gain"`
	RealizedGain    *float64   `ch:"realized_gain"`
	IncomeUSD       *float64   `ch:"income_usd"`
	BetaDaily       float64    `ch:"beta_daily"`
	BetaWeekly      float64    `ch:"beta_weekly"`
}

// NewLedgerRow flattens a position for the ledger
func NewLedgerRow(runID string, p *types.Position) *LedgerRow {
	return &LedgerRow{
		Date:            p.Date,
		RunID:           runID,
		PositionID:      p.PositionID,
		WalletID:        p.WalletID,
		WalletAddress:   p.WalletAddress,
		WalletType:      string(p.WalletType),
		Strategy:        p.Strategy,
		Subaccount:      int32(p.Subaccount), // #nosec G115 - subaccount numbers are small
		ContractAddress: p.ContractAddress,
		Chain:           string(p.Chain),
		Protocol:        p.Protocol,
		PositionType:    string(p.PositionType),
		Position:        p.Position,
		Status:          string(p.Status),
		ClosedAt:        p.ClosedAt,
		Symbol:          p.Symbol,
		BaseAsset:       p.BaseAsset,
		AssetType:       string(p.AssetType),
		Sector:          p.Sector,
		RewardType:      p.RewardType,
		Amount:          p.Amount,
		AmountChange:    p.AmountChange,
		Price:           p.Price,
		Value:           p.Value,
		Equity:          p.Equity,
		Notional:        p.Notional,
		CostBasis:       p.CostBasis,
		UnrealizedGain:  p.UnrealizedGain,
		RealizedGain:    p.RealizedGain,
		IncomeUSD:       p.IncomeUSD,
		BetaDaily:       float64(p.BetaDaily),
		BetaWeekly:      float64(p.BetaWeekly),
	}
}

// ToPosition rebuilds the position held in the row
func (r *LedgerRow) ToPosition() *types.Position {
	return &types.Position{
		Date:            r.Date,
		PositionID:      r.PositionID,
		WalletID:        r.WalletID,
		WalletAddress:   r.WalletAddress,
		WalletType:      types.WalletType(r.WalletType),
		Strategy:        r.Strategy,
		Subaccount:      int(r.Subaccount),
		ContractAddress: r.ContractAddress,
		Chain:           types.ChainID(r.Chain),
		Protocol:        r.Protocol,
		PositionType:    types.PositionType(r.PositionType),
		Position:        r.Position,
		Status:          types.PositionStatus(r.Status),
		ClosedAt:        r.ClosedAt,
		Symbol:          r.Symbol,
		BaseAsset:       r.BaseAsset,
		AssetType:       types.AssetType(r.AssetType),
		Sector:          r.Sector,
		RewardType:      r.RewardType,
		Amount:          r.Amount,
		AmountChange:    r.AmountChange,
		Price:           r.Price,
		Value:           r.Value,
		Equity:          r.Equity,
		Notional:        r.Notional,
		CostBasis:       r.CostBasis,
		UnrealizedGain:  r.UnrealizedGain,
		RealizedGain:    r.RealizedGain,
		IncomeUSD:       r.IncomeUSD,
		BetaDaily:       types.Ratio(r.BetaDaily),
		BetaWeekly:      types.Ratio(r.BetaWeekly),
	}
}

// TransactionRow is one row of the ClickHouse transactions_ledger table
type TransactionRow struct {
	Date          time.Time `ch:"date"`
	RunID         string    `ch:"run_id"`
	Timestamp     time.Time `ch:"timestamp"`
	TransactionID string    `ch:"transaction_id"`
	WalletID      string    `ch:"wallet_id"`
	WalletAddress string    `ch:"wallet_address"`
	WalletType    string    `ch:"wallet_type"`
	Strategy      string    `ch:"strategy"`
	Chain         string    `ch:"chain"`
	Protocol      string    `ch:"protocol"`
	Type          string    `ch:"type"`
	Symbol        string    `ch:"symbol"`
	Amount        float64   `ch:"amount"`
	Price         *float64  `ch:"price"`
	Fee           float64   `ch:"fee"`
	FeeAsset      string    `ch:"fee_asset"`
}

// NewTransactionRow flattens a transaction for the ledger
func NewTransactionRow(runID string, t *types.Transaction) *TransactionRow {
	return &TransactionRow{
		Date:          t.Date,
		RunID:         runID,
		Timestamp:     t.Timestamp,
		TransactionID: t.TransactionID,
		WalletID:      t.WalletID,
		WalletAddress: t.WalletAddress,
		WalletType:    string(t.WalletType),
		Strategy:      t.Strategy,
		Chain:         string(t.Chain),
		Protocol:      t.Protocol,
		Type:          t.Type,
		Symbol:        t.Symbol,
		Amount:        t.Amount,
		Price:         t.Price,
		Fee:           t.Fee,
		FeeAsset:      t.FeeAsset,
	}
}
