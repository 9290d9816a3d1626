package models

import "github.com/portfolio-aggregator/internal/types"

// ManualPosition is an operator-entered holding for a MANUAL wallet
type ManualPosition struct {
	WalletID     string             `json:"walletId" db:"wallet_id"`
	Chain        types.ChainID      `json:"chain" db:"chain"`
	Protocol     string             `json:"protocol" db:"protocol"`
	PositionType types.PositionType `json:"positionType" db:"position_type"`
	Symbol       string             `json:"symbol" db:"symbol"`
	Amount       float64            `json:"amount" db:"amount"`
	CostBasis    *float64           `json:"costBasis,omitempty" db:"cost_basis"`
}

// PositionOverride replaces the display label and position type of a position id
type PositionOverride struct {
	PositionID   string             `json:"positionId" db:"position_id"`
	Position     string             `json:"position" db:"position"`
	PositionType types.PositionType `json:"positionType" db:"position_type"`
}
