package models

import (
	"time"

	"github.com/portfolio-aggregator/internal/types"
)

// Wallet is one tracked account from the wallets reference table
type Wallet struct {
	WalletID  string           `json:"walletId" db:"wallet_id"`
	Address   string           `json:"address" db:"address"`
	Type      types.WalletType `json:"type" db:"wallet_type"`
	Strategy  string           `json:"strategy" db:"strategy"`
	Active    bool             `json:"active" db:"active"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

// Ref returns the provenance stamped on every position of this wallet
func (w *Wallet) Ref() types.WalletRef {
	return types.WalletRef{
		ID:       w.WalletID,
		Address:  w.Address,
		Type:     w.Type,
		Strategy: w.Strategy,
	}
}
