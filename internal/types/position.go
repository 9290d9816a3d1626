package types

import (
	"encoding/json"
	"math"
	"time"
)

// Ratio is a float that may be undefined (NaN); it encodes as JSON null when undefined
type Ratio float64

// NaN returns an undefined ratio
func NaN() Ratio {
	return Ratio(math.NaN())
}

// IsNaN reports whether the ratio is undefined
func (r Ratio) IsNaN() bool {
	return math.IsNaN(float64(r))
}

// MarshalJSON implements json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsNaN() || math.IsInf(float64(r), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = NaN()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Position is one row of a snapshot: a single holding instance in a wallet.
// Nullable numeric fields are pointers; nil means "not provided yet".
type Position struct {
	Date            time.Time      `json:"date" db:"date"`
	PositionID      string         `json:"positionId" db:"position_id"`
	WalletID        string         `json:"walletId" db:"wallet_id"`
	WalletAddress   string         `json:"walletAddress" db:"wallet_address"`
	WalletType      WalletType     `json:"walletType" db:"wallet_type"`
	Strategy        string         `json:"strategy" db:"strategy"`
	Subaccount      int            `json:"subaccount" db:"subaccount"`
	ContractAddress string         `json:"contractAddress,omitempty" db:"contract_address"`
	Chain           ChainID        `json:"chain" db:"chain"`
	Protocol        string         `json:"protocol" db:"protocol"`
	PositionType    PositionType   `json:"positionType" db:"position_type"`
	Position        string         `json:"position" db:"position"`
	Status          PositionStatus `json:"status" db:"status"`
	ClosedAt        *time.Time     `json:"closedAt,omitempty" db:"closed_at"`
	Symbol          string         `json:"symbol" db:"symbol"`
	BaseAsset       string         `json:"baseAsset" db:"base_asset"`
	AssetType       AssetType      `json:"assetType" db:"asset_type"`
	Sector          string         `json:"sector" db:"sector"`
	RewardType      string         `json:"rewardType" db:"reward_type"`
	Amount          float64        `json:"amount" db:"amount"`
	Price           *float64       `json:"price" db:"price"`
	Value           *float64       `json:"value" db:"value"`
	Equity          *float64       `json:"equity" db:"equity"`
	Notional        *float64       `json:"notional" db:"notional"`
	CostBasis       *float64       `json:"costBasis" db:"cost_basis"`
	UnrealizedGain  *float64       `json:"unrealizedGain" db:"unrealized_gain"`
	RealizedGain    *float64       `json:"realizedGain" db:"realized_gain"`
	IncomeUSD       *float64       `json:"incomeUsd" db:"income_usd"`
	AmountChange    float64        `json:"amountChange" db:"amount_change"`
	BetaDaily       Ratio          `json:"betaDaily" db:"beta_daily"`
	BetaWeekly      Ratio          `json:"betaWeekly" db:"beta_weekly"`
}

// NewPosition creates a position with identity and provenance filled in and
// both betas undefined until the estimator runs.
func NewPosition(wallet WalletRef, chain ChainID, protocol string, positionType PositionType, symbol string, amount float64) *Position {
	return &Position{
		PositionID:    PositionID(wallet.ID, chain, protocol, positionType, symbol),
		WalletID:      wallet.ID,
		WalletAddress: wallet.Address,
		WalletType:    wallet.Type,
		Strategy:      wallet.Strategy,
		Chain:         chain,
		Protocol:      protocol,
		PositionType:  positionType,
		Status:        StatusOpen,
		Symbol:        symbol,
		Amount:        amount,
		BetaDaily:     NaN(),
		BetaWeekly:    NaN(),
	}
}

// WalletRef is the provenance carried into every position of a wallet
type WalletRef struct {
	ID       string
	Address  string
	Type     WalletType
	Strategy string
}

// IsDerivative reports whether equity must come from margin attribution
// rather than defaulting to value
func (p *Position) IsDerivative() bool {
	return p.PositionType == PositionPerps
}

// ValueOrZero returns the USD value or 0 when it has not been filled
func (p *Position) ValueOrZero() float64 {
	return Deref(p.Value, 0)
}

// Transaction is a normalized account movement (fill, transfer, reward, funding)
type Transaction struct {
	Date          time.Time  `json:"date" db:"date"`
	Timestamp     time.Time  `json:"timestamp" db:"timestamp"`
	TransactionID string     `json:"transactionId" db:"transaction_id"`
	WalletID      string     `json:"walletId" db:"wallet_id"`
	WalletAddress string     `json:"walletAddress" db:"wallet_address"`
	WalletType    WalletType `json:"walletType" db:"wallet_type"`
	Strategy      string     `json:"strategy" db:"strategy"`
	Chain         ChainID    `json:"chain" db:"chain"`
	Protocol      string     `json:"protocol" db:"protocol"`
	Type          string     `json:"type" db:"type"`
	Symbol        string     `json:"symbol" db:"symbol"`
	Amount        float64    `json:"amount" db:"amount"`
	Price         *float64   `json:"price" db:"price"`
	Fee           float64    `json:"fee" db:"fee"`
	FeeAsset      string     `json:"feeAsset" db:"fee_asset"`
}

// MarginAccount is one cross-margined account (wallet + subaccount) whose
// equity is shared among its derivative positions pro rata by notional
type MarginAccount struct {
	WalletID   string
	Subaccount int
	Equity     float64
	Positions  []*Position
}
