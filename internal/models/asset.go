package models

import "github.com/portfolio-aggregator/internal/types"

// AssetInfo is the reference metadata for a symbol. Rows registered
// automatically for unknown symbols carry only Symbol until an operator fills them.
type AssetInfo struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	BaseAsset   string          `json:"baseAsset" db:"base_asset"`
	AssetType   types.AssetType `json:"assetType" db:"asset_type"`
	Sector      string          `json:"sector" db:"sector"`
	RewardType  string          `json:"rewardType" db:"reward_type"`
	CoinGeckoID string          `json:"coingeckoId" db:"coingecko_id"`
}

// IsPlaceholder reports whether the row was auto-registered and never filled
func (a *AssetInfo) IsPlaceholder() bool {
	return a.BaseAsset == "" && a.AssetType == ""
}
