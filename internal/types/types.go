// Package types provides common type definitions for the portfolio aggregator.
package types

import (
	"fmt"
	"strings"
	"time"
)

// WalletType identifies which provider adapter handles a wallet
type WalletType string

const (
	WalletDydx   WalletType = "DYDX"
	WalletEVM    WalletType = "EVM"
	WalletSolana WalletType = "SOL"
	WalletBTC    WalletType = "BTC"
	WalletDoge   WalletType = "DOGE"
	WalletCircle WalletType = "CIRCLE"
	WalletManual WalletType = "MANUAL"
)

// ParseWalletType normalizes a wallet type read from reference data
func ParseWalletType(s string) WalletType {
	return WalletType(strings.ToUpper(strings.TrimSpace(s)))
}

// PositionType classifies how a holding is held
type PositionType string

const (
	PositionHodl   PositionType = "hodl"
	PositionPerps  PositionType = "perps"
	PositionCash   PositionType = "cash"
	PositionSpot   PositionType = "spot"
	PositionSupply PositionType = "supply"
	PositionBorrow PositionType = "borrow"
	PositionReward PositionType = "reward"
	PositionRelay  PositionType = "relay"
	PositionLock   PositionType = "lock"
)

// AssetType is the risk classification of an asset from reference data
type AssetType string

const (
	// AssetStable marks assets defined to carry no systematic risk
	AssetStable AssetType = "STABLE"
)

// IsStable reports whether the asset type is STABLE
func (a AssetType) IsStable() bool {
	return strings.EqualFold(string(a), string(AssetStable))
}

// PositionStatus tracks whether a derivative position still holds margin
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// ChainID represents a chain or custodian venue
type ChainID string

const (
	ChainEthereum ChainID = "ethereum"
	ChainArbitrum ChainID = "arbitrum"
	ChainOptimism ChainID = "optimism"
	ChainBase     ChainID = "base"
	ChainPolygon  ChainID = "polygon"
	ChainSolana   ChainID = "solana"
	ChainDydx     ChainID = "dydx"
	ChainBitcoin  ChainID = "btc"
	ChainDoge     ChainID = "doge"
	ChainCircle   ChainID = "circle"
)

// NormalizeChainID lowercases and maps common aliases onto canonical chain ids
func NormalizeChainID(chain string) ChainID {
	c := strings.ToLower(strings.TrimSpace(chain))
	switch c {
	case "eth", "mainnet":
		return ChainEthereum
	case "arb", "arbitrum-one":
		return ChainArbitrum
	case "op":
		return ChainOptimism
	case "matic":
		return ChainPolygon
	case "sol":
		return ChainSolana
	case "bitcoin":
		return ChainBitcoin
	case "dogecoin":
		return ChainDoge
	}
	return ChainID(c)
}

// PositionID builds the stable identity used for day-over-day diffing
func PositionID(walletID string, chain ChainID, protocol string, positionType PositionType, symbol string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s", walletID, chain, protocol, positionType, symbol)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Float returns a pointer to v, for populating nullable numeric fields
func Float(v float64) *float64 {
	return &v
}

// Deref returns the value behind p, or fallback when p is nil
func Deref(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// Day truncates t to midnight UTC; snapshot dates are UTC calendar days
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
