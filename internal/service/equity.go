package service

import (
	"context"
	"math"

	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/types"
)

// Claim is one position's share weight in a margin account
type Claim struct {
	ID       string
	Notional float64
}

// AttributeEquity splits totalEquity across claims pro rata by notional.
// When the notionals sum to zero every claim gets 0.
func AttributeEquity(totalEquity float64, claims []Claim) map[string]float64 {
	out := make(map[string]float64, len(claims))

	var total float64
	for _, c := range claims {
		total += c.Notional
	}
	for _, c := range claims {
		var share float64
		if total != 0 {
			share = c.Notional / total * totalEquity
		}
		out[c.ID] += share
	}
	return out
}

// AttributeAccounts fills equity and notional on the derivative positions
// of each margin account. Attribution never crosses accounts. Closed
// positions get zero equity; positions without a usable value are skipped
// with a warning and keep a nil equity.
func AttributeAccounts(ctx context.Context, accounts []*types.MarginAccount) {
	logger := logging.FromContext(ctx)

	for _, acct := range accounts {
		var claims []Claim
		open := make([]*types.Position, 0, len(acct.Positions))

		for _, p := range acct.Positions {
			if p.Status == types.StatusClosed {
				p.Equity = types.Float(0)
				if p.Notional == nil {
					p.Notional = types.Float(0)
				}
				continue
			}
			notional, ok := positionNotional(p)
			if !ok {
				logger.WithFields(logging.Fields{
					"position_id": p.PositionID,
					"wallet_id":   acct.WalletID,
					"subaccount":  acct.Subaccount,
				}).Warn("Skipping equity attribution for position without price or amount")
				continue
			}
			p.Notional = types.Float(notional)
			claims = append(claims, Claim{ID: p.PositionID, Notional: notional})
			open = append(open, p)
		}

		shares := AttributeEquity(acct.Equity, claims)
		for _, p := range open {
			p.Equity = types.Float(shares[p.PositionID])
		}
	}
}

// positionNotional returns |value|, deriving value from amount and price when unset
func positionNotional(p *types.Position) (float64, bool) {
	value := p.Value
	if value == nil && p.Price != nil {
		value = types.Float(p.Amount * *p.Price)
		p.Value = value
	}
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return 0, false
	}
	return math.Abs(*value), true
}
