package service

import (
	"sort"

	"github.com/portfolio-aggregator/internal/types"
)

// StrategyExposure aggregates one strategy's positions
type StrategyExposure struct {
	Strategy  string  `json:"strategy"`
	Positions int     `json:"positions"`
	Value     float64 `json:"value"`
	Equity    float64 `json:"equity"`
	Notional  float64 `json:"notional"`
	// BetaDaily and BetaWeekly are equity-weighted over positions with a defined beta
	BetaDaily  types.Ratio `json:"betaDaily"`
	BetaWeekly types.Ratio `json:"betaWeekly"`
	// UncoveredValue is the value of positions without a daily beta
	UncoveredValue float64 `json:"uncoveredValue"`
}

// ExposureReport is the per-strategy breakdown plus a portfolio total
type ExposureReport struct {
	Strategies []StrategyExposure `json:"strategies"`
	Total      StrategyExposure   `json:"total"`
}

type betaAccumulator struct {
	exp                StrategyExposure
	dailyW, dailySum   float64
	weeklyW, weeklySum float64
}

func (a *betaAccumulator) add(p *types.Position) {
	a.exp.Positions++
	a.exp.Value += p.ValueOrZero()
	equity := types.Deref(p.Equity, 0)
	a.exp.Equity += equity
	a.exp.Notional += types.Deref(p.Notional, 0)

	if p.BetaDaily.IsNaN() {
		a.exp.UncoveredValue += p.ValueOrZero()
	} else {
		a.dailyW += equity
		a.dailySum += equity * float64(p.BetaDaily)
	}
	if !p.BetaWeekly.IsNaN() {
		a.weeklyW += equity
		a.weeklySum += equity * float64(p.BetaWeekly)
	}
}

func (a *betaAccumulator) result() StrategyExposure {
	out := a.exp
	out.BetaDaily, out.BetaWeekly = types.NaN(), types.NaN()
	if a.dailyW != 0 {
		out.BetaDaily = types.Ratio(a.dailySum / a.dailyW)
	}
	if a.weeklyW != 0 {
		out.BetaWeekly = types.Ratio(a.weeklySum / a.weeklyW)
	}
	return out
}

// Exposure sums value, equity and notional by strategy and computes
// equity-weighted betas
func Exposure(positions []*types.Position) *ExposureReport {
	byStrategy := make(map[string]*betaAccumulator)
	total := &betaAccumulator{exp: StrategyExposure{Strategy: "total"}}

	for _, p := range positions {
		acc, ok := byStrategy[p.Strategy]
		if !ok {
			acc = &betaAccumulator{exp: StrategyExposure{Strategy: p.Strategy}}
			byStrategy[p.Strategy] = acc
		}
		acc.add(p)
		total.add(p)
	}

	report := &ExposureReport{
		Strategies: make([]StrategyExposure, 0, len(byStrategy)),
		Total:      total.result(),
	}
	for _, acc := range byStrategy {
		report.Strategies = append(report.Strategies, acc.result())
	}
	sort.Slice(report.Strategies, func(i, j int) bool {
		return report.Strategies[i].Strategy < report.Strategies[j].Strategy
	})
	return report
}
