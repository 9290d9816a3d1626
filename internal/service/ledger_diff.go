package service

import (
	"github.com/portfolio-aggregator/internal/types"
)

// IndexByID keys a snapshot by position id
func IndexByID(positions []*types.Position) map[string]*types.Position {
	out := make(map[string]*types.Position, len(positions))
	for _, p := range positions {
		out[p.PositionID] = p
	}
	return out
}

// DiffStats counts how each position was matched against the previous snapshot
type DiffStats struct {
	New       int
	Persisted int
	// Dropped counts previous ids that are absent from the current snapshot
	Dropped int
}

// Diff sets amount_change and cost_basis on every current position from
// its row in the previous snapshot.
//
// A position with no previous row is new: amount_change is its amount and
// cost_basis defaults to its value unless the provider supplied one. A
// persisted position gets amount - previous amount and carries the previous
// cost_basis forward, falling back to the new-position rule when the
// previous row had none. previous may be nil when no earlier snapshot exists.
func Diff(current []*types.Position, previous map[string]*types.Position) DiffStats {
	var stats DiffStats
	matched := 0
	for _, p := range current {
		prev, ok := previous[p.PositionID]
		if !ok {
			stats.New++
			p.AmountChange = p.Amount
			if p.CostBasis == nil && p.Value != nil {
				p.CostBasis = types.Float(*p.Value)
			}
			continue
		}

		stats.Persisted++
		matched++
		p.AmountChange = p.Amount - prev.Amount
		switch {
		case prev.CostBasis != nil:
			p.CostBasis = types.Float(*prev.CostBasis)
		case p.CostBasis == nil && p.Value != nil:
			p.CostBasis = types.Float(*p.Value)
		}
	}
	stats.Dropped = len(previous) - matched
	return stats
}
