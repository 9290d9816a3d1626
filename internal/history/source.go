// Package history fetches daily close price series used for beta estimation.
package history

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/series"
)

// Source fetches daily USD closes for a symbol covering lookbackDays
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, lookbackDays int) (series.Series, error)
}

// Registry maps source names to implementations
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates a registry holding the given sources
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.sources[strings.ToLower(s.Name())] = s
	}
	return r
}

// Names lists the registered sources in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain builds a fallback chain over the named sources in order
func (r *Registry) Chain(names []string) (*Chain, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("history source chain is empty")
	}
	chain := &Chain{}
	for _, name := range names {
		s, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown history source %q (have %s)", name, strings.Join(r.Names(), ", "))
		}
		chain.sources = append(chain.sources, s)
	}
	return chain, nil
}

// Chain tries each source in order and returns the first usable series
type Chain struct {
	sources []Source
}

// NewChain creates a chain directly from sources
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Name implements Source
func (c *Chain) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ">")
}

// Fetch implements Source. The returned series is normalized. A source that
// errors or returns fewer than two points passes to the next one.
func (c *Chain) Fetch(ctx context.Context, symbol string, lookbackDays int) (series.Series, error) {
	s, _, err := c.FetchFrom(ctx, symbol, lookbackDays)
	return s, err
}

// FetchFrom is Fetch that also reports which source served the series
func (c *Chain) FetchFrom(ctx context.Context, symbol string, lookbackDays int) (series.Series, Source, error) {
	logger := logging.FromContext(ctx).WithField("symbol", symbol)

	var lastErr error
	for _, src := range c.sources {
		s, err := src.Fetch(ctx, symbol, lookbackDays)
		if err != nil {
			lastErr = err
			logger.WithError(err).WithField("source", src.Name()).Debug("History source failed, trying next")
			continue
		}
		s = s.Normalize()
		if !s.Usable() {
			lastErr = fmt.Errorf("%s returned %d points", src.Name(), s.Len())
			continue
		}
		return s, src, nil
	}
	return nil, nil, apperrors.NewMissingHistoryError(symbol, c.Name(), lastErr)
}

// FetchFrom fetches symbol from src and reports the source that served it.
// Chains name the member that answered; any other source names itself.
func FetchFrom(ctx context.Context, src Source, symbol string, lookbackDays int) (series.Series, Source, error) {
	if c, ok := src.(*Chain); ok {
		return c.FetchFrom(ctx, symbol, lookbackDays)
	}
	s, err := src.Fetch(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, nil, err
	}
	return s, src, nil
}
