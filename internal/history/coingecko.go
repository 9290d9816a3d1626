package history

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/portfolio-aggregator/internal/adapter"
	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/series"
)

// IDResolver maps a symbol to its CoinGecko coin id
type IDResolver interface {
	CoinGeckoID(symbol string) string
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// CoinGeckoSource reads daily prices from /coins/{id}/market_chart
type CoinGeckoSource struct {
	client *adapter.JSONClient
	ids    IDResolver
}

// NewCoinGeckoSource creates a source resolving coin ids through ids
func NewCoinGeckoSource(client *adapter.JSONClient, ids IDResolver) *CoinGeckoSource {
	return &CoinGeckoSource{client: client, ids: ids}
}

// Name implements Source
func (s *CoinGeckoSource) Name() string { return "coingecko" }

// Fetch implements Source
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (series.Series, error) {
	id := s.ids.CoinGeckoID(symbol)
	if id == "" {
		return nil, apperrors.NewMissingAssetError(symbol)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(lookbackDays))
	q.Set("interval", "daily")

	var resp marketChartResponse
	if err := s.client.GetJSON(ctx, fmt.Sprintf("/coins/%s/market_chart", url.PathEscape(id)), q, &resp); err != nil {
		return nil, err
	}

	out := make(series.Series, 0, len(resp.Prices))
	for _, pair := range resp.Prices {
		out = append(out, series.Point{Time: time.UnixMilli(int64(pair[0])).UTC(), Value: pair[1]})
	}
	return out, nil
}
