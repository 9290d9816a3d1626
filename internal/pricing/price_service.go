// Package pricing resolves USD spot prices for symbols.
package pricing

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/portfolio-aggregator/internal/adapter"
	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
)

// Cache stores recently fetched prices
type Cache interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	SetPrices(ctx context.Context, prices map[string]float64, ttl time.Duration) error
}

// IDResolver maps a symbol to its CoinGecko coin id
type IDResolver interface {
	CoinGeckoID(symbol string) string
}

// PriceService looks up prices in the cache first, then CryptoCompare, then
// CoinGecko for symbols with a known coin id
type PriceService struct {
	cache         Cache
	cryptoCompare *adapter.JSONClient
	apiKey        string
	coinGecko     *adapter.JSONClient
	ids           IDResolver
	ttl           time.Duration
}

// NewPriceService creates a price service. cache and coinGecko may be nil.
func NewPriceService(cache Cache, cryptoCompare *adapter.JSONClient, apiKey string, coinGecko *adapter.JSONClient, ids IDResolver, ttl time.Duration) *PriceService {
	return &PriceService{
		cache:         cache,
		cryptoCompare: cryptoCompare,
		apiKey:        apiKey,
		coinGecko:     coinGecko,
		ids:           ids,
		ttl:           ttl,
	}
}

// FetchPrices returns USD prices keyed by upper-case symbol. Symbols no source
// can price are left out and logged as data gaps.
func (s *PriceService) FetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	logger := logging.FromContext(ctx)
	wanted := dedupe(symbols)
	prices := make(map[string]float64, len(wanted))
	if len(wanted) == 0 {
		return prices
	}

	if s.cache != nil {
		cached, err := s.cache.GetPrices(ctx, wanted)
		if err != nil {
			logger.WithError(err).Warn("Price cache unavailable")
		}
		for k, v := range cached {
			prices[k] = v
		}
	}

	fresh := make(map[string]float64)
	for _, symbol := range wanted {
		if _, ok := prices[symbol]; ok {
			continue
		}
		price, err := s.fetchOne(ctx, symbol)
		if err != nil {
			logger.WithError(apperrors.NewMissingPriceError(symbol, err)).WithField("symbol", symbol).Warn("No price available")
			continue
		}
		prices[symbol] = price
		fresh[symbol] = price
	}

	if s.cache != nil && len(fresh) > 0 {
		if err := s.cache.SetPrices(ctx, fresh, s.ttl); err != nil {
			logger.WithError(err).Warn("Failed to cache prices")
		}
	}
	return prices
}

func (s *PriceService) fetchOne(ctx context.Context, symbol string) (float64, error) {
	price, err := s.cryptoComparePrice(ctx, symbol)
	if err == nil {
		return price, nil
	}
	if s.coinGecko == nil || s.ids == nil {
		return 0, err
	}
	id := s.ids.CoinGeckoID(symbol)
	if id == "" {
		return 0, err
	}
	return s.coinGeckoPrice(ctx, id)
}

func (s *PriceService) cryptoComparePrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("fsym", symbol)
	q.Set("tsyms", "USD")
	if s.apiKey != "" {
		q.Set("api_key", s.apiKey)
	}

	// errors come back as {"Response":"Error",...} with status 200
	var resp map[string]interface{}
	if err := s.cryptoCompare.GetJSON(ctx, "/data/price", q, &resp); err != nil {
		return 0, err
	}
	usd, ok := resp["USD"].(float64)
	if !ok || usd <= 0 {
		return 0, fmt.Errorf("cryptocompare has no USD price for %s: %v", symbol, resp["Message"])
	}
	return usd, nil
}

type coinResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

func (s *PriceService) coinGeckoPrice(ctx context.Context, id string) (float64, error) {
	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")

	var resp coinResponse
	if err := s.coinGecko.GetJSON(ctx, "/coins/"+url.PathEscape(id), q, &resp); err != nil {
		return 0, err
	}
	usd, ok := resp.MarketData.CurrentPrice["usd"]
	if !ok || usd <= 0 {
		return 0, fmt.Errorf("coingecko has no USD price for %s", id)
	}
	return usd, nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
