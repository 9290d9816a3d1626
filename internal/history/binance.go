package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/series"
)

// binance caps a single klines request at 1000 candles
const maxKlines = 1000

// BinanceSource reads daily candle closes of the <SYMBOL>USDT spot pair
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource creates a source over a go-binance client; klines are
// public so empty credentials are fine
func NewBinanceSource(client *binance.Client) *BinanceSource {
	return &BinanceSource{client: client}
}

// Name implements Source
func (s *BinanceSource) Name() string { return "binance" }

// Fetch implements Source
func (s *BinanceSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (series.Series, error) {
	limit := lookbackDays + 1
	if limit > maxKlines {
		limit = maxKlines
	}

	klines, err := s.client.NewKlinesService().
		Symbol(strings.ToUpper(symbol) + "USDT").
		Interval("1d").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	out := make(series.Series, 0, len(klines))
	for _, k := range klines {
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, apperrors.NewMalformedResponseError(s.Name(), fmt.Sprintf("close %q: %v", k.Close, err))
		}
		out = append(out, series.Point{Time: time.UnixMilli(k.OpenTime).UTC(), Value: closePrice})
	}
	return out, nil
}
