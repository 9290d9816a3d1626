package history

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/portfolio-aggregator/internal/adapter"
	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/series"
)

type histodayResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// CryptoCompareSource reads daily closes from /data/v2/histoday
type CryptoCompareSource struct {
	client *adapter.JSONClient
	apiKey string
}

// NewCryptoCompareSource creates a source; apiKey may be empty
func NewCryptoCompareSource(client *adapter.JSONClient, apiKey string) *CryptoCompareSource {
	return &CryptoCompareSource{client: client, apiKey: apiKey}
}

// Name implements Source
func (s *CryptoCompareSource) Name() string { return "cryptocompare" }

// Fetch implements Source
func (s *CryptoCompareSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (series.Series, error) {
	q := url.Values{}
	q.Set("fsym", strings.ToUpper(symbol))
	q.Set("tsym", "USD")
	q.Set("limit", strconv.Itoa(lookbackDays))
	if s.apiKey != "" {
		q.Set("api_key", s.apiKey)
	}

	var resp histodayResponse
	if err := s.client.GetJSON(ctx, "/data/v2/histoday", q, &resp); err != nil {
		return nil, err
	}
	if resp.Response != "Success" {
		return nil, apperrors.NewMalformedResponseError(s.Name(), fmt.Sprintf("response %q: %s", resp.Response, resp.Message))
	}

	out := make(series.Series, 0, len(resp.Data.Data))
	for _, row := range resp.Data.Data {
		// unlisted days come back as zero closes
		if row.Close <= 0 {
			continue
		}
		out = append(out, series.Point{Time: time.Unix(row.Time, 0).UTC(), Value: row.Close})
	}
	return out, nil
}
