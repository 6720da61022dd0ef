// Package sync keeps the candle store current by pulling forex bars from
// the external price API on a schedule, re-deriving the annotated fields
// over the overlap window, and upserting the result.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"martlet/services/market"
)

// TiingoClient fetches intraday forex prices from the Tiingo REST API.
type TiingoClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewTiingoClient(baseURL, token string) *TiingoClient {
	return &TiingoClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type tiingoPrice struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// FetchPrices returns raw bars for [start, end]. Derived fields are left
// for enrichment.
func (c *TiingoClient) FetchPrices(ctx context.Context, ticker, timeframe string, start, end time.Time) ([]market.Candle, error) {
	endpoint := fmt.Sprintf("%s/tiingo/fx/%s/prices?%s", c.baseURL, url.PathEscape(ticker), url.Values{
		"startDate":    {start.UTC().Format("2006-01-02")},
		"endDate":      {end.UTC().Format("2006-01-02")},
		"resampleFreq": {timeframe},
		"token":        {c.token},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("price api %d: %s", resp.StatusCode, string(body))
	}

	var prices []tiingoPrice
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}

	bars := make([]market.Candle, 0, len(prices))
	for _, p := range prices {
		bars = append(bars, market.Candle{
			Ticker:    ticker,
			Timeframe: timeframe,
			Timestamp: p.Date.UTC(),
			Open:      decimal.NewFromFloat(p.Open),
			High:      decimal.NewFromFloat(p.High),
			Low:       decimal.NewFromFloat(p.Low),
			Close:     decimal.NewFromFloat(p.Close),
		})
	}
	return bars, nil
}
