package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const yahooBaseURL = "https://query2.finance.yahoo.com"

// YahooProvider reads the v8 chart endpoint.
type YahooProvider struct {
	cli     *http.Client
	baseURL string
}

func NewYahooProvider(timeout time.Duration) *YahooProvider {
	return &YahooProvider{
		cli:     &http.Client{Timeout: timeout},
		baseURL: yahooBaseURL,
	}
}

func (p *YahooProvider) Kind() Kind { return KindYahoo }

func (p *YahooProvider) Quote(ctx context.Context, symbol string) (RawQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return RawQuote{}, ErrNoQuote
	}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", p.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RawQuote{}, err
	}
	req.Header.Set("User-Agent", "tradesim/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return RawQuote{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RawQuote{}, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return RawQuote{}, fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Currency           string  `json:"currency"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
					ChartPreviousClose float64 `json:"chartPreviousClose"`
				} `json:"meta"`
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return RawQuote{}, fmt.Errorf("decode yahoo chart: %w", err)
	}
	if len(raw.Chart.Result) == 0 {
		return RawQuote{}, ErrNoQuote
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	var asOf time.Time
	if r.Meta.RegularMarketTime > 0 {
		asOf = time.Unix(r.Meta.RegularMarketTime, 0).UTC()
	}

	// Fall back to the last non-empty close when meta is missing.
	if price <= 0 || asOf.IsZero() {
		if len(r.Indicators.Quote) > 0 && len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
			closes := r.Indicators.Quote[0].Close
			for i := len(r.Timestamp) - 1; i >= 0; i-- {
				if c := closes[i]; c != nil && *c > 0 {
					price = *c
					asOf = time.Unix(r.Timestamp[i], 0).UTC()
					break
				}
			}
		}
	}
	if price <= 0 || asOf.IsZero() {
		return RawQuote{}, ErrNoQuote
	}

	return RawQuote{
		Price:         decimal.NewFromFloat(price),
		PreviousClose: decimal.NewFromFloat(r.Meta.ChartPreviousClose),
		Currency:      strings.ToUpper(r.Meta.Currency),
		AsOf:          asOf,
	}, nil
}
