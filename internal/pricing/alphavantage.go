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

const alphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantageProvider reads GLOBAL_QUOTE. The endpoint does not report a
// currency; quotes are assumed to be in USD. It only reports the trading day,
// so quotes are stamped with the time they were fetched.
type AlphaVantageProvider struct {
	apiKey  string
	cli     *http.Client
	baseURL string
	now     func() time.Time
}

func NewAlphaVantageProvider(apiKey string, timeout time.Duration) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:  apiKey,
		cli:     &http.Client{Timeout: timeout},
		baseURL: alphaVantageBaseURL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *AlphaVantageProvider) Kind() Kind { return KindAlphaVantage }

func (p *AlphaVantageProvider) Quote(ctx context.Context, symbol string) (RawQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return RawQuote{}, ErrNoQuote
	}
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return RawQuote{}, err
	}
	req.Header.Set("User-Agent", "tradesim/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return RawQuote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RawQuote{}, fmt.Errorf("alphavantage http %d", resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return RawQuote{}, fmt.Errorf("decode alphavantage quote: %w", err)
	}
	if _, ok := raw["Note"]; ok {
		return RawQuote{}, ErrRateLimited
	}
	if _, ok := raw["Information"]; ok {
		return RawQuote{}, ErrRateLimited
	}
	var gq map[string]string
	if body, ok := raw["Global Quote"]; !ok || json.Unmarshal(body, &gq) != nil || len(gq) == 0 {
		return RawQuote{}, ErrNoQuote
	}

	price, err := decimal.NewFromString(gq["05. price"])
	if err != nil || !price.IsPositive() {
		return RawQuote{}, ErrNoQuote
	}
	prev, _ := decimal.NewFromString(gq["08. previous close"])
	if _, err := time.Parse("2006-01-02", gq["07. latest trading day"]); err != nil {
		return RawQuote{}, fmt.Errorf("alphavantage trading day: %w", err)
	}
	return RawQuote{Price: price, PreviousClose: prev, Currency: "USD", AsOf: p.now()}, nil
}
