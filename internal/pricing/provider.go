package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoQuote means a provider had nothing usable for the symbol.
	ErrNoQuote = errors.New("no quote")
	// ErrRateLimited means the upstream refused the call for quota reasons.
	ErrRateLimited = errors.New("provider rate limited")
)

// Kind tags a provider variant.
type Kind string

const (
	KindYahoo        Kind = "yahoo"
	KindAlphaVantage Kind = "alphavantage"
	KindSimulated    Kind = "simulated"
)

// RawQuote is a provider answer in the provider's own currency.
type RawQuote struct {
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Currency      string
	AsOf          time.Time
}

// Provider is one upstream price source.
type Provider interface {
	Kind() Kind
	Quote(ctx context.Context, symbol string) (RawQuote, error)
}

// ProviderOptions carries what the HTTP variants need.
type ProviderOptions struct {
	AlphaVantageKey string
	HTTPTimeout     time.Duration
	SimulatedTTL    time.Duration
	BaseCurrency    string
}

// BuildProviders instantiates providers in the declared order. Unknown kinds
// are an error; alphavantage without an API key is skipped.
func BuildProviders(kinds []string, opts ProviderOptions) ([]Provider, error) {
	out := make([]Provider, 0, len(kinds))
	for _, raw := range kinds {
		switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
		case KindYahoo:
			out = append(out, NewYahooProvider(opts.HTTPTimeout))
		case KindAlphaVantage:
			if opts.AlphaVantageKey == "" {
				continue
			}
			out = append(out, NewAlphaVantageProvider(opts.AlphaVantageKey, opts.HTTPTimeout))
		case KindSimulated:
			out = append(out, NewSimulatedProvider(opts.SimulatedTTL, opts.BaseCurrency))
		case "":
		default:
			return nil, fmt.Errorf("unknown price provider %q", raw)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no price providers configured")
	}
	return out, nil
}
