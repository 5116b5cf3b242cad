package pricing

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Exchanger converts an amount in one currency into the base currency.
type Exchanger interface {
	ToBase(amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// StaticRates is a fixed table of base-currency units per one unit of a currency.
type StaticRates struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticRates validates every code against the ISO table known to go-money.
func NewStaticRates(base string, rates map[string]decimal.Decimal) (*StaticRates, error) {
	base = strings.ToUpper(base)
	if money.GetCurrency(base) == nil {
		return nil, fmt.Errorf("unknown base currency %q", base)
	}
	out := &StaticRates{base: base, rates: map[string]decimal.Decimal{base: decimal.NewFromInt(1)}}
	for code, rate := range rates {
		code = strings.ToUpper(code)
		if money.GetCurrency(code) == nil {
			return nil, fmt.Errorf("unknown currency %q", code)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		out.rates[code] = rate
	}
	return out, nil
}

// ParseRates reads "USD:1350,JPY:9.1".
func ParseRates(raw string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, val, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed rate %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", code, err)
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return out, nil
}

// Base is the currency amounts are converted into.
func (s *StaticRates) Base() string { return s.base }

// ToBase treats an empty currency as already in base.
func (s *StaticRates) ToBase(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" {
		return amount, nil
	}
	rate, ok := s.rates[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate from %s to %s", currency, s.base)
	}
	return amount.Mul(rate), nil
}

// MinorUnits is the number of fractional digits of a currency, e.g. 0 for KRW and 2 for USD.
func MinorUnits(code string) (int32, error) {
	c := money.GetCurrency(strings.ToUpper(code))
	if c == nil {
		return 0, fmt.Errorf("unknown currency %q", code)
	}
	return int32(c.Fraction), nil
}
