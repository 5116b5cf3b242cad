package pricing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// SimulatedProvider mocks a market data provider with deterministic pseudo-random
// quotes. A price only depends on the symbol and the bucket of width ttl the
// clock falls in, so it is regenerated on every call instead of stored.
type SimulatedProvider struct {
	ttl      time.Duration
	currency string
	nowFunc  func() time.Time
}

func NewSimulatedProvider(ttl time.Duration, currency string) *SimulatedProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SimulatedProvider{
		ttl:      ttl,
		currency: currency,
		nowFunc:  time.Now,
	}
}

func (s *SimulatedProvider) Kind() Kind { return KindSimulated }

func (s *SimulatedProvider) Quote(ctx context.Context, symbol string) (RawQuote, error) {
	if symbol == "" {
		return RawQuote{}, ErrNoQuote
	}
	now := s.nowFunc().UTC()
	return RawQuote{
		Price:         s.generatePrice(symbol, now),
		PreviousClose: s.generatePrice(symbol, now.Add(-24*time.Hour)),
		Currency:      s.currency,
		AsOf:          now,
	}, nil
}

func (s *SimulatedProvider) generatePrice(symbol string, t time.Time) decimal.Decimal {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s-%d", symbol, t.Truncate(s.ttl).Unix())))
	seed := int64(h.Sum64())
	r := rand.New(rand.NewSource(seed))
	// 1,000 to 200,000 mimics liquid KRW-listed stocks.
	price := 1000 + r.Float64()*199000
	return decimal.NewFromFloat(price).Round(0)
}
