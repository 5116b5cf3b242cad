package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// PricePlaces is the scale resolved base-currency prices are rounded to.
const PricePlaces int32 = 4

// Resolver walks providers in their declared order and returns the first
// quote with a positive price, converted into the base currency.
type Resolver struct {
	providers []Provider
	cache     *QuoteCache
	fx        Exchanger
	timeout   time.Duration
	window    time.Duration
	now       func() time.Time
	group     singleflight.Group
	logger    *logrus.Entry
}

// ResolverConfig holds the resolver's tunables.
type ResolverConfig struct {
	ProviderTimeout time.Duration
	FreshnessWindow time.Duration
}

func NewResolver(providers []Provider, cache *QuoteCache, fx Exchanger, cfg ResolverConfig, logger *logrus.Logger) *Resolver {
	return &Resolver{
		providers: providers,
		cache:     cache,
		fx:        fx,
		timeout:   cfg.ProviderTimeout,
		window:    cfg.FreshnessWindow,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.WithField("component", "price-resolver"),
	}
}

// Resolve returns a quote or an *apperr.PriceUnavailableError. Concurrent
// calls for the same symbol share a single walk of the providers.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (models.PriceQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return models.PriceQuote{}, apperr.Validation("symbol is required")
	}
	ch := r.group.DoChan(symbol, func() (interface{}, error) {
		// The shared walk must not die with whichever caller started it.
		return r.walk(context.WithoutCancel(ctx), symbol)
	})
	select {
	case <-ctx.Done():
		return models.PriceQuote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.PriceQuote{}, res.Err
		}
		return res.Val.(models.PriceQuote), nil
	}
}

// Invalidate drops cached provider answers for symbol.
func (r *Resolver) Invalidate(symbol string) {
	kinds := make([]Kind, 0, len(r.providers))
	for _, p := range r.providers {
		kinds = append(kinds, p.Kind())
	}
	r.cache.Forget(strings.ToUpper(symbol), kinds...)
}

func (r *Resolver) walk(ctx context.Context, symbol string) (models.PriceQuote, error) {
	attempts := 0
	for _, p := range r.providers {
		attempts++
		raw, err := r.fetch(ctx, p, symbol)
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{"provider": p.Kind(), "symbol": symbol}).Debug("provider failed")
			continue
		}
		quote, err := r.normalize(symbol, p.Kind(), raw)
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{"provider": p.Kind(), "symbol": symbol}).Warn("quote normalization failed")
			continue
		}
		if !quote.Price.IsPositive() {
			r.logger.WithFields(logrus.Fields{"provider": p.Kind(), "symbol": symbol, "raw": raw.Price.String()}).Warn("quote rounds to zero in base currency")
			continue
		}
		return quote, nil
	}
	r.logger.WithFields(logrus.Fields{"symbol": symbol, "attempts": attempts}).Warn("no provider returned a price")
	return models.PriceQuote{}, &apperr.PriceUnavailableError{Symbol: symbol, Attempts: attempts}
}

func (r *Resolver) fetch(ctx context.Context, p Provider, symbol string) (RawQuote, error) {
	if q, ok := r.cache.Get(p.Kind(), symbol); ok {
		return q, nil
	}
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	q, err := p.Quote(callCtx, symbol)
	if err != nil {
		return RawQuote{}, err
	}
	if !q.Price.IsPositive() {
		return RawQuote{}, fmt.Errorf("%w: non-positive price %s", ErrNoQuote, q.Price)
	}
	r.cache.Put(p.Kind(), symbol, q)
	return q, nil
}

func (r *Resolver) normalize(symbol string, kind Kind, raw RawQuote) (models.PriceQuote, error) {
	price, err := r.fx.ToBase(raw.Price, raw.Currency)
	if err != nil {
		return models.PriceQuote{}, err
	}
	prev := decimal.Zero
	if raw.PreviousClose.IsPositive() {
		if prev, err = r.fx.ToBase(raw.PreviousClose, raw.Currency); err != nil {
			return models.PriceQuote{}, err
		}
	}
	return models.PriceQuote{
		Symbol:        symbol,
		Price:         price.Round(PricePlaces),
		PreviousClose: prev.Round(PricePlaces),
		AsOf:          raw.AsOf,
		Source:        string(kind),
		IsFresh:       IsFresh(raw.AsOf, r.now(), r.window),
	}, nil
}

// IsFresh reports whether asOf is younger than window at now. A zero time is never fresh.
func IsFresh(asOf, now time.Time, window time.Duration) bool {
	if asOf.IsZero() {
		return false
	}
	return now.Sub(asOf) < window
}
