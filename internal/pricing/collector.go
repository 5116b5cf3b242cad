package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/sirupsen/logrus"
)

// Collector is the only writer of catalog prices. Trades are gated on the
// timestamps it stores, which record when the price was collected.
type Collector struct {
	resolver *Resolver
	catalog  repository.Catalog
	now      func() time.Time
	logger   *logrus.Entry
}

func NewCollector(resolver *Resolver, catalog repository.Catalog, logger *logrus.Logger) *Collector {
	return &Collector{
		resolver: resolver,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.WithField("component", "price-collector"),
	}
}

// Name identifies the collector as a scheduled job.
func (c *Collector) Name() string { return "price-refresh" }

// Run refreshes every catalog symbol.
func (c *Collector) Run(ctx context.Context) error {
	_, err := c.RefreshAll(ctx)
	return err
}

// RefreshAll refreshes every catalog symbol and returns how many were updated.
// A symbol no provider can price is skipped and keeps its old timestamp.
func (c *Collector) RefreshAll(ctx context.Context) (int, error) {
	stocks, err := c.catalog.ListStocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stocks: %w", err)
	}
	updated := 0
	var errs []error
	for _, s := range stocks {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if _, err := c.store(ctx, s.Symbol); err != nil {
			errs = append(errs, err)
			continue
		}
		updated++
	}
	c.logger.WithFields(logrus.Fields{"updated": updated, "total": len(stocks)}).Info("price refresh completed")
	if updated == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return updated, nil
}

// Refresh bypasses the quote cache and stores a live price for symbol.
func (c *Collector) Refresh(ctx context.Context, symbol string) (models.Stock, error) {
	if _, err := c.catalog.GetStock(ctx, symbol); err != nil {
		return models.Stock{}, err
	}
	c.resolver.Invalidate(symbol)
	if _, err := c.store(ctx, symbol); err != nil {
		return models.Stock{}, err
	}
	return c.catalog.GetStock(ctx, symbol)
}

func (c *Collector) store(ctx context.Context, symbol string) (models.PriceQuote, error) {
	quote, err := c.resolver.Resolve(ctx, symbol)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("price refresh failed")
		return quote, err
	}
	if err := c.catalog.UpdateStockPrice(ctx, symbol, quote.Price, quote.PreviousClose, c.now()); err != nil {
		return quote, fmt.Errorf("store price for %s: %w", symbol, err)
	}
	return quote, nil
}
