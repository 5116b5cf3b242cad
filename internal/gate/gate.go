// Package gate runs the read-only preconditions a trade must pass before the
// ledger is touched.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/pricing"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/sirupsen/logrus"
)

// Resolver supplies live quotes.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (models.PriceQuote, error)
}

// Stores groups the predicates the gate reads.
type Stores struct {
	Accounts repository.Accounts
	Catalog  repository.Catalog
	Policies repository.Policies
}

// TradeGate validates a trade and returns the quote it must execute at.
type TradeGate struct {
	stores   Stores
	resolver Resolver
	window   time.Duration
	now      func() time.Time
	logger   *logrus.Entry
}

func New(stores Stores, resolver Resolver, freshnessWindow time.Duration, logger *logrus.Logger) *TradeGate {
	return &TradeGate{
		stores:   stores,
		resolver: resolver,
		window:   freshnessWindow,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.WithField("component", "trade-gate"),
	}
}

// Authorize checks, in order and failing on the first miss: the account and
// stock exist; a constrained account has the symbol on both its class
// allow-list and its watchlist; a provider prices the symbol; the stored and
// live prices are inside the freshness window; the quantity is positive.
func (g *TradeGate) Authorize(ctx context.Context, req models.TradeRequest) (models.PriceQuote, error) {
	if !req.Side.Valid() {
		return models.PriceQuote{}, apperr.Validation("side must be BUY or SELL, got %q", req.Side)
	}
	account, stock, err := g.lookup(ctx, req)
	if err != nil {
		return models.PriceQuote{}, err
	}
	if err := g.checkPermission(ctx, account, stock.Symbol); err != nil {
		return models.PriceQuote{}, err
	}
	quote, err := g.resolver.Resolve(ctx, stock.Symbol)
	if err != nil {
		return models.PriceQuote{}, err
	}
	if !quote.Price.IsPositive() {
		return models.PriceQuote{}, &apperr.PriceUnavailableError{Symbol: stock.Symbol}
	}
	if err := g.checkFreshness(stock, quote); err != nil {
		return models.PriceQuote{}, err
	}
	if req.Quantity <= 0 {
		return models.PriceQuote{}, apperr.Validation("quantity must be a positive integer, got %d", req.Quantity)
	}
	quote.StoredAsOf = stock.PriceUpdatedAt
	return quote, nil
}

func (g *TradeGate) lookup(ctx context.Context, req models.TradeRequest) (models.Account, models.Stock, error) {
	account, err := g.stores.Accounts.GetAccount(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return account, models.Stock{}, apperr.Validation("unknown account %q", req.AccountID)
		}
		return account, models.Stock{}, fmt.Errorf("load account: %w", err)
	}
	stock, err := g.stores.Catalog.GetStock(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return account, stock, apperr.Validation("unknown symbol %q", req.Symbol)
		}
		return account, stock, fmt.Errorf("load stock: %w", err)
	}
	return account, stock, nil
}

func (g *TradeGate) checkPermission(ctx context.Context, account models.Account, symbol string) error {
	if !account.Constrained() {
		return nil
	}
	allowed, err := g.stores.Policies.IsSymbolAllowed(ctx, account.ClassID, symbol)
	if err != nil {
		return fmt.Errorf("check class allow-list: %w", err)
	}
	if !allowed {
		g.logger.WithFields(logrus.Fields{"account": account.ID, "class": account.ClassID, "symbol": symbol}).Info("symbol not allowed for class")
		return &apperr.PermissionError{Symbol: symbol, Reason: "not allowed for your class"}
	}
	watched, err := g.stores.Policies.WatchlistContains(ctx, account.ID, symbol)
	if err != nil {
		return fmt.Errorf("check watchlist: %w", err)
	}
	if !watched {
		return &apperr.PermissionError{Symbol: symbol, Reason: "not on your watchlist"}
	}
	return nil
}

// checkFreshness looks at the stored timestamp first so a symbol the
// collector never priced stays blocked even when a live quote exists.
func (g *TradeGate) checkFreshness(stock models.Stock, quote models.PriceQuote) error {
	now := g.now()
	if !pricing.IsFresh(stock.PriceUpdatedAt, now, g.window) {
		return &apperr.StalePriceError{Symbol: stock.Symbol, LastUpdate: stock.PriceUpdatedAt, Window: g.window}
	}
	if !quote.IsFresh {
		return &apperr.StalePriceError{Symbol: stock.Symbol, LastUpdate: quote.AsOf, Window: g.window}
	}
	return nil
}
