// Package ledger applies executed orders to an account's cash, holdings,
// transaction log and portfolio summary as a single atomic unit.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/costbasis"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/portfolio"
	"github.com/GooferByte/tradesim/internal/pricing"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config holds the engine's trading constants.
type Config struct {
	CommissionRate decimal.Decimal
	// CommissionPlaces is the number of fractional digits of the settlement currency.
	CommissionPlaces int32
	FreshnessWindow  time.Duration
	LockWait         time.Duration
}

// Engine is the only writer of account cash and holdings.
type Engine struct {
	store  repository.Ledger
	locks  *lockTable
	cfg    Config
	now    func() time.Time
	newID  func() string
	logger *logrus.Entry
}

func NewEngine(store repository.Ledger, cfg Config, logger *logrus.Logger) *Engine {
	return &Engine{
		store:  store,
		locks:  newLockTable(),
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: logger.WithField("component", "ledger-engine"),
	}
}

// Execute applies req at quote.Price. Orders against one account are
// serialized; once the account is locked the unit runs to completion
// regardless of ctx.
func (e *Engine) Execute(ctx context.Context, req models.TradeRequest, quote models.PriceQuote) (models.TradeResult, error) {
	if err := validate(req, quote); err != nil {
		return models.TradeResult{}, err
	}
	release, err := e.locks.acquire(ctx, req.AccountID, e.cfg.LockWait)
	if err != nil {
		return models.TradeResult{}, err
	}
	defer release()

	atomicCtx := context.WithoutCancel(ctx)
	var result models.TradeResult
	err = e.store.WithinAccount(atomicCtx, req.AccountID, func(tx repository.LedgerTx) error {
		if err := e.revalidate(atomicCtx, tx, req.Symbol, quote); err != nil {
			return err
		}
		var err error
		switch req.Side {
		case models.SideBuy:
			result, err = e.buy(atomicCtx, tx, req, quote)
		case models.SideSell:
			result, err = e.sell(atomicCtx, tx, req, quote)
		}
		return err
	})

	entry := e.logger.WithFields(logrus.Fields{
		"account":  req.AccountID,
		"symbol":   req.Symbol,
		"side":     req.Side,
		"quantity": req.Quantity,
		"price":    quote.Price.String(),
	})
	if err != nil {
		entry.WithError(err).Info("trade rejected")
		return models.TradeResult{}, err
	}
	entry.WithField("transaction", result.Transaction.ID).Info("trade committed")
	return result, nil
}

func validate(req models.TradeRequest, quote models.PriceQuote) error {
	if !req.Side.Valid() {
		return apperr.Validation("side must be BUY or SELL, got %q", req.Side)
	}
	if req.Quantity <= 0 {
		return apperr.Validation("quantity must be a positive integer, got %d", req.Quantity)
	}
	if quote.Symbol != req.Symbol {
		return apperr.Validation("quote for %q cannot execute an order for %q", quote.Symbol, req.Symbol)
	}
	if !quote.Price.IsPositive() {
		return &apperr.PriceUnavailableError{Symbol: req.Symbol}
	}
	return nil
}

// revalidate fails with a retryable conflict when the stored price moved or
// expired between authorization and lock acquisition.
func (e *Engine) revalidate(ctx context.Context, tx repository.LedgerTx, symbol string, quote models.PriceQuote) error {
	stocks, err := tx.Stocks(ctx, []string{symbol})
	if err != nil {
		return fmt.Errorf("load stock: %w", err)
	}
	if len(stocks) == 0 {
		return apperr.Validation("unknown symbol %q", symbol)
	}
	stored := stocks[0].PriceUpdatedAt
	if !stored.Equal(quote.StoredAsOf) {
		return &apperr.ConflictError{Reason: "price was refreshed while the order was pending"}
	}
	if !pricing.IsFresh(stored, e.now(), e.cfg.FreshnessWindow) {
		return &apperr.ConflictError{Reason: "price expired while the order was pending"}
	}
	return nil
}

func (e *Engine) buy(ctx context.Context, tx repository.LedgerTx, req models.TradeRequest, quote models.PriceQuote) (models.TradeResult, error) {
	account, err := tx.Account(ctx)
	if err != nil {
		return models.TradeResult{}, err
	}
	notional := costbasis.Notional(quote.Price, req.Quantity)
	commission := costbasis.Commission(notional, e.cfg.CommissionRate, e.cfg.CommissionPlaces)
	totalDebit := notional.Add(commission)
	if account.Cash.LessThan(totalDebit) {
		return models.TradeResult{}, &apperr.InsufficientFundsError{Cash: account.Cash, Required: totalDebit}
	}

	existing, _, err := tx.Holding(ctx, req.Symbol)
	if err != nil {
		return models.TradeResult{}, err
	}
	pos, err := costbasis.ApplyBuy(positionOf(existing), req.Quantity, quote.Price)
	if err != nil {
		return models.TradeResult{}, err
	}
	holding := holdingOf(account.ID, req.Symbol, pos, e.now())
	return e.commit(ctx, tx, req, quote, account.Cash.Sub(totalDebit), &holding, commission, totalDebit)
}

func (e *Engine) sell(ctx context.Context, tx repository.LedgerTx, req models.TradeRequest, quote models.PriceQuote) (models.TradeResult, error) {
	account, err := tx.Account(ctx)
	if err != nil {
		return models.TradeResult{}, err
	}
	existing, ok, err := tx.Holding(ctx, req.Symbol)
	if err != nil {
		return models.TradeResult{}, err
	}
	if !ok {
		return models.TradeResult{}, &apperr.InsufficientHoldingsError{Symbol: req.Symbol, Requested: req.Quantity}
	}
	pos, err := costbasis.ApplySell(req.Symbol, positionOf(existing), req.Quantity)
	if err != nil {
		return models.TradeResult{}, err
	}

	proceeds := costbasis.Notional(quote.Price, req.Quantity)
	commission := costbasis.Commission(proceeds, e.cfg.CommissionRate, e.cfg.CommissionPlaces)
	netCredit := proceeds.Sub(commission)

	var holding *models.Holding
	if !pos.Empty() {
		h := holdingOf(account.ID, req.Symbol, pos, e.now())
		holding = &h
	}
	return e.commit(ctx, tx, req, quote, account.Cash.Add(netCredit), holding, commission, proceeds)
}

// commit writes cash, the holding (nil deletes it), the transaction and the
// recomputed summary through tx.
func (e *Engine) commit(ctx context.Context, tx repository.LedgerTx, req models.TradeRequest, quote models.PriceQuote,
	cash decimal.Decimal, holding *models.Holding, commission, total decimal.Decimal) (models.TradeResult, error) {
	now := e.now()
	if cash.IsNegative() {
		return models.TradeResult{}, fmt.Errorf("refusing to commit negative cash %s", cash)
	}
	if holding != nil && !costbasis.Consistent(positionOf(*holding)) {
		return models.TradeResult{}, fmt.Errorf("refusing to commit inconsistent cost basis for %s", req.Symbol)
	}

	if err := tx.SetCash(ctx, cash, now); err != nil {
		return models.TradeResult{}, fmt.Errorf("set cash: %w", err)
	}
	if holding != nil {
		if err := tx.PutHolding(ctx, *holding); err != nil {
			return models.TradeResult{}, fmt.Errorf("put holding: %w", err)
		}
	} else if err := tx.DeleteHolding(ctx, req.Symbol); err != nil {
		return models.TradeResult{}, fmt.Errorf("delete holding: %w", err)
	}

	txn := models.Transaction{
		ID:             e.newID(),
		AccountID:      req.AccountID,
		Symbol:         req.Symbol,
		Type:           req.Side,
		Quantity:       req.Quantity,
		ExecutionPrice: quote.Price,
		Commission:     commission,
		TotalAmount:    total,
		Reason:         req.Reason,
		CreatedAt:      now,
	}
	if err := tx.AppendTransaction(ctx, txn); err != nil {
		return models.TradeResult{}, fmt.Errorf("append transaction: %w", err)
	}

	summary, err := e.recompute(ctx, tx, req.Symbol, quote.Price, now)
	if err != nil {
		return models.TradeResult{}, err
	}
	if err := tx.SavePortfolio(ctx, summary); err != nil {
		return models.TradeResult{}, fmt.Errorf("save portfolio: %w", err)
	}
	return models.TradeResult{Transaction: txn, Holding: holding, Cash: cash, Portfolio: summary}, nil
}

// recompute values holdings at stored catalog prices, except the traded
// symbol which is valued at its execution price.
func (e *Engine) recompute(ctx context.Context, tx repository.LedgerTx, symbol string, price decimal.Decimal, now time.Time) (models.PortfolioAggregate, error) {
	account, err := tx.Account(ctx)
	if err != nil {
		return models.PortfolioAggregate{}, err
	}
	holdings, err := tx.Holdings(ctx)
	if err != nil {
		return models.PortfolioAggregate{}, fmt.Errorf("list holdings: %w", err)
	}
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	stocks, err := tx.Stocks(ctx, symbols)
	if err != nil {
		return models.PortfolioAggregate{}, fmt.Errorf("load prices: %w", err)
	}
	prices := portfolio.PricesFromStocks(stocks)
	prices[symbol] = price
	return portfolio.Recompute(account, holdings, prices, now), nil
}

func positionOf(h models.Holding) costbasis.Position {
	return costbasis.Position{Quantity: h.Quantity, AveragePrice: h.AveragePrice, TotalCost: h.TotalCost}
}

func holdingOf(accountID, symbol string, pos costbasis.Position, now time.Time) models.Holding {
	return models.Holding{
		AccountID:    accountID,
		Symbol:       symbol,
		Quantity:     pos.Quantity,
		AveragePrice: pos.AveragePrice,
		TotalCost:    pos.TotalCost,
		UpdatedAt:    now,
	}
}
