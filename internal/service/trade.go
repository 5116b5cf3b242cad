package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/events"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/portfolio"
	"github.com/GooferByte/tradesim/internal/readcache"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Authorizer runs the pre-trade checks and returns the quote to execute at.
type Authorizer interface {
	Authorize(ctx context.Context, req models.TradeRequest) (models.PriceQuote, error)
}

// Executor commits an authorized order.
type Executor interface {
	Execute(ctx context.Context, req models.TradeRequest, quote models.PriceQuote) (models.TradeResult, error)
}

// Publisher receives post-commit events.
type Publisher interface {
	Publish(ev events.TradeCommitted)
}

// PriceRefresher stores a live price for one catalog symbol.
type PriceRefresher interface {
	Refresh(ctx context.Context, symbol string) (models.Stock, error)
}

// Deps are the collaborators of TradeService.
type Deps struct {
	Store     repository.Store
	Gate      Authorizer
	Engine    Executor
	Events    Publisher
	Cache     *readcache.Cache
	Refresher PriceRefresher
	Analytics *events.ReasonAnalytics
	// DefaultCapital is used when an account is opened without an explicit amount.
	DefaultCapital decimal.Decimal
}

// TradeService coordinates trades, account opening and read models.
type TradeService struct {
	deps     Deps
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	logger   *logrus.Entry
}

func NewTradeService(deps Deps, logger *logrus.Logger) *TradeService {
	return &TradeService{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   logger.WithField("component", "trade-service"),
	}
}

// TradeInput is the DTO consumed by Trade. Quantity is range-checked by the gate.
type TradeInput struct {
	AccountID string `validate:"required,max=64"`
	Symbol    string `validate:"required,max=32"`
	Quantity  int64
	Side      string `validate:"required,oneof=BUY SELL"`
	Reason    string `validate:"max=500"`
}

// Trade authorizes, executes and announces one order.
func (s *TradeService) Trade(ctx context.Context, input TradeInput) (models.TradeResult, error) {
	input.Symbol = normalizeSymbol(input.Symbol)
	input.Side = strings.ToUpper(strings.TrimSpace(input.Side))
	input.Reason = strings.TrimSpace(input.Reason)
	if err := s.validate.Struct(input); err != nil {
		return models.TradeResult{}, invalid(err)
	}
	req := models.TradeRequest{
		AccountID: input.AccountID,
		Symbol:    input.Symbol,
		Quantity:  input.Quantity,
		Side:      models.Side(input.Side),
		Reason:    input.Reason,
	}

	quote, err := s.deps.Gate.Authorize(ctx, req)
	if err != nil {
		return models.TradeResult{}, err
	}
	result, err := s.deps.Engine.Execute(ctx, req, quote)
	if err != nil {
		return models.TradeResult{}, err
	}
	s.announce(ctx, result.Transaction)
	return result, nil
}

// announce never fails the trade; a missing class id only skips the leaderboard key.
func (s *TradeService) announce(ctx context.Context, txn models.Transaction) {
	if s.deps.Events == nil {
		return
	}
	account, err := s.deps.Store.GetAccount(context.WithoutCancel(ctx), txn.AccountID)
	if err != nil {
		s.logger.WithError(err).WithField("account", txn.AccountID).Warn("account lookup for event failed")
		account = models.Account{ID: txn.AccountID}
	}
	s.deps.Events.Publish(events.NewTradeCommitted(account, txn))
}

// OpenAccountInput is the DTO consumed by OpenAccount.
type OpenAccountInput struct {
	ID             string `validate:"omitempty,max=64"`
	Owner          string `validate:"required,max=128"`
	Role           string `validate:"required,oneof=student teacher admin"`
	ClassID        string `validate:"max=64"`
	InitialCapital decimal.Decimal
}

// OpenAccount creates an account holding its initial capital in cash.
func (s *TradeService) OpenAccount(ctx context.Context, input OpenAccountInput) (models.Account, error) {
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	if input.Role == "" {
		input.Role = string(models.RoleStudent)
	}
	if err := s.validate.Struct(input); err != nil {
		return models.Account{}, invalid(err)
	}
	capital := input.InitialCapital
	if capital.IsZero() {
		capital = s.deps.DefaultCapital
	}
	if capital.IsNegative() {
		return models.Account{}, apperr.Validation("initial capital must not be negative")
	}
	id := input.ID
	if id == "" {
		id = s.newID()
	}

	now := s.now()
	account := models.Account{
		ID:             id,
		Owner:          input.Owner,
		Role:           models.Role(input.Role),
		ClassID:        input.ClassID,
		Cash:           capital,
		InitialCapital: capital,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	summary := portfolio.Recompute(account, nil, nil, now)
	if err := s.deps.Store.CreateAccount(ctx, account, summary); err != nil {
		return models.Account{}, err
	}
	s.logger.WithFields(logrus.Fields{"account": id, "role": input.Role, "class": input.ClassID}).Info("account opened")
	return account, nil
}

func (s *TradeService) AddToWatchlist(ctx context.Context, accountID, symbol string) error {
	symbol = normalizeSymbol(symbol)
	if _, err := s.deps.Store.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if _, err := s.deps.Store.GetStock(ctx, symbol); err != nil {
		return err
	}
	return s.deps.Store.AddToWatchlist(ctx, accountID, symbol)
}

func (s *TradeService) RemoveFromWatchlist(ctx context.Context, accountID, symbol string) error {
	if _, err := s.deps.Store.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return s.deps.Store.RemoveFromWatchlist(ctx, accountID, normalizeSymbol(symbol))
}

// GetPortfolio values the account's holdings at stored catalog prices. Views
// are served from the read cache until a commit invalidates them.
func (s *TradeService) GetPortfolio(ctx context.Context, accountID string) (models.PortfolioView, error) {
	var gen uint64
	if s.deps.Cache != nil {
		if view, ok := s.deps.Cache.Portfolio(accountID); ok {
			return view, nil
		}
		gen = s.deps.Cache.PortfolioGeneration(accountID)
	}
	account, err := s.deps.Store.GetAccount(ctx, accountID)
	if err != nil {
		return models.PortfolioView{}, err
	}
	holdings, err := s.deps.Store.ListHoldings(ctx, accountID)
	if err != nil {
		return models.PortfolioView{}, fmt.Errorf("list holdings: %w", err)
	}
	stocks, err := s.deps.Store.ListStocks(ctx)
	if err != nil {
		return models.PortfolioView{}, fmt.Errorf("list stocks: %w", err)
	}
	view := portfolio.View(account, holdings, portfolio.PricesFromStocks(stocks), s.now())
	if s.deps.Cache != nil && !s.deps.Cache.PutPortfolioAt(view, gen) {
		s.logger.WithField("account", accountID).Debug("portfolio changed while loading, view not cached")
	}
	return view, nil
}

// ListTransactions returns newest-first history. limit <= 0 selects the default page.
func (s *TradeService) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if _, err := s.deps.Store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.deps.Store.ListTransactions(ctx, accountID, limit)
}

func (s *TradeService) RefreshPrice(ctx context.Context, symbol string) (models.Stock, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return models.Stock{}, apperr.Validation("symbol is required")
	}
	return s.deps.Refresher.Refresh(ctx, symbol)
}

// ReasonStats reports how often each trade reason was given.
func (s *TradeService) ReasonStats() []events.ReasonCount {
	if s.deps.Analytics == nil {
		return []events.ReasonCount{}
	}
	return s.deps.Analytics.Snapshot()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation("%s failed on %q", strings.ToLower(fe.Field()[:1])+fe.Field()[1:], fe.Tag())
	}
	return apperr.Validation("%v", err)
}
