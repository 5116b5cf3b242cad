package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/shopspring/decimal"
)

type InMemoryRepo struct {
	mu           sync.RWMutex
	accounts     map[string]models.Account
	stocks       map[string]models.Stock
	classSymbols map[string]map[string]struct{}
	watchlists   map[string]map[string]struct{}
	holdings     map[string]map[string]models.Holding
	transactions map[string][]models.Transaction
	portfolios   map[string]models.PortfolioAggregate
}

var _ repository.Store = (*InMemoryRepo)(nil)

func New() *InMemoryRepo {
	return &InMemoryRepo{
		accounts:     make(map[string]models.Account),
		stocks:       make(map[string]models.Stock),
		classSymbols: make(map[string]map[string]struct{}),
		watchlists:   make(map[string]map[string]struct{}),
		holdings:     make(map[string]map[string]models.Holding),
		transactions: make(map[string][]models.Transaction),
		portfolios:   make(map[string]models.PortfolioAggregate),
	}
}

func (r *InMemoryRepo) GetAccount(ctx context.Context, id string) (models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return models.Account{}, apperr.NotFound("account", id)
	}
	return acct, nil
}

func (r *InMemoryRepo) CreateAccount(ctx context.Context, account models.Account, summary models.PortfolioAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; ok {
		return repository.ErrDuplicateAccount
	}
	r.accounts[account.ID] = account
	r.portfolios[account.ID] = summary
	return nil
}

func (r *InMemoryRepo) GetStock(ctx context.Context, symbol string) (models.Stock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stocks[symbol]
	if !ok {
		return models.Stock{}, apperr.NotFound("stock", symbol)
	}
	return s, nil
}

func (r *InMemoryRepo) ListStocks(ctx context.Context) ([]models.Stock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Stock, 0, len(r.stocks))
	for _, s := range r.stocks {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.Stock) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return out, nil
}

func (r *InMemoryRepo) UpsertStock(ctx context.Context, stock models.Stock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stocks[stock.Symbol] = stock
	return nil
}

func (r *InMemoryRepo) UpdateStockPrice(ctx context.Context, symbol string, price, previousClose decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stocks[symbol]
	if !ok {
		return apperr.NotFound("stock", symbol)
	}
	s.LastPrice = price
	s.PreviousClose = previousClose
	s.PriceUpdatedAt = at
	r.stocks[symbol] = s
	return nil
}

func (r *InMemoryRepo) IsSymbolAllowed(ctx context.Context, classID, symbol string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classSymbols[classID][symbol]
	return ok, nil
}

func (r *InMemoryRepo) AllowSymbol(ctx context.Context, classID, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	addToSet(r.classSymbols, classID, symbol)
	return nil
}

func (r *InMemoryRepo) WatchlistContains(ctx context.Context, accountID, symbol string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watchlists[accountID][symbol]
	return ok, nil
}

func (r *InMemoryRepo) AddToWatchlist(ctx context.Context, accountID, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	addToSet(r.watchlists, accountID, symbol)
	return nil
}

func (r *InMemoryRepo) RemoveFromWatchlist(ctx context.Context, accountID, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchlists[accountID], symbol)
	return nil
}

func (r *InMemoryRepo) ListHoldings(ctx context.Context, accountID string) ([]models.Holding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedHoldings(r.holdings[accountID]), nil
}

// ListTransactions returns the newest transactions first. limit <= 0 means all.
func (r *InMemoryRepo) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.transactions[accountID]
	out := make([]models.Transaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, log[i])
	}
	return out, nil
}

func (r *InMemoryRepo) GetPortfolio(ctx context.Context, accountID string) (models.PortfolioAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.portfolios[accountID]
	if !ok {
		return models.PortfolioAggregate{}, apperr.NotFound("portfolio", accountID)
	}
	return p, nil
}

// WithinAccount stages every write of fn and applies them together under the
// store lock once fn succeeds.
func (r *InMemoryRepo) WithinAccount(ctx context.Context, accountID string, fn func(tx repository.LedgerTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[accountID]
	if !ok {
		return apperr.NotFound("account", accountID)
	}
	tx := &stagedTx{
		repo:     r,
		account:  acct,
		holdings: make(map[string]*models.Holding),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

type stagedTx struct {
	repo     *InMemoryRepo
	account  models.Account
	holdings map[string]*models.Holding // nil value marks a deletion
	appended []models.Transaction
	summary  *models.PortfolioAggregate
}

func (t *stagedTx) Account(ctx context.Context) (models.Account, error) {
	return t.account, nil
}

func (t *stagedTx) Holding(ctx context.Context, symbol string) (models.Holding, bool, error) {
	if h, staged := t.holdings[symbol]; staged {
		if h == nil {
			return models.Holding{}, false, nil
		}
		return *h, true, nil
	}
	h, ok := t.repo.holdings[t.account.ID][symbol]
	return h, ok, nil
}

func (t *stagedTx) Holdings(ctx context.Context) ([]models.Holding, error) {
	merged := make(map[string]models.Holding)
	for sym, h := range t.repo.holdings[t.account.ID] {
		merged[sym] = h
	}
	for sym, h := range t.holdings {
		if h == nil {
			delete(merged, sym)
			continue
		}
		merged[sym] = *h
	}
	return sortedHoldings(merged), nil
}

func (t *stagedTx) Stocks(ctx context.Context, symbols []string) ([]models.Stock, error) {
	out := make([]models.Stock, 0, len(symbols))
	for _, sym := range symbols {
		if s, ok := t.repo.stocks[sym]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *stagedTx) SetCash(ctx context.Context, cash decimal.Decimal, at time.Time) error {
	t.account.Cash = cash
	t.account.UpdatedAt = at
	return nil
}

func (t *stagedTx) PutHolding(ctx context.Context, holding models.Holding) error {
	h := holding
	t.holdings[holding.Symbol] = &h
	return nil
}

func (t *stagedTx) DeleteHolding(ctx context.Context, symbol string) error {
	t.holdings[symbol] = nil
	return nil
}

func (t *stagedTx) AppendTransaction(ctx context.Context, txn models.Transaction) error {
	t.appended = append(t.appended, txn)
	return nil
}

func (t *stagedTx) SavePortfolio(ctx context.Context, summary models.PortfolioAggregate) error {
	s := summary
	t.summary = &s
	return nil
}

func (t *stagedTx) apply() {
	r := t.repo
	id := t.account.ID
	r.accounts[id] = t.account
	if r.holdings[id] == nil {
		r.holdings[id] = make(map[string]models.Holding)
	}
	for sym, h := range t.holdings {
		if h == nil {
			delete(r.holdings[id], sym)
			continue
		}
		r.holdings[id][sym] = *h
	}
	r.transactions[id] = append(r.transactions[id], t.appended...)
	if t.summary != nil {
		r.portfolios[id] = *t.summary
	}
}

func addToSet(m map[string]map[string]struct{}, key, member string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][member] = struct{}{}
}

func sortedHoldings(m map[string]models.Holding) []models.Holding {
	out := make([]models.Holding, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b models.Holding) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return out
}
