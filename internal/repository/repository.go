package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateAccount indicates an account with the same id already exists.
	ErrDuplicateAccount = fmt.Errorf("duplicate account")
)

// Accounts reads and opens accounts. Missing rows yield apperr.ErrNotFound.
type Accounts interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	CreateAccount(ctx context.Context, account models.Account, summary models.PortfolioAggregate) error
}

// Catalog stores tradable stocks and their last collected price.
type Catalog interface {
	GetStock(ctx context.Context, symbol string) (models.Stock, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
	UpsertStock(ctx context.Context, stock models.Stock) error
	UpdateStockPrice(ctx context.Context, symbol string, price, previousClose decimal.Decimal, at time.Time) error
}

// Policies answers the class allow-list and watchlist predicates.
type Policies interface {
	IsSymbolAllowed(ctx context.Context, classID, symbol string) (bool, error)
	AllowSymbol(ctx context.Context, classID, symbol string) error
	WatchlistContains(ctx context.Context, accountID, symbol string) (bool, error)
	AddToWatchlist(ctx context.Context, accountID, symbol string) error
	RemoveFromWatchlist(ctx context.Context, accountID, symbol string) error
}

// Ledger exposes committed ledger state for reads and runs atomic units.
type Ledger interface {
	// WithinAccount runs fn as one atomic unit over the ledger rows of
	// accountID. Writes made through tx are visible only if fn returns nil.
	WithinAccount(ctx context.Context, accountID string, fn func(tx LedgerTx) error) error
	ListHoldings(ctx context.Context, accountID string) ([]models.Holding, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error)
	GetPortfolio(ctx context.Context, accountID string) (models.PortfolioAggregate, error)
}

// LedgerTx is the view of one account inside an atomic unit.
type LedgerTx interface {
	Account(ctx context.Context) (models.Account, error)
	Holding(ctx context.Context, symbol string) (models.Holding, bool, error)
	Holdings(ctx context.Context) ([]models.Holding, error)
	Stocks(ctx context.Context, symbols []string) ([]models.Stock, error)
	SetCash(ctx context.Context, cash decimal.Decimal, at time.Time) error
	PutHolding(ctx context.Context, holding models.Holding) error
	DeleteHolding(ctx context.Context, symbol string) error
	AppendTransaction(ctx context.Context, txn models.Transaction) error
	SavePortfolio(ctx context.Context, summary models.PortfolioAggregate) error
}

// Store is everything the service needs from persistence.
type Store interface {
	Accounts
	Catalog
	Policies
	Ledger
}
