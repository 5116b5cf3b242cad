package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/repository"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// Repository implements repository.Store backed by PostgreSQL.
type Repository struct {
	db *sql.DB
}

var _ repository.Store = (*Repository)(nil)

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const accountColumns = `id, owner, role, class_id, cash, initial_capital, created_at, updated_at`

func (r *Repository) GetAccount(ctx context.Context, id string) (models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row, id)
}

func (r *Repository) CreateAccount(ctx context.Context, account models.Account, summary models.PortfolioAggregate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const insertAccount = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	if _, err := tx.ExecContext(ctx, insertAccount,
		account.ID, account.Owner, string(account.Role), account.ClassID, account.Cash, account.InitialCapital, account.CreatedAt, account.UpdatedAt); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return repository.ErrDuplicateAccount
		}
		return err
	}
	if err := savePortfolio(ctx, tx, summary); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const stockColumns = `symbol, name, last_price, previous_close, price_updated_at`

func (r *Repository) GetStock(ctx context.Context, symbol string) (models.Stock, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = $1`, symbol)
	s, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stock{}, apperr.NotFound("stock", symbol)
	}
	return s, err
}

func (r *Repository) ListStocks(ctx context.Context) ([]models.Stock, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStocks(rows)
}

func (r *Repository) UpsertStock(ctx context.Context, stock models.Stock) error {
	const query = `
		INSERT INTO stocks (` + stockColumns + `)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (symbol) DO UPDATE SET name = EXCLUDED.name
	`
	_, err := r.db.ExecContext(ctx, query, stock.Symbol, stock.Name, stock.LastPrice, stock.PreviousClose, nullableTime(stock.PriceUpdatedAt))
	return err
}

func (r *Repository) UpdateStockPrice(ctx context.Context, symbol string, price, previousClose decimal.Decimal, at time.Time) error {
	const query = `
		UPDATE stocks SET last_price = $2, previous_close = $3, price_updated_at = $4
		WHERE symbol = $1
	`
	res, err := r.db.ExecContext(ctx, query, symbol, price, previousClose, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("stock", symbol)
	}
	return nil
}

func (r *Repository) IsSymbolAllowed(ctx context.Context, classID, symbol string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM class_symbols WHERE class_id = $1 AND symbol = $2)`, classID, symbol)
}

func (r *Repository) AllowSymbol(ctx context.Context, classID, symbol string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO class_symbols (class_id, symbol) VALUES ($1,$2) ON CONFLICT DO NOTHING`, classID, symbol)
	return err
}

func (r *Repository) WatchlistContains(ctx context.Context, accountID, symbol string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM watchlists WHERE account_id = $1 AND symbol = $2)`, accountID, symbol)
}

func (r *Repository) AddToWatchlist(ctx context.Context, accountID, symbol string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO watchlists (account_id, symbol) VALUES ($1,$2) ON CONFLICT DO NOTHING`, accountID, symbol)
	return err
}

func (r *Repository) RemoveFromWatchlist(ctx context.Context, accountID, symbol string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM watchlists WHERE account_id = $1 AND symbol = $2`, accountID, symbol)
	return err
}

const holdingColumns = `account_id, symbol, quantity, average_price, total_cost, updated_at`

func (r *Repository) ListHoldings(ctx context.Context, accountID string) ([]models.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE account_id = $1 ORDER BY symbol ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHoldings(rows)
}

// ListTransactions returns the newest transactions first. limit <= 0 means all.
func (r *Repository) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	const query = `
		SELECT id, account_id, symbol, type, quantity, execution_price, commission, total_amount, reason, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var side string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Symbol, &side, &t.Quantity, &t.ExecutionPrice, &t.Commission, &t.TotalAmount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = models.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) GetPortfolio(ctx context.Context, accountID string) (models.PortfolioAggregate, error) {
	const query = `
		SELECT account_id, total_value, total_cost, total_profit_loss, total_profit_loss_percent, updated_at
		FROM portfolios WHERE account_id = $1
	`
	var p models.PortfolioAggregate
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&p.AccountID, &p.TotalValue, &p.TotalCost, &p.TotalProfitLoss, &p.TotalProfitLossPercent, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, apperr.NotFound("portfolio", accountID)
	}
	return p, err
}

// WithinAccount locks the account row with SELECT ... FOR UPDATE and runs fn in
// the same database transaction, so concurrent writers in other processes
// queue behind it as well.
func (r *Repository) WithinAccount(ctx context.Context, accountID string, fn func(tx repository.LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	acct, err := scanAccount(row, accountID)
	if err != nil {
		return err
	}
	if err := fn(&ledgerTx{tx: tx, account: acct}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	committed = true
	return nil
}

type ledgerTx struct {
	tx      *sql.Tx
	account models.Account
}

func (l *ledgerTx) Account(ctx context.Context) (models.Account, error) {
	return l.account, nil
}

func (l *ledgerTx) Holding(ctx context.Context, symbol string) (models.Holding, bool, error) {
	row := l.tx.QueryRowContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE account_id = $1 AND symbol = $2`, l.account.ID, symbol)
	var h models.Holding
	if err := row.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AveragePrice, &h.TotalCost, &h.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Holding{}, false, nil
		}
		return models.Holding{}, false, err
	}
	return h, true, nil
}

func (l *ledgerTx) Holdings(ctx context.Context) ([]models.Holding, error) {
	rows, err := l.tx.QueryContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE account_id = $1 ORDER BY symbol ASC`, l.account.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHoldings(rows)
}

func (l *ledgerTx) Stocks(ctx context.Context, symbols []string) ([]models.Stock, error) {
	rows, err := l.tx.QueryContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = ANY($1) ORDER BY symbol ASC`, pq.Array(symbols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStocks(rows)
}

func (l *ledgerTx) SetCash(ctx context.Context, cash decimal.Decimal, at time.Time) error {
	_, err := l.tx.ExecContext(ctx, `UPDATE accounts SET cash = $2, updated_at = $3 WHERE id = $1`, l.account.ID, cash, at)
	if err == nil {
		l.account.Cash = cash
		l.account.UpdatedAt = at
	}
	return err
}

func (l *ledgerTx) PutHolding(ctx context.Context, h models.Holding) error {
	const query = `
		INSERT INTO holdings (` + holdingColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (account_id, symbol) DO UPDATE
		SET quantity = EXCLUDED.quantity, average_price = EXCLUDED.average_price,
			total_cost = EXCLUDED.total_cost, updated_at = EXCLUDED.updated_at
	`
	_, err := l.tx.ExecContext(ctx, query, l.account.ID, h.Symbol, h.Quantity, h.AveragePrice, h.TotalCost, h.UpdatedAt)
	return err
}

func (l *ledgerTx) DeleteHolding(ctx context.Context, symbol string) error {
	_, err := l.tx.ExecContext(ctx, `DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`, l.account.ID, symbol)
	return err
}

func (l *ledgerTx) AppendTransaction(ctx context.Context, t models.Transaction) error {
	const query = `
		INSERT INTO transactions
		(id, account_id, symbol, type, quantity, execution_price, commission, total_amount, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := l.tx.ExecContext(ctx, query,
		t.ID, l.account.ID, t.Symbol, string(t.Type), t.Quantity, t.ExecutionPrice, t.Commission, t.TotalAmount, t.Reason, t.CreatedAt)
	return err
}

func (l *ledgerTx) SavePortfolio(ctx context.Context, summary models.PortfolioAggregate) error {
	return savePortfolio(ctx, l.tx, summary)
}

func savePortfolio(ctx context.Context, tx *sql.Tx, p models.PortfolioAggregate) error {
	const query = `
		INSERT INTO portfolios
		(account_id, total_value, total_cost, total_profit_loss, total_profit_loss_percent, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (account_id) DO UPDATE
		SET total_value = EXCLUDED.total_value, total_cost = EXCLUDED.total_cost,
			total_profit_loss = EXCLUDED.total_profit_loss,
			total_profit_loss_percent = EXCLUDED.total_profit_loss_percent,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query, p.AccountID, p.TotalValue, p.TotalCost, p.TotalProfitLoss, p.TotalProfitLossPercent, p.UpdatedAt)
	return err
}

func (r *Repository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func scanAccount(row *sql.Row, id string) (models.Account, error) {
	var a models.Account
	var role string
	if err := row.Scan(&a.ID, &a.Owner, &role, &a.ClassID, &a.Cash, &a.InitialCapital, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, apperr.NotFound("account", id)
		}
		return models.Account{}, err
	}
	a.Role = models.Role(role)
	return a, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStock(row scanner) (models.Stock, error) {
	var s models.Stock
	var updated sql.NullTime
	if err := row.Scan(&s.Symbol, &s.Name, &s.LastPrice, &s.PreviousClose, &updated); err != nil {
		return models.Stock{}, err
	}
	s.PriceUpdatedAt = updated.Time
	return s, nil
}

func scanStocks(rows *sql.Rows) ([]models.Stock, error) {
	out := []models.Stock{}
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanHoldings(rows *sql.Rows) ([]models.Holding, error) {
	out := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AveragePrice, &h.TotalCost, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
