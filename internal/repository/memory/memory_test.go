package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *InMemoryRepo {
	t.Helper()
	repo := New()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, models.Account{
		ID: "acct-1", Cash: decimal.NewFromInt(1000), InitialCapital: decimal.NewFromInt(1000),
	}, models.PortfolioAggregate{AccountID: "acct-1"}))
	return repo
}

func TestWithinAccountCommitsAllWrites(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := repo.WithinAccount(ctx, "acct-1", func(tx repository.LedgerTx) error {
		require.NoError(t, tx.SetCash(ctx, decimal.NewFromInt(900), now))
		require.NoError(t, tx.PutHolding(ctx, models.Holding{AccountID: "acct-1", Symbol: "AAA", Quantity: 1, AveragePrice: decimal.NewFromInt(100), TotalCost: decimal.NewFromInt(100)}))
		h, ok, err := tx.Holding(ctx, "AAA")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), h.Quantity)
		require.NoError(t, tx.AppendTransaction(ctx, models.Transaction{ID: "t1", AccountID: "acct-1", Symbol: "AAA", Type: models.SideBuy}))
		return tx.SavePortfolio(ctx, models.PortfolioAggregate{AccountID: "acct-1", TotalValue: decimal.NewFromInt(1000)})
	})
	require.NoError(t, err)

	acct, err := repo.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, acct.Cash.Equal(decimal.NewFromInt(900)))
	holdings, _ := repo.ListHoldings(ctx, "acct-1")
	assert.Len(t, holdings, 1)
	txns, _ := repo.ListTransactions(ctx, "acct-1", 0)
	assert.Len(t, txns, 1)
	summary, err := repo.GetPortfolio(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(1000)))
}

func TestWithinAccountDiscardsOnError(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithinAccount(ctx, "acct-1", func(tx repository.LedgerTx) error {
		_ = tx.SetCash(ctx, decimal.Zero, time.Now())
		_ = tx.AppendTransaction(ctx, models.Transaction{ID: "t1", AccountID: "acct-1"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	acct, _ := repo.GetAccount(ctx, "acct-1")
	assert.True(t, acct.Cash.Equal(decimal.NewFromInt(1000)))
	txns, _ := repo.ListTransactions(ctx, "acct-1", 0)
	assert.Empty(t, txns)
}

func TestWithinAccountStagedDelete(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()
	require.NoError(t, repo.WithinAccount(ctx, "acct-1", func(tx repository.LedgerTx) error {
		return tx.PutHolding(ctx, models.Holding{AccountID: "acct-1", Symbol: "AAA", Quantity: 3})
	}))

	require.NoError(t, repo.WithinAccount(ctx, "acct-1", func(tx repository.LedgerTx) error {
		require.NoError(t, tx.DeleteHolding(ctx, "AAA"))
		_, ok, _ := tx.Holding(ctx, "AAA")
		assert.False(t, ok)
		all, _ := tx.Holdings(ctx)
		assert.Empty(t, all)
		return nil
	}))

	holdings, _ := repo.ListHoldings(ctx, "acct-1")
	assert.Empty(t, holdings)
}

func TestWithinAccountUnknownAccount(t *testing.T) {
	repo := New()
	err := repo.WithinAccount(context.Background(), "nope", func(tx repository.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3"} {
		id := id
		require.NoError(t, repo.WithinAccount(ctx, "acct-1", func(tx repository.LedgerTx) error {
			return tx.AppendTransaction(ctx, models.Transaction{ID: id, AccountID: "acct-1"})
		}))
	}

	txns, err := repo.ListTransactions(ctx, "acct-1", 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "t3", txns[0].ID)
	assert.Equal(t, "t2", txns[1].ID)
}

func TestPoliciesAndCatalog(t *testing.T) {
	repo := New()
	ctx := context.Background()

	require.NoError(t, repo.UpsertStock(ctx, models.Stock{Symbol: "AAA"}))
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateStockPrice(ctx, "AAA", decimal.NewFromInt(10), decimal.NewFromInt(9), at))
	s, err := repo.GetStock(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, at, s.PriceUpdatedAt)
	assert.ErrorIs(t, repo.UpdateStockPrice(ctx, "BBB", decimal.NewFromInt(1), decimal.Zero, at), apperr.ErrNotFound)

	require.NoError(t, repo.AllowSymbol(ctx, "class-1", "AAA"))
	ok, _ := repo.IsSymbolAllowed(ctx, "class-1", "AAA")
	assert.True(t, ok)
	ok, _ = repo.IsSymbolAllowed(ctx, "class-2", "AAA")
	assert.False(t, ok)

	require.NoError(t, repo.AddToWatchlist(ctx, "acct-1", "AAA"))
	ok, _ = repo.WatchlistContains(ctx, "acct-1", "AAA")
	assert.True(t, ok)
	require.NoError(t, repo.RemoveFromWatchlist(ctx, "acct-1", "AAA"))
	ok, _ = repo.WatchlistContains(ctx, "acct-1", "AAA")
	assert.False(t, ok)
}

func TestCreateAccountDuplicate(t *testing.T) {
	repo := seeded(t)
	err := repo.CreateAccount(context.Background(), models.Account{ID: "acct-1"}, models.PortfolioAggregate{})
	assert.ErrorIs(t, err, repository.ErrDuplicateAccount)
}
