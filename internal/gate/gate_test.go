package gate

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/models"
	"github.com/GooferByte/tradesim/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type fakeResolver struct {
	quote models.PriceQuote
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, symbol string) (models.PriceQuote, error) {
	f.calls++
	return f.quote, f.err
}

func setup(t *testing.T) (*TradeGate, *memory.InMemoryRepo, *fakeResolver) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.CreateAccount(ctx, models.Account{ID: "stu", Role: models.RoleStudent, ClassID: "c1", Cash: decimal.NewFromInt(1000)}, models.PortfolioAggregate{}))
	require.NoError(t, repo.CreateAccount(ctx, models.Account{ID: "tch", Role: models.RoleTeacher, Cash: decimal.NewFromInt(1000)}, models.PortfolioAggregate{}))
	require.NoError(t, repo.UpsertStock(ctx, models.Stock{Symbol: "AAA", LastPrice: decimal.NewFromInt(100), PriceUpdatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.UpsertStock(ctx, models.Stock{Symbol: "OLD", LastPrice: decimal.NewFromInt(100), PriceUpdatedAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, repo.UpsertStock(ctx, models.Stock{Symbol: "NEW"}))
	for _, s := range []string{"AAA", "OLD", "NEW"} {
		require.NoError(t, repo.AllowSymbol(ctx, "c1", s))
		require.NoError(t, repo.AddToWatchlist(ctx, "stu", s))
	}

	res := &fakeResolver{quote: models.PriceQuote{Symbol: "AAA", Price: decimal.NewFromInt(105), AsOf: now.Add(-time.Minute), IsFresh: true}}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := New(Stores{Accounts: repo, Catalog: repo, Policies: repo}, res, 24*time.Hour, logger)
	g.now = func() time.Time { return now }
	return g, repo, res
}

func buy(account, symbol string, qty int64) models.TradeRequest {
	return models.TradeRequest{AccountID: account, Symbol: symbol, Quantity: qty, Side: models.SideBuy}
}

func TestAuthorizeReturnsLiveQuote(t *testing.T) {
	g, _, _ := setup(t)

	q, err := g.Authorize(context.Background(), buy("stu", "AAA", 3))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(105)))
	assert.Equal(t, now.Add(-time.Hour), q.StoredAsOf)
}

func TestAuthorizeUnknownAccountOrSymbol(t *testing.T) {
	g, _, res := setup(t)

	_, err := g.Authorize(context.Background(), buy("ghost", "AAA", 1))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = g.Authorize(context.Background(), buy("stu", "ZZZ", 1))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, res.calls)
}

func TestAuthorizeRequiresClassAllowList(t *testing.T) {
	g, repo, res := setup(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertStock(ctx, models.Stock{Symbol: "BAN", PriceUpdatedAt: now}))
	require.NoError(t, repo.AddToWatchlist(ctx, "stu", "BAN"))

	_, err := g.Authorize(ctx, buy("stu", "BAN", 1))
	var perm *apperr.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Contains(t, perm.Reason, "class")
	assert.Zero(t, res.calls)
}

func TestAuthorizeRequiresWatchlist(t *testing.T) {
	g, repo, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, repo.RemoveFromWatchlist(ctx, "stu", "AAA"))

	_, err := g.Authorize(ctx, buy("stu", "AAA", 1))
	var perm *apperr.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Contains(t, perm.Reason, "watchlist")
}

func TestAuthorizeUnconstrainedAccountSkipsPolicies(t *testing.T) {
	g, _, _ := setup(t)

	_, err := g.Authorize(context.Background(), buy("tch", "AAA", 1))
	assert.NoError(t, err)
}

func TestAuthorizePriceUnavailable(t *testing.T) {
	g, _, res := setup(t)
	res.err = &apperr.PriceUnavailableError{Symbol: "AAA", Attempts: 3}

	_, err := g.Authorize(context.Background(), buy("stu", "AAA", 1))
	assert.ErrorIs(t, err, apperr.ErrPriceUnavailable)

	res.err = nil
	res.quote.Price = decimal.Zero
	_, err = g.Authorize(context.Background(), buy("stu", "AAA", 1))
	assert.ErrorIs(t, err, apperr.ErrPriceUnavailable)
}

func TestAuthorizeStoredPriceStaleEvenWithLiveQuote(t *testing.T) {
	g, _, res := setup(t)
	res.quote.Symbol = "OLD"

	_, err := g.Authorize(context.Background(), buy("stu", "OLD", 1))
	var stale *apperr.StalePriceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, now.Add(-25*time.Hour), stale.LastUpdate)
	assert.Equal(t, 24*time.Hour, stale.Window)
}

func TestAuthorizeNeverPricedSymbol(t *testing.T) {
	g, _, _ := setup(t)

	_, err := g.Authorize(context.Background(), buy("stu", "NEW", 1))
	var stale *apperr.StalePriceError
	require.ErrorAs(t, err, &stale)
	assert.True(t, stale.LastUpdate.IsZero())
}

func TestAuthorizeStaleLiveQuote(t *testing.T) {
	g, _, res := setup(t)
	res.quote.IsFresh = false

	_, err := g.Authorize(context.Background(), buy("stu", "AAA", 1))
	assert.ErrorIs(t, err, apperr.ErrStalePrice)
}

func TestAuthorizeQuantityCheckedLast(t *testing.T) {
	g, _, res := setup(t)

	_, err := g.Authorize(context.Background(), buy("stu", "AAA", 0))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 1, res.calls)

	_, err = g.Authorize(context.Background(), buy("stu", "OLD", -1))
	assert.ErrorIs(t, err, apperr.ErrStalePrice)
}

func TestAuthorizeRejectsUnknownSide(t *testing.T) {
	g, _, _ := setup(t)
	req := buy("stu", "AAA", 1)
	req.Side = "HOLD"

	_, err := g.Authorize(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
