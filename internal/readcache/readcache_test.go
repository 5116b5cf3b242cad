package readcache

import (
	"context"
	"testing"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioRoundTripAndInvalidate(t *testing.T) {
	c := New(8, time.Minute)
	view := models.PortfolioView{Account: models.Account{ID: "a1", Cash: decimal.NewFromInt(5)}}
	c.PutPortfolio(view)
	c.Put(LeaderboardKey("c1"), []string{"a1"})

	got, ok := c.Portfolio("a1")
	require.True(t, ok)
	assert.True(t, got.Account.Cash.Equal(decimal.NewFromInt(5)))

	require.NoError(t, c.Invalidate(context.Background(), PortfolioKey("a1"), LeaderboardKey("c1"), "unknown"))
	_, ok = c.Portfolio("a1")
	assert.False(t, ok)
	_, ok = c.Get(LeaderboardKey("c1"))
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestEntriesExpire(t *testing.T) {
	c := New(8, 20*time.Millisecond)
	c.PutPortfolio(models.PortfolioView{Account: models.Account{ID: "a1"}})

	assert.Eventually(t, func() bool {
		_, ok := c.Portfolio("a1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidateHonoursCancelledContext(t *testing.T) {
	c := New(8, time.Minute)
	c.PutPortfolio(models.PortfolioView{Account: models.Account{ID: "a1"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Invalidate(ctx, PortfolioKey("a1")), context.Canceled)
	_, ok := c.Portfolio("a1")
	assert.True(t, ok)
}

func TestWrongTypeUnderPortfolioKeyIsAMiss(t *testing.T) {
	c := New(8, time.Minute)
	c.Put(PortfolioKey("a1"), "not a view")

	_, ok := c.Portfolio("a1")
	assert.False(t, ok)
}

func TestPutPortfolioAtRejectsViewLoadedBeforeInvalidate(t *testing.T) {
	c := New(8, time.Minute)
	gen := c.PortfolioGeneration("a1")
	stale := models.PortfolioView{Account: models.Account{ID: "a1", Cash: decimal.NewFromInt(100)}}

	require.NoError(t, c.Invalidate(context.Background(), PortfolioKey("a1")))
	assert.False(t, c.PutPortfolioAt(stale, gen))
	_, ok := c.Portfolio("a1")
	assert.False(t, ok)

	fresh := models.PortfolioView{Account: models.Account{ID: "a1", Cash: decimal.NewFromInt(40)}}
	assert.True(t, c.PutPortfolioAt(fresh, c.PortfolioGeneration("a1")))
	got, ok := c.Portfolio("a1")
	require.True(t, ok)
	assert.True(t, got.Account.Cash.Equal(decimal.NewFromInt(40)))
}

func TestGenerationsAreKeyed(t *testing.T) {
	c := New(8, time.Minute)
	gen := c.PortfolioGeneration("a1")
	require.NoError(t, c.Invalidate(context.Background(), PortfolioKey("a2"), LeaderboardKey("c1")))

	assert.True(t, c.PutPortfolioAt(models.PortfolioView{Account: models.Account{ID: "a1"}}, gen))
}
