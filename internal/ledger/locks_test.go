package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableSerializesOneAccount(t *testing.T) {
	locks := newLockTable()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.acquire(context.Background(), "a", 0)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())
}

func TestLockTableAccountsAreIndependent(t *testing.T) {
	locks := newLockTable()
	releaseA, err := locks.acquire(context.Background(), "a", 0)
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locks.acquire(context.Background(), "b", 10*time.Millisecond)
	require.NoError(t, err)
	releaseB()
	assert.Equal(t, 1, locks.size())
}

func TestLockTableWaitExpires(t *testing.T) {
	locks := newLockTable()
	release, err := locks.acquire(context.Background(), "a", 0)
	require.NoError(t, err)

	_, err = locks.acquire(context.Background(), "a", 10*time.Millisecond)
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)
	assert.True(t, apperr.IsRetryable(err))

	release()
	release()
	assert.Zero(t, locks.size())

	again, err := locks.acquire(context.Background(), "a", 10*time.Millisecond)
	require.NoError(t, err)
	again()
}
