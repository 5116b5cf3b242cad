package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
)

// lockTable hands out one exclusive slot per account. Entries are dropped
// once nobody holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*accountLock)}
}

// acquire blocks until the account is free, ctx ends, or wait elapses.
// wait <= 0 waits for ctx alone.
func (t *lockTable) acquire(ctx context.Context, accountID string, wait time.Duration) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[accountID]
	if !ok {
		l = &accountLock{sem: make(chan struct{}, 1)}
		t.locks[accountID] = l
	}
	l.refs++
	t.mu.Unlock()

	var expired <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				t.release(accountID, l)
			})
		}, nil
	case <-ctx.Done():
		t.release(accountID, l)
		return nil, &apperr.ConflictError{Reason: "order was abandoned while waiting for the account", Err: ctx.Err()}
	case <-expired:
		t.release(accountID, l)
		return nil, &apperr.ConflictError{Reason: "account is busy with another order"}
	}
}

func (t *lockTable) release(accountID string, l *accountLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, accountID)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
