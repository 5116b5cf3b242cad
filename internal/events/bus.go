// Package events delivers post-commit notifications to collaborators whose
// failure must never affect a committed trade.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TradeCommitted is published once per committed transaction.
type TradeCommitted struct {
	ID            string
	TransactionID string
	AccountID     string
	ClassID       string
	Symbol        string
	Side          models.Side
	Quantity      int64
	Price         decimal.Decimal
	Reason        string
	At            time.Time
}

// NewTradeCommitted builds the event for a committed result.
func NewTradeCommitted(account models.Account, txn models.Transaction) TradeCommitted {
	return TradeCommitted{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		ClassID:       account.ClassID,
		Symbol:        txn.Symbol,
		Side:          txn.Type,
		Quantity:      txn.Quantity,
		Price:         txn.ExecutionPrice,
		Reason:        txn.Reason,
		At:            txn.CreatedAt,
	}
}

// Subscriber reacts to committed trades.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev TradeCommitted) error
}

// Bus fans events out to subscribers, each delivery on its own goroutine.
type Bus struct {
	mu      sync.RWMutex
	subs    []Subscriber
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *logrus.Entry
}

func NewBus(timeout time.Duration, logger *logrus.Logger) *Bus {
	return &Bus{timeout: timeout, logger: logger.WithField("component", "event-bus")}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Publish returns immediately. Subscriber errors and panics are logged and dropped.
func (b *Bus) Publish(ev TradeCommitted) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.wg.Add(1)
		go b.deliver(s, ev)
	}
}

// Wait blocks until in-flight deliveries finish.
func (b *Bus) Wait() { b.wg.Wait() }

func (b *Bus) deliver(s Subscriber, ev TradeCommitted) {
	defer b.wg.Done()
	entry := b.logger.WithFields(logrus.Fields{
		"subscriber":  s.Name(),
		"event":       ev.ID,
		"transaction": ev.TransactionID,
		"account":     ev.AccountID,
	})
	defer func() {
		if r := recover(); r != nil {
			entry.WithError(fmt.Errorf("panic: %v", r)).Warn("subscriber panicked")
		}
	}()

	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	if err := s.Handle(ctx, ev); err != nil {
		entry.WithError(err).Warn("subscriber failed")
	}
}
