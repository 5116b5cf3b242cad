package events

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/GooferByte/tradesim/internal/models"
)

// ReasonCount is how often a reason was given for one symbol and side.
type ReasonCount struct {
	Symbol string      `json:"symbol"`
	Side   models.Side `json:"side"`
	Reason string      `json:"reason"`
	Count  int         `json:"count"`
}

type reasonKey struct {
	symbol string
	side   models.Side
	reason string
}

// ReasonAnalytics tallies the free-text reasons students attach to orders.
type ReasonAnalytics struct {
	mu     sync.Mutex
	counts map[reasonKey]int
}

func NewReasonAnalytics() *ReasonAnalytics {
	return &ReasonAnalytics{counts: make(map[reasonKey]int)}
}

func (a *ReasonAnalytics) Name() string { return "reason-analytics" }

func (a *ReasonAnalytics) Handle(ctx context.Context, ev TradeCommitted) error {
	reason := strings.ToLower(strings.TrimSpace(ev.Reason))
	if reason == "" {
		return nil
	}
	a.mu.Lock()
	a.counts[reasonKey{ev.Symbol, ev.Side, reason}]++
	a.mu.Unlock()
	return nil
}

// Snapshot returns counts ordered by symbol, side, then descending count.
func (a *ReasonAnalytics) Snapshot() []ReasonCount {
	a.mu.Lock()
	out := make([]ReasonCount, 0, len(a.counts))
	for k, n := range a.counts {
		out = append(out, ReasonCount{Symbol: k.symbol, Side: k.side, Reason: k.reason, Count: n})
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		if out[i].Side != out[j].Side {
			return out[i].Side < out[j].Side
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
