package events

import (
	"context"
	"sort"
	"sync"

	"github.com/GooferByte/tradesim/internal/readcache"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=invalidator.go -destination=mocks/target.go -package=mocks

// Target is a read-model cache that can drop keys.
type Target interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// CacheInvalidator drops an account's portfolio view and its class standings
// after each commit. Keys it failed to drop are retried by Run.
type CacheInvalidator struct {
	target  Target
	mu      sync.Mutex
	pending map[string]struct{}
	logger  *logrus.Entry
}

func NewCacheInvalidator(target Target, logger *logrus.Logger) *CacheInvalidator {
	return &CacheInvalidator{
		target:  target,
		pending: make(map[string]struct{}),
		logger:  logger.WithField("component", "cache-invalidator"),
	}
}

func (c *CacheInvalidator) Name() string { return "cache-invalidator" }

func (c *CacheInvalidator) Handle(ctx context.Context, ev TradeCommitted) error {
	keys := []string{readcache.PortfolioKey(ev.AccountID)}
	if ev.ClassID != "" {
		keys = append(keys, readcache.LeaderboardKey(ev.ClassID))
	}
	if err := c.target.Invalidate(ctx, keys...); err != nil {
		c.remember(keys)
		return err
	}
	return nil
}

// Run is the sweep: it retries every remembered key once.
func (c *CacheInvalidator) Run(ctx context.Context) error {
	keys := c.drain()
	if len(keys) == 0 {
		return nil
	}
	if err := c.target.Invalidate(ctx, keys...); err != nil {
		c.remember(keys)
		return err
	}
	c.logger.WithField("keys", len(keys)).Info("swept stale read models")
	return nil
}

// Pending returns the keys waiting for the next sweep, sorted.
func (c *CacheInvalidator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pending))
	for k := range c.pending {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *CacheInvalidator) remember(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.pending[k] = struct{}{}
	}
}

func (c *CacheInvalidator) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pending))
	for k := range c.pending {
		out = append(out, k)
	}
	sort.Strings(out)
	c.pending = make(map[string]struct{})
	return out
}
