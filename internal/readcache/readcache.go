// Package readcache holds derived read models (portfolio views, leaderboard
// standings) that are safe to drop at any time.
package readcache

import (
	"context"
	"sync"
	"time"

	"github.com/GooferByte/tradesim/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PortfolioKey is the cache key of an account's portfolio view.
func PortfolioKey(accountID string) string { return "portfolio:" + accountID }

// LeaderboardKey is the cache key of a class's standings.
func LeaderboardKey(classID string) string { return "leaderboard:" + classID }

// Cache is an expiring LRU. Each key carries a generation that Invalidate
// bumps, so a reader that loaded a view before a commit cannot store it after
// the commit's invalidation has run.
type Cache struct {
	lru *expirable.LRU[string, any]

	mu   sync.Mutex
	gens map[string]uint64
}

func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 4096
	}
	return &Cache{
		lru:  expirable.NewLRU[string, any](size, nil, ttl),
		gens: make(map[string]uint64),
	}
}

func (c *Cache) Portfolio(accountID string) (models.PortfolioView, bool) {
	v, ok := c.lru.Get(PortfolioKey(accountID))
	if !ok {
		return models.PortfolioView{}, false
	}
	view, ok := v.(models.PortfolioView)
	return view, ok
}

// PortfolioGeneration must be read before loading the data a view is built from.
func (c *Cache) PortfolioGeneration(accountID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[PortfolioKey(accountID)]
}

func (c *Cache) PutPortfolio(view models.PortfolioView) {
	c.lru.Add(PortfolioKey(view.Account.ID), view)
}

// PutPortfolioAt stores view only if its key was not invalidated since gen
// was read. It reports whether the view was stored.
func (c *Cache) PutPortfolioAt(view models.PortfolioView, gen uint64) bool {
	key := PortfolioKey(view.Account.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	c.lru.Add(key, view)
	return true
}

// Put stores an arbitrary read model under key.
func (c *Cache) Put(key string, v any) { c.lru.Add(key, v) }

func (c *Cache) Get(key string) (any, bool) { return c.lru.Get(key) }

// Invalidate drops keys. Missing keys are not an error.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.gens[k]++
		c.lru.Remove(k)
	}
	return nil
}

func (c *Cache) Len() int { return c.lru.Len() }
