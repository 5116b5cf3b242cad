package pricing

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// QuoteCache is the process-wide, size-bounded TTL cache of provider answers.
// It is keyed by provider kind and symbol so each provider keeps its own entries.
type QuoteCache struct {
	lru *expirable.LRU[string, RawQuote]
}

func NewQuoteCache(size int, ttl time.Duration) *QuoteCache {
	if size <= 0 {
		size = 1024
	}
	return &QuoteCache{lru: expirable.NewLRU[string, RawQuote](size, nil, ttl)}
}

func (c *QuoteCache) Get(kind Kind, symbol string) (RawQuote, bool) {
	return c.lru.Get(cacheKey(kind, symbol))
}

func (c *QuoteCache) Put(kind Kind, symbol string, q RawQuote) {
	c.lru.Add(cacheKey(kind, symbol), q)
}

// Forget drops every provider's entry for symbol.
func (c *QuoteCache) Forget(symbol string, kinds ...Kind) {
	for _, k := range kinds {
		c.lru.Remove(cacheKey(k, symbol))
	}
}

func (c *QuoteCache) Len() int { return c.lru.Len() }

func cacheKey(kind Kind, symbol string) string {
	return string(kind) + ":" + symbol
}
