package tokenpulse

import (
	"context"
	"sync"
	"time"
)

// PriceQuote is one observed SOL/USD exchange rate. Quotes are replaced, never
// mutated.
type PriceQuote struct {
	ValueUSD   float64
	ObservedAt time.Time
}

// PriceCache holds the most recent SOL/USD quote behind a freshness window.
// A fresh quote is served without I/O; a stale one triggers a refresh sweep
// over the price registry. Refresh failures degrade to the previous quote, or
// to the configured fallback constant when nothing was ever fetched — Get
// never fails.
type PriceCache struct {
	resolver *Resolver
	registry SourceRegistry
	window   time.Duration
	fallback float64
	logger   Logger
	now      func() time.Time

	mu    sync.Mutex
	quote PriceQuote
	valid bool
}

// NewPriceCache constructs the cache around a resolver and the SOL/USD registry.
func NewPriceCache(resolver *Resolver, registry SourceRegistry, settings Settings, logger Logger) *PriceCache {
	window := settings.PriceWindow
	if window <= 0 {
		window = defaultPriceWindow
	}
	fallback := settings.FallbackPrice
	if fallback <= 0 {
		fallback = defaultFallbackPrice
	}
	return &PriceCache{
		resolver: resolver,
		registry: registry,
		window:   window,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the current SOL/USD rate. Concurrent callers observing a stale
// quote may each refresh; the duplicate fetch is one extra HTTP call and both
// writes store an acceptable quote.
func (c *PriceCache) Get(ctx context.Context) float64 {
	if price, ok := c.fresh(); ok {
		return price
	}

	resolution := c.resolver.Resolve(ctx, c.registry, "")
	if resolution.OK() {
		c.store(PriceQuote{ValueUSD: resolution.Metric.Price, ObservedAt: c.now()})
		c.logf("sol price refreshed value=%.4f source=%s", resolution.Metric.Price, resolution.Source)
		return resolution.Metric.Price
	}

	priceRefreshFailures.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid {
		c.logf("sol price refresh failed, serving stale value=%.4f reason=%s", c.quote.ValueUSD, resolution.Err)
		return c.quote.ValueUSD
	}
	c.logf("sol price refresh failed with no prior quote, serving fallback value=%.4f reason=%s", c.fallback, resolution.Err)
	return c.fallback
}

// Quote exposes the cached quote for payload assembly; ok is false before the
// first successful refresh.
func (c *PriceCache) Quote() (PriceQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quote, c.valid
}

func (c *PriceCache) fresh() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return 0, false
	}
	if c.now().Sub(c.quote.ObservedAt) >= c.window {
		return 0, false
	}
	return c.quote.ValueUSD, true
}

func (c *PriceCache) store(quote PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quote = quote
	c.valid = true
}

func (c *PriceCache) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
