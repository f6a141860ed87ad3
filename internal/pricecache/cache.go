// Package pricecache provides the shared TTL cache in front of the
// market-data providers. A live entry is served without any upstream call;
// concurrent fetches for the same key are coalesced into a single in-flight
// request, bounding upstream rate to at most one call per key per TTL window
// regardless of request volume.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stargazy/nifty/internal/core"
	"github.com/stargazy/nifty/internal/market"
	"github.com/stargazy/nifty/internal/metrics"
)

// Key identifies one cached rate: (symbol, fiat) for crypto or (base, quote)
// for FX.
type Key struct {
	Base  string
	Quote string
}

func (k Key) String() string {
	return k.Base + "/" + k.Quote
}

// Result is a cache lookup outcome. Stale marks a degraded answer: an
// expired entry served because every upstream provider failed.
type Result struct {
	Quote     market.Quote
	FetchedAt time.Time
	Stale     bool
}

// FetchFunc performs the upstream call for one key.
type FetchFunc func(ctx context.Context) (market.Quote, error)

// Options configures a Cache.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	// ServeStale enables serving an expired entry (up to MaxStale old) as a
	// degraded fallback when the upstream fails. Failures are never cached.
	ServeStale bool
	// MaxStale bounds how old a stale entry may be before it is no longer
	// an acceptable fallback. Defaults to 10x TTL.
	MaxStale time.Duration
}

type entry struct {
	quote     market.Quote
	fetchedAt time.Time
}

// Cache is a TTL-bound, single-flight cache for market-data lookups. Safe
// for concurrent use; synchronization is per key, never global across an
// upstream call.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry
	group   singleflight.Group

	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Cache.
func New(opts Options, logger *slog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 300 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.MaxStale <= 0 {
		opts.MaxStale = 10 * opts.TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[Key]entry),
		opts:    opts,
		logger:  logger.With("component", "pricecache"),
		now:     time.Now,
	}
}

// GetOrFetch returns a live cached value for key, or coalesces concurrent
// callers onto one upstream fetch. Fetch failures are never cached; when
// serve-stale is enabled a recent expired entry is returned instead, marked
// Stale.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (Result, error) {
	if e, ok := c.lookup(key); ok {
		metrics.CacheHits.Inc()
		return Result{Quote: e.quote, FetchedAt: e.fetchedAt}, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// Another waiter may have refreshed the entry while this call was
		// queued behind a completed flight.
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		metrics.CacheMisses.Inc()

		// The fetch outlives any single caller's cancellation so that
		// coalesced waiters do not all fail because the first one gave up.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()

		quote, err := fetch(fctx)
		if err != nil {
			return entry{}, err
		}

		e := entry{quote: quote, fetchedAt: c.now()}
		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return c.degrade(key, res.Err)
		}
		e := res.Val.(entry)
		return Result{Quote: e.quote, FetchedAt: e.fetchedAt}, nil
	}
}

// lookup returns the entry for key if it is still live.
func (c *Cache) lookup(key Key) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.opts.TTL {
		return entry{}, false
	}
	return e, true
}

// degrade applies the serve-stale-on-error policy after a failed fetch.
func (c *Cache) degrade(key Key, fetchErr error) (Result, error) {
	if c.opts.ServeStale {
		c.mu.Lock()
		e, ok := c.entries[key]
		c.mu.Unlock()
		if ok && c.now().Sub(e.fetchedAt) < c.opts.MaxStale {
			c.logger.Warn("serving stale entry after upstream failure",
				"key", key.String(), "age", c.now().Sub(e.fetchedAt), "error", fetchErr)
			return Result{Quote: e.quote, FetchedAt: e.fetchedAt, Stale: true}, nil
		}
	}

	if errors.Is(fetchErr, core.ErrUpstreamUnavailable) {
		return Result{}, fetchErr
	}
	return Result{}, fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, fetchErr)
}
