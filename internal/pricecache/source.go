package pricecache

import (
	"context"
	"strings"

	"github.com/stargazy/nifty/internal/market"
)

// Source binds the cache to the market-data client: every crypto and FX
// lookup goes through GetOrFetch, so upstream call rate is bounded per key
// regardless of how many conversations ask for the same pair.
type Source struct {
	cache  *Cache
	client *market.Client
}

// NewSource creates a Source over cache and client.
func NewSource(cache *Cache, client *market.Client) *Source {
	return &Source{cache: cache, client: client}
}

// Crypto returns the cached or freshly fetched price of symbol in quote.
func (s *Source) Crypto(ctx context.Context, symbol, quote string) (Result, error) {
	key := Key{Base: strings.ToUpper(symbol), Quote: strings.ToUpper(quote)}
	return s.cache.GetOrFetch(ctx, key, func(fctx context.Context) (market.Quote, error) {
		return s.client.FetchCrypto(fctx, key.Base, key.Quote)
	})
}

// FX returns the cached or freshly fetched exchange rate from base to quote.
func (s *Source) FX(ctx context.Context, base, quote string) (Result, error) {
	key := Key{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}
	return s.cache.GetOrFetch(ctx, key, func(fctx context.Context) (market.Quote, error) {
		return s.client.FetchFX(fctx, key.Base, key.Quote)
	})
}
