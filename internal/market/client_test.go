package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(5*time.Second, nil)
	c.coinGeckoURL = srv.URL
	c.coinCapURL = srv.URL
	c.frankfurterURL = srv.URL
	c.exchangeRateURL = srv.URL
	return c, srv
}

func TestFetchCryptoPrimary(t *testing.T) {
	t.Parallel()

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/simple/price" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"bitcoin":{"usd":50000,"usd_24h_change":2.5}}`))
	}))

	q, err := c.FetchCrypto(context.Background(), "btc", "usd")
	if err != nil {
		t.Fatalf("FetchCrypto: %v", err)
	}
	if q.Price != 50000 {
		t.Errorf("price = %v, want 50000", q.Price)
	}
	if q.Change24h == nil || *q.Change24h != 2.5 {
		t.Errorf("change = %v, want 2.5", q.Change24h)
	}
}

func TestFetchCryptoFallsBackToCoinCap(t *testing.T) {
	t.Parallel()

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/simple/price":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/v2/assets/bitcoin":
			w.Write([]byte(`{"data":{"priceUsd":"49500.25","changePercent24Hr":"-1.2"}}`))
		default:
			http.NotFound(w, r)
		}
	}))

	q, err := c.FetchCrypto(context.Background(), "BTC", "USD")
	if err != nil {
		t.Fatalf("FetchCrypto: %v", err)
	}
	if q.Price != 49500.25 {
		t.Errorf("price = %v, want 49500.25", q.Price)
	}
	if q.Change24h == nil || *q.Change24h != -1.2 {
		t.Errorf("change = %v, want -1.2", q.Change24h)
	}
}

func TestFetchCryptoAllProvidersDown(t *testing.T) {
	t.Parallel()

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchCrypto(context.Background(), "BTC", "USD")
	if !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestFetchFXPrimary(t *testing.T) {
	t.Parallel()

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"rates":{"EUR":0.92}}`))
	}))

	q, err := c.FetchFX(context.Background(), "USD", "EUR")
	if err != nil {
		t.Fatalf("FetchFX: %v", err)
	}
	if q.Price != 0.92 {
		t.Errorf("rate = %v, want 0.92", q.Price)
	}
}

func TestFetchFXFallsBack(t *testing.T) {
	t.Parallel()

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/v4/latest/USD":
			w.Write([]byte(`{"rates":{"JPY":155.3}}`))
		default:
			http.NotFound(w, r)
		}
	}))

	q, err := c.FetchFX(context.Background(), "usd", "jpy")
	if err != nil {
		t.Fatalf("FetchFX: %v", err)
	}
	if q.Price != 155.3 {
		t.Errorf("rate = %v, want 155.3", q.Price)
	}
}
