package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

// Quote is one market-data observation: a price (or FX rate) and, for
// crypto, the 24h percentage change.
type Quote struct {
	Price     float64
	Change24h *float64
}

// Client fetches market data from the public provider APIs. Each fetch tries
// a primary provider and falls back to a secondary one before reporting the
// upstream as unavailable.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	coinGeckoURL    string
	coinCapURL      string
	frankfurterURL  string
	exchangeRateURL string
}

// NewClient creates a market-data client with the given per-request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger.With("component", "market"),
		coinGeckoURL:    "https://api.coingecko.com",
		coinCapURL:      "https://api.coincap.io",
		frankfurterURL:  "https://api.frankfurter.app",
		exchangeRateURL: "https://api.exchangerate-api.com",
	}
}

// FetchCrypto returns the price of a crypto symbol in the given fiat quote
// currency, with its 24h change when the provider reports one.
func (c *Client) FetchCrypto(ctx context.Context, symbol, quote string) (Quote, error) {
	symbol = strings.ToUpper(symbol)
	quote = strings.ToUpper(quote)

	assetID, ok := cryptoIDs[symbol]
	if !ok {
		assetID = strings.ToLower(symbol)
	}

	q, err := c.fetchCoinGecko(ctx, assetID, quote)
	if err == nil {
		return q, nil
	}
	c.logger.WarnContext(ctx, "coingecko fetch failed, trying coincap", "symbol", symbol, "error", err)

	q, err = c.fetchCoinCap(ctx, assetID, quote)
	if err == nil {
		return q, nil
	}
	c.logger.ErrorContext(ctx, "all crypto providers failed", "symbol", symbol, "error", err)
	return Quote{}, fmt.Errorf("%w: crypto price for %s/%s: %v", core.ErrUpstreamUnavailable, symbol, quote, err)
}

// FetchFX returns the exchange rate from base to quote.
func (c *Client) FetchFX(ctx context.Context, base, quote string) (Quote, error) {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)

	rate, err := c.fetchFrankfurter(ctx, base, quote)
	if err == nil {
		return Quote{Price: rate}, nil
	}
	c.logger.WarnContext(ctx, "frankfurter fetch failed, trying exchangerate-api", "base", base, "error", err)

	rate, err = c.fetchExchangeRate(ctx, base, quote)
	if err == nil {
		return Quote{Price: rate}, nil
	}
	c.logger.ErrorContext(ctx, "all fx providers failed", "base", base, "quote", quote, "error", err)
	return Quote{}, fmt.Errorf("%w: fx rate for %s/%s: %v", core.ErrUpstreamUnavailable, base, quote, err)
}

func (c *Client) fetchCoinGecko(ctx context.Context, assetID, quote string) (Quote, error) {
	u := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=%s&include_24hr_change=true",
		c.coinGeckoURL, url.QueryEscape(assetID), url.QueryEscape(strings.ToLower(quote)))

	var body map[string]map[string]float64
	if err := c.getJSON(ctx, u, &body); err != nil {
		return Quote{}, err
	}

	asset, ok := body[assetID]
	if !ok {
		return Quote{}, fmt.Errorf("asset %q missing from coingecko response", assetID)
	}
	price, ok := asset[strings.ToLower(quote)]
	if !ok {
		return Quote{}, fmt.Errorf("quote currency %q missing from coingecko response", quote)
	}

	q := Quote{Price: price}
	if change, ok := asset[strings.ToLower(quote)+"_24h_change"]; ok {
		q.Change24h = &change
	}
	return q, nil
}

func (c *Client) fetchCoinCap(ctx context.Context, assetID, quote string) (Quote, error) {
	u := fmt.Sprintf("%s/v2/assets/%s", c.coinCapURL, url.PathEscape(assetID))

	var body struct {
		Data struct {
			PriceUSD         string `json:"priceUsd"`
			ChangePercent24h string `json:"changePercent24Hr"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return Quote{}, err
	}

	price, err := strconv.ParseFloat(body.Data.PriceUSD, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid coincap price %q: %w", body.Data.PriceUSD, err)
	}

	q := Quote{Price: price}
	if change, err := strconv.ParseFloat(body.Data.ChangePercent24h, 64); err == nil {
		q.Change24h = &change
	}

	// CoinCap only quotes USD; convert through the FX providers when the
	// caller asked for something else.
	if quote != "USD" {
		fx, err := c.FetchFX(ctx, "USD", quote)
		if err != nil {
			return Quote{}, err
		}
		q.Price *= fx.Price
	}
	return q, nil
}

func (c *Client) fetchFrankfurter(ctx context.Context, base, quote string) (float64, error) {
	u := fmt.Sprintf("%s/latest?from=%s&to=%s", c.frankfurterURL, url.QueryEscape(base), url.QueryEscape(quote))

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return 0, err
	}
	rate, ok := body.Rates[quote]
	if !ok {
		return 0, fmt.Errorf("rate for %q missing from frankfurter response", quote)
	}
	return rate, nil
}

func (c *Client) fetchExchangeRate(ctx context.Context, base, quote string) (float64, error) {
	u := fmt.Sprintf("%s/v4/latest/%s", c.exchangeRateURL, url.PathEscape(base))

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return 0, err
	}
	rate, ok := body.Rates[quote]
	if !ok {
		return 0, fmt.Errorf("rate for %q missing from exchangerate-api response", quote)
	}
	return rate, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
