// Package websearch wraps the Jina reader endpoints used to ground answers:
// s.jina.ai for web search and r.jina.ai for extracting readable text from a
// URL.
package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

// maxBodyBytes bounds how much extracted text one call can bring back.
const maxBodyBytes = 64 << 10

// Client performs web searches and URL content extraction.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	searchURL  string
	readerURL  string
}

// Options configures a Client. Empty URLs fall back to the public Jina
// endpoints.
type Options struct {
	SearchURL string
	ReaderURL string
	Timeout   time.Duration
}

// NewClient creates a web-search client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.SearchURL == "" {
		opts.SearchURL = "https://s.jina.ai"
	}
	if opts.ReaderURL == "" {
		opts.ReaderURL = "https://r.jina.ai"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.With("component", "websearch"),
		searchURL:  opts.SearchURL,
		readerURL:  opts.ReaderURL,
	}
}

// Search returns readable search results for query.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	u := c.searchURL + "/" + url.PathEscape(query)
	text, err := c.getText(ctx, u)
	if err != nil {
		c.logger.WarnContext(ctx, "search failed", "query", query, "error", err)
		return "", fmt.Errorf("%w: search: %v", core.ErrUpstreamUnavailable, err)
	}
	return text, nil
}

// ReadURL returns the readable text content of target.
func (c *Client) ReadURL(ctx context.Context, target string) (string, error) {
	u := c.readerURL + "/" + target
	text, err := c.getText(ctx, u)
	if err != nil {
		c.logger.WarnContext(ctx, "url read failed", "url", target, "error", err)
		return "", fmt.Errorf("%w: read url: %v", core.ErrUpstreamUnavailable, err)
	}
	return text, nil
}

func (c *Client) getText(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
