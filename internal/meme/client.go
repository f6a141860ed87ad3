// Package meme renders meme images through the Imgflip caption API.
package meme

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

// templates maps well-known Imgflip template names to their numeric IDs.
// One is picked deterministically per topic so repeated requests for the
// same topic reuse the same template.
var templates = []struct {
	name string
	id   string
}{
	{"Drake Hotline Bling", "181913649"},
	{"Distracted Boyfriend", "112126428"},
	{"Two Buttons", "87743020"},
	{"Change My Mind", "129242436"},
	{"Expanding Brain", "93895088"},
	{"One Does Not Simply", "61579"},
	{"Is This A Pigeon", "100777631"},
	{"Woman Yelling At Cat", "188390779"},
}

// Client captions meme templates via Imgflip.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	username   string
	password   string
}

// Options configures a Client. Username and password are the Imgflip API
// credentials.
type Options struct {
	Username string
	Password string
	Timeout  time.Duration
}

// NewClient creates a meme client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.With("component", "meme"),
		baseURL:    "https://api.imgflip.com",
		username:   opts.Username,
		password:   opts.Password,
	}
}

// Render captions a template with the topic text and returns the image URL.
func (c *Client) Render(ctx context.Context, topic string) (string, error) {
	tpl := pickTemplate(topic)

	form := url.Values{
		"template_id": {tpl},
		"username":    {c.username},
		"password":    {c.password},
		"text0":       {strings.ToUpper(topic)},
		"text1":       {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/caption_image", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: meme render: %v", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: meme render: unexpected status %d", core.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			URL string `json:"url"`
		} `json:"data"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: meme render: decode: %v", core.ErrUpstreamUnavailable, err)
	}
	if !body.Success {
		c.logger.WarnContext(ctx, "imgflip rejected request", "error", body.ErrorMessage)
		return "", fmt.Errorf("%w: meme render: %s", core.ErrUpstreamUnavailable, body.ErrorMessage)
	}
	return body.Data.URL, nil
}

func pickTemplate(topic string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(topic))))
	return templates[int(h.Sum32())%len(templates)].id
}
