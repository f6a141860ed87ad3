// Package gemini implements the language-model backend over Google's Gemini
// API. The dispatcher assembles prompts; this package owns the API session,
// retry policy for transient server errors, and response extraction.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/stargazy/nifty/internal/core"
)

// Client generates text from a prompt plus conversational context.
type Client interface {
	Generate(ctx context.Context, prompt string, snap core.ContextSnapshot) (string, error)
}

// Options configures the Gemini client.
type Options struct {
	APIKey      string
	Model       string
	Temperature float32
	// Instruction is the system instruction prepended to every request.
	Instruction string
	MaxRetries  int
	RetryDelay  time.Duration
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	model         string
	maxRetries    int
	retryDelay    time.Duration
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, opts Options, log *slog.Logger) (Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: &opts.Temperature,
	}
	if opts.Instruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: opts.Instruction}}}
	}

	logger := log.With("component", "gemini")
	logger.Info("gemini client initialized", "model", opts.Model)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: cfg,
		model:         opts.Model,
		maxRetries:    opts.MaxRetries,
		retryDelay:    opts.RetryDelay,
	}, nil
}

// Generate produces a reply to prompt given the conversation's recent
// history. History turns map to user/model roles so the model sees the
// dialogue shape, not a flattened transcript.
func (c *sdkClient) Generate(ctx context.Context, prompt string, snap core.ContextSnapshot) (string, error) {
	contents := make([]*genai.Content, 0, len(snap.History)+1)
	for _, turn := range snap.History {
		role := genai.Role(genai.RoleUser)
		text := turn.Text
		if turn.FromBot {
			role = genai.RoleModel
		} else {
			text = formatTurn(turn)
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	resp, err := c.generateWithRetries(ctx, contents)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
	}
	return c.extractText(ctx, resp)
}

func formatTurn(t core.Turn) string {
	name := t.SenderName
	if name == "" {
		name = t.Sender
	}
	return fmt.Sprintf("[%s] %s: %s", t.At.Format("2006-01-02 15:04:05"), name, t.Text)
}

// generateWithRetries retries transient server errors (HTTP 500/503) up to
// maxRetries; everything else fails immediately.
func (c *sdkClient) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.model, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.WarnContext(ctx, "retrying gemini call after server error",
					"attempt", i+1, "code", apiErr.Code, "delay", c.retryDelay)
				select {
				case <-time.After(c.retryDelay):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, fmt.Errorf("gemini call failed after %d retries (code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini call failed: %w", err)
	}
	return nil, err
}

func (c *sdkClient) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "gemini request blocked", "reason", reason)
		return "", fmt.Errorf("request blocked by safety filter: %s", reason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty response from gemini")
	}
	return text, nil
}
