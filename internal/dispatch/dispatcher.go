// Package dispatch turns a classified intent into exactly one outbound
// message. It owns prompt assembly, downstream timeouts, and the mapping of
// every upstream failure to a user-facing degraded response; a conversation
// worker calling Process never stalls and never surfaces an error to the
// platform adapter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stargazy/nifty/internal/core"
	"github.com/stargazy/nifty/internal/database"
	"github.com/stargazy/nifty/internal/intent"
	"github.com/stargazy/nifty/internal/market"
	"github.com/stargazy/nifty/internal/metrics"
	"github.com/stargazy/nifty/internal/pricecache"
)

// ContextStore is the conversational memory the dispatcher reads and
// appends to.
type ContextStore interface {
	Append(conversationID string, turn core.Turn) error
	Reset(conversationID string) error
	Summarize(conversationID string) (core.Summary, error)
	Snapshot(conversationID string) (core.ContextSnapshot, error)
}

// Archive is the read side of the message archive, surfaced by the stats
// command.
type Archive interface {
	Stats(ctx context.Context, conversationID string) (database.ConversationStats, error)
}

// PriceSource serves crypto prices and FX rates, cached.
type PriceSource interface {
	Crypto(ctx context.Context, symbol, quote string) (pricecache.Result, error)
	FX(ctx context.Context, base, quote string) (pricecache.Result, error)
}

// LLM generates a reply from a prompt plus context.
type LLM interface {
	Generate(ctx context.Context, prompt string, snap core.ContextSnapshot) (string, error)
}

// Searcher performs web search and URL content extraction.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
	ReadURL(ctx context.Context, url string) (string, error)
}

// MemeSource renders a meme image for a topic.
type MemeSource interface {
	Render(ctx context.Context, topic string) (string, error)
}

// Fallback texts for degraded upstream service. Plain responses, never
// errors, so a failure shows up in the room instead of vanishing.
const (
	resetAck         = "Context cleared. Fresh start."
	statsFallback    = "No archived history for this conversation yet."
	priceFallback    = "Price data is unavailable right now, try again in a bit."
	llmFallback      = "I can't reach my brain right now, try again in a moment."
	memeFallback     = "The meme press is jammed, try again later."
	rejectedResponse = "I'm not going to repeat that."
)

// Options configures a Dispatcher.
type Options struct {
	// BotName is recorded as the sender of outbound turns.
	BotName string
	// LLMTimeout bounds every language-model call.
	LLMTimeout time.Duration
	// StoreTimeout bounds search, meme, and price calls.
	StoreTimeout time.Duration
}

// Dispatcher routes intents to backends and renders responses.
type Dispatcher struct {
	classifier *intent.Classifier
	contexts   ContextStore
	archive    Archive
	prices     PriceSource
	llm        LLM
	search     Searcher
	memes      MemeSource
	opts       Options
	logger     *slog.Logger
}

// New creates a Dispatcher. archive may be nil when no message archive is
// configured; the stats command then reports an empty archive.
func New(classifier *intent.Classifier, contexts ContextStore, archive Archive, prices PriceSource,
	llm LLM, search Searcher, memes MemeSource, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.BotName == "" {
		opts.BotName = "nifty"
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 30 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		classifier: classifier,
		contexts:   contexts,
		archive:    archive,
		prices:     prices,
		llm:        llm,
		search:     search,
		memes:      memes,
		opts:       opts,
		logger:     logger.With("component", "dispatch"),
	}
}

// Process handles one dequeued message end to end: classify, execute the
// matching branch, append the exchange to context, and return the response.
func (d *Dispatcher) Process(ctx context.Context, msg core.InboundMessage) core.OutboundMessage {
	start := time.Now()

	if msg.Rejected {
		return d.respond(msg, intent.Intent{Kind: intent.KindChat}, rejectedResponse, start)
	}

	snap, err := d.contexts.Snapshot(msg.ConversationID)
	if err != nil {
		// Proceed without context rather than failing the response.
		d.logger.WarnContext(ctx, "context snapshot failed, proceeding without context",
			"conversation_id", msg.ConversationID, "error", err)
		snap = core.ContextSnapshot{ConversationID: msg.ConversationID}
	}

	in := d.classifier.Classify(msg, snap)

	var text string
	switch in.Kind {
	case intent.KindReset:
		text = d.handleReset(ctx, msg)
	case intent.KindSummary:
		text = d.handleSummary(ctx, msg)
	case intent.KindStats:
		text = d.handleStats(ctx, msg)
	case intent.KindPrice:
		text = d.handlePrice(ctx, in)
	case intent.KindFx:
		text = d.handleFx(ctx, in)
	case intent.KindMeme:
		text = d.handleMeme(ctx, in)
	case intent.KindSearch:
		text = d.handleSearch(ctx, in, snap)
	case intent.KindURLAnalysis:
		text = d.handleURLAnalysis(ctx, in, snap)
	default:
		text = d.handleChat(ctx, in, snap)
	}

	return d.respond(msg, in, text, start)
}

// respond builds the outbound message and appends the exchange to context.
// Reset intentionally skips the append so the cleared context stays empty.
func (d *Dispatcher) respond(msg core.InboundMessage, in intent.Intent, text string, start time.Time) core.OutboundMessage {
	if in.Kind != intent.KindReset {
		now := time.Now()
		if err := d.contexts.Append(msg.ConversationID, core.Turn{
			Sender: msg.SenderID, SenderName: msg.SenderName, Text: msg.Text, At: msg.ReceivedAt,
		}); err != nil {
			d.logger.Warn("context append failed",
				"conversation_id", msg.ConversationID, "error", err)
		} else if err := d.contexts.Append(msg.ConversationID, core.Turn{
			Sender: d.opts.BotName, SenderName: d.opts.BotName, Text: text, At: now, FromBot: true,
		}); err != nil {
			d.logger.Warn("context append failed",
				"conversation_id", msg.ConversationID, "error", err)
		}
	}

	metrics.MessagesProcessed.WithLabelValues(string(in.Kind)).Inc()
	metrics.ProcessingDuration.WithLabelValues(string(in.Kind)).Observe(time.Since(start).Seconds())

	return core.OutboundMessage{
		ID:             ulid.Make().String(),
		ConversationID: msg.ConversationID,
		Text:           text,
		Hints:          hintsFor(in.Kind),
		InReplyTo:      msg.MessageID,
	}
}

// hintsFor maps an intent kind to the rendering hints the adapters honor.
// Summary and stats output is tabular enough to read better preformatted.
func hintsFor(kind intent.Kind) []core.FormatHint {
	switch kind {
	case intent.KindSummary, intent.KindStats:
		return []core.FormatHint{core.FormatCodeBlock}
	default:
		return nil
	}
}

func (d *Dispatcher) handleReset(ctx context.Context, msg core.InboundMessage) string {
	if err := d.contexts.Reset(msg.ConversationID); err != nil {
		d.logger.WarnContext(ctx, "reset failed", "conversation_id", msg.ConversationID, "error", err)
	}
	return resetAck
}

func (d *Dispatcher) handleSummary(ctx context.Context, msg core.InboundMessage) string {
	summary, err := d.contexts.Summarize(msg.ConversationID)
	if err != nil {
		d.logger.WarnContext(ctx, "summarize failed", "conversation_id", msg.ConversationID, "error", err)
		return "Nothing to summarize yet."
	}
	return renderSummary(summary)
}

func renderSummary(s core.Summary) string {
	if s.MessageCount == 0 {
		return "Nothing to summarize yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d messages", s.MessageCount)
	if !s.Oldest.IsZero() && !s.Newest.IsZero() {
		fmt.Fprintf(&b, " between %s and %s",
			s.Oldest.Format("15:04"), s.Newest.Format("15:04"))
	}
	b.WriteString(".")

	if len(s.Participants) > 0 {
		fmt.Fprintf(&b, " Participants: %s.", strings.Join(s.Participants, ", "))
	}
	if len(s.TopTopics) > 0 {
		topics := make([]string, len(s.TopTopics))
		for i, t := range s.TopTopics {
			topics[i] = t.Topic
		}
		fmt.Fprintf(&b, " Hot topics: %s.", strings.Join(topics, ", "))
	}
	return b.String()
}

func (d *Dispatcher) handleStats(ctx context.Context, msg core.InboundMessage) string {
	if d.archive == nil {
		return statsFallback
	}

	sctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()

	st, err := d.archive.Stats(sctx, msg.ConversationID)
	if err != nil {
		d.logger.WarnContext(ctx, "stats lookup failed",
			"conversation_id", msg.ConversationID, "error", err)
		return statsFallback
	}
	if st.MessageCount == 0 {
		return statsFallback
	}

	return fmt.Sprintf("%d messages archived between %s and %s.",
		st.MessageCount,
		st.Oldest.Format("2006-01-02 15:04"), st.Newest.Format("2006-01-02 15:04"))
}

func (d *Dispatcher) handlePrice(ctx context.Context, in intent.Intent) string {
	fctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()

	res, err := d.prices.Crypto(fctx, in.Symbol, in.Quote)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("price").Inc()
		d.logger.WarnContext(ctx, "price lookup failed", "symbol", in.Symbol, "error", err)
		return priceFallback
	}

	text := fmt.Sprintf("%s: %s", in.Symbol, market.FormatPrice(res.Quote.Price, in.Quote))
	if res.Quote.Change24h != nil {
		text += " " + market.FormatChange(*res.Quote.Change24h)
	}
	if res.Stale {
		text += " (cached)"
	}
	return text
}

func (d *Dispatcher) handleFx(ctx context.Context, in intent.Intent) string {
	fctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()

	res, err := d.prices.FX(fctx, in.Base, in.Quote)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("fx").Inc()
		d.logger.WarnContext(ctx, "fx lookup failed", "base", in.Base, "quote", in.Quote, "error", err)
		return priceFallback
	}

	converted := in.Amount * res.Quote.Price
	text := fmt.Sprintf("%s = %s",
		market.FormatPrice(in.Amount, in.Base), market.FormatPrice(converted, in.Quote))
	if res.Stale {
		text += " (cached)"
	}
	return text
}

func (d *Dispatcher) handleMeme(ctx context.Context, in intent.Intent) string {
	fctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()

	url, err := d.memes.Render(fctx, in.Topic)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("meme").Inc()
		d.logger.WarnContext(ctx, "meme render failed", "topic", in.Topic, "error", err)
		return memeFallback
	}
	return url
}

func (d *Dispatcher) handleSearch(ctx context.Context, in intent.Intent, snap core.ContextSnapshot) string {
	sctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	results, err := d.search.Search(sctx, in.Query)
	cancel()
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("search").Inc()
		d.logger.WarnContext(ctx, "search failed", "query", in.Query, "error", err)
		return llmFallback
	}

	prompt := fmt.Sprintf("Answer the question %q using these search results:\n\n%s", in.Query, results)
	return d.generate(ctx, prompt, snap)
}

func (d *Dispatcher) handleURLAnalysis(ctx context.Context, in intent.Intent, snap core.ContextSnapshot) string {
	var contents []string
	for _, u := range in.URLs {
		sctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
		text, err := d.search.ReadURL(sctx, u)
		cancel()
		if err != nil {
			metrics.UpstreamErrors.WithLabelValues("url_read").Inc()
			d.logger.WarnContext(ctx, "url read failed", "url", u, "error", err)
			continue
		}
		contents = append(contents, fmt.Sprintf("Content of %s:\n%s", u, text))
	}
	if len(contents) == 0 {
		return llmFallback
	}

	instruction := in.Instruction
	if instruction == "" {
		instruction = "Summarize the linked content."
	}
	prompt := fmt.Sprintf("%s\n\n%s", instruction, strings.Join(contents, "\n\n"))
	return d.generate(ctx, prompt, snap)
}

func (d *Dispatcher) handleChat(ctx context.Context, in intent.Intent, snap core.ContextSnapshot) string {
	prompt := in.Text

	// An unseen topic gets grounded with a quick web search before the
	// model answers.
	if in.NovelTopic && d.search != nil {
		sctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
		results, err := d.search.Search(sctx, in.Text)
		cancel()
		if err == nil && results != "" {
			prompt = fmt.Sprintf("%s\n\nBackground from a quick web search:\n%s", in.Text, results)
		}
	}

	return d.generate(ctx, prompt, snap)
}

// generate calls the model under LLMTimeout and maps timeouts and upstream
// errors to the fallback text.
func (d *Dispatcher) generate(ctx context.Context, prompt string, snap core.ContextSnapshot) string {
	gctx, cancel := context.WithTimeout(ctx, d.opts.LLMTimeout)
	defer cancel()

	text, err := d.llm.Generate(gctx, prompt, snap)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("llm").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
			d.logger.WarnContext(ctx, "llm call timed out")
		} else {
			d.logger.WarnContext(ctx, "llm call failed", "error", err)
		}
		return llmFallback
	}
	return text
}
