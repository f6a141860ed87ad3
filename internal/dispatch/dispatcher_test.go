package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stargazy/nifty/internal/core"
	"github.com/stargazy/nifty/internal/database"
	"github.com/stargazy/nifty/internal/dispatch"
	"github.com/stargazy/nifty/internal/intent"
	"github.com/stargazy/nifty/internal/market"
	"github.com/stargazy/nifty/internal/pricecache"
)

type fakeContexts struct {
	mu        sync.Mutex
	appends   []core.Turn
	appendErr error
	resets    int
	summary   core.Summary
	snapshot  core.ContextSnapshot
}

func (f *fakeContexts) Append(_ string, turn core.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, turn)
	return nil
}

func (f *fakeContexts) Reset(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeContexts) Summarize(string) (core.Summary, error)        { return f.summary, nil }
func (f *fakeContexts) Snapshot(string) (core.ContextSnapshot, error) { return f.snapshot, nil }

type fakeArchive struct {
	stats database.ConversationStats
	err   error
}

func (f *fakeArchive) Stats(context.Context, string) (database.ConversationStats, error) {
	return f.stats, f.err
}

type fakePrices struct {
	mu      sync.Mutex
	fetches int
	result  pricecache.Result
	err     error
}

func (f *fakePrices) Crypto(context.Context, string, string) (pricecache.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.result, f.err
}

func (f *fakePrices) FX(ctx context.Context, base, quote string) (pricecache.Result, error) {
	return f.Crypto(ctx, base, quote)
}

type fakeLLM struct {
	reply string
	err   error
	block bool
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, _ core.ContextSnapshot) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type fakeSearch struct {
	searchResult string
	pageContent  string
	err          error
}

func (f *fakeSearch) Search(context.Context, string) (string, error) {
	return f.searchResult, f.err
}

func (f *fakeSearch) ReadURL(context.Context, string) (string, error) {
	return f.pageContent, f.err
}

type fakeMemes struct {
	url string
	err error
}

func (f *fakeMemes) Render(context.Context, string) (string, error) { return f.url, f.err }

type deps struct {
	contexts *fakeContexts
	archive  *fakeArchive
	prices   *fakePrices
	llm      *fakeLLM
	search   *fakeSearch
	memes    *fakeMemes
}

func newDispatcher(opts dispatch.Options) (*dispatch.Dispatcher, *deps) {
	d := &deps{
		contexts: &fakeContexts{},
		archive:  &fakeArchive{},
		prices:   &fakePrices{},
		llm:      &fakeLLM{reply: "model says hi"},
		search:   &fakeSearch{searchResult: "search results", pageContent: "page text"},
		memes:    &fakeMemes{url: "https://i.imgflip.com/abc.jpg"},
	}
	disp := dispatch.New(intent.NewClassifier(intent.Options{}),
		d.contexts, d.archive, d.prices, d.llm, d.search, d.memes, opts, nil)
	return disp, d
}

func inbound(text string) core.InboundMessage {
	return core.InboundMessage{
		ConversationID: "telegram:1",
		MessageID:      "m1",
		SenderID:       "user1",
		SenderName:     "Alice",
		Text:           text,
		ReceivedAt:     time.Now(),
		Triggered:      true,
	}
}

func TestProcessReset(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	out := disp.Process(context.Background(), inbound("!reset"))

	if d.contexts.resets != 1 {
		t.Errorf("resets = %d, want 1", d.contexts.resets)
	}
	if out.Text == "" {
		t.Error("reset produced no acknowledgement")
	}
	if len(d.contexts.appends) != 0 {
		t.Errorf("reset appended %d turns, want 0", len(d.contexts.appends))
	}
}

func TestProcessSummary(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.contexts.summary = core.Summary{
		TopTopics:    []core.TopicScore{{Topic: "golang", Score: 3}},
		Participants: []string{"Alice", "Bob"},
		MessageCount: 12,
		Oldest:       time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Newest:       time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC),
	}

	out := disp.Process(context.Background(), inbound("!summary"))
	for _, want := range []string{"12 messages", "Alice", "golang"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("summary %q missing %q", out.Text, want)
		}
	}
	if len(out.Hints) != 1 || out.Hints[0] != core.FormatCodeBlock {
		t.Errorf("summary hints = %v, want [code-block]", out.Hints)
	}
}

func TestProcessStats(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.archive.stats = database.ConversationStats{
		ConversationID: "telegram:1",
		MessageCount:   42,
		Oldest:         time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		Newest:         time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC),
	}

	out := disp.Process(context.Background(), inbound("!stats"))
	for _, want := range []string{"42 messages", "2025-05-01", "2025-06-01"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("stats %q missing %q", out.Text, want)
		}
	}
	if len(out.Hints) != 1 || out.Hints[0] != core.FormatCodeBlock {
		t.Errorf("stats hints = %v, want [code-block]", out.Hints)
	}
}

func TestProcessStatsEmptyArchive(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.archive.err = core.ErrStoreUnavailable

	out := disp.Process(context.Background(), inbound("!stats"))
	if out.Text == "" {
		t.Fatal("stats failure produced empty response")
	}
	if strings.Contains(out.Text, "archived between") {
		t.Errorf("degraded stats response %q looks like real stats", out.Text)
	}
}

func TestProcessPriceQuery(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	change := 2.5
	d.prices.result = pricecache.Result{
		Quote:     market.Quote{Price: 50123.7, Change24h: &change},
		FetchedAt: time.Now(),
	}

	out := disp.Process(context.Background(), inbound("btc price"))

	if d.prices.fetches != 1 {
		t.Errorf("price fetches = %d, want 1", d.prices.fetches)
	}
	if !strings.Contains(out.Text, "$") {
		t.Errorf("response %q has no currency symbol", out.Text)
	}
	if !strings.Contains(out.Text, "+2.50%") {
		t.Errorf("response %q has no signed change", out.Text)
	}
	if strings.Contains(out.Text, "(cached)") {
		t.Errorf("fresh result marked cached: %q", out.Text)
	}
}

func TestProcessPriceStaleMarked(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.prices.result = pricecache.Result{
		Quote: market.Quote{Price: 50000},
		Stale: true,
	}

	out := disp.Process(context.Background(), inbound("btc price"))
	if !strings.Contains(out.Text, "(cached)") {
		t.Errorf("stale result not marked: %q", out.Text)
	}
}

func TestProcessPriceUpstreamDown(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.prices.err = core.ErrUpstreamUnavailable

	out := disp.Process(context.Background(), inbound("btc price"))
	if out.Text == "" {
		t.Fatal("upstream failure produced empty response")
	}
	if strings.Contains(out.Text, "$") {
		t.Errorf("degraded response %q looks like a price", out.Text)
	}
}

func TestProcessFxQuery(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.prices.result = pricecache.Result{Quote: market.Quote{Price: 0.92}}

	out := disp.Process(context.Background(), inbound("convert 100 usd to eur"))
	if !strings.Contains(out.Text, "€92.00") {
		t.Errorf("fx response = %q, want converted amount €92.00", out.Text)
	}
}

func TestProcessChatAppendsExchange(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	out := disp.Process(context.Background(), inbound("hello nifty"))

	if out.Text != "model says hi" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.InReplyTo != "m1" {
		t.Errorf("InReplyTo = %q", out.InReplyTo)
	}

	d.contexts.mu.Lock()
	defer d.contexts.mu.Unlock()
	if len(d.contexts.appends) != 2 {
		t.Fatalf("appended %d turns, want 2 (user and bot)", len(d.contexts.appends))
	}
	if d.contexts.appends[0].FromBot || !d.contexts.appends[1].FromBot {
		t.Error("turn order wrong: want user turn then bot turn")
	}
}

func TestProcessContextAppendFailureStillResponds(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.contexts.appendErr = core.ErrStoreUnavailable

	out := disp.Process(context.Background(), inbound("hello nifty"))
	if out.Text != "model says hi" {
		t.Errorf("Text = %q, want the model reply despite the append failure", out.Text)
	}
}

func TestProcessLLMTimeoutYieldsFallback(t *testing.T) {
	t.Parallel()

	const timeout = 100 * time.Millisecond
	disp, d := newDispatcher(dispatch.Options{LLMTimeout: timeout})
	d.llm.block = true

	start := time.Now()
	out := disp.Process(context.Background(), inbound("tell me a story"))
	elapsed := time.Since(start)

	if out.Text == "" {
		t.Fatal("timeout produced empty response")
	}
	if out.Text == "model says hi" {
		t.Error("blocked model still produced a reply")
	}
	if elapsed > timeout+2*time.Second {
		t.Errorf("fallback took %v, want under %v plus slack", elapsed, timeout)
	}
}

func TestProcessURLAnalysis(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.llm.reply = "that article says things"

	out := disp.Process(context.Background(), inbound("thoughts on https://example.com/post ?"))
	if out.Text != "that article says things" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestProcessURLAnalysisAllReadsFail(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	d.search.err = errors.New("reader down")

	out := disp.Process(context.Background(), inbound("read https://example.com/post"))
	if out.Text == "" {
		t.Fatal("failed url analysis produced empty response")
	}
	if out.Text == "model says hi" {
		t.Error("model invoked with no extracted content")
	}
}

func TestProcessMeme(t *testing.T) {
	t.Parallel()

	disp, _ := newDispatcher(dispatch.Options{})
	out := disp.Process(context.Background(), inbound("!meme mondays"))
	if out.Text != "https://i.imgflip.com/abc.jpg" {
		t.Errorf("Text = %q, want meme url", out.Text)
	}
}

func TestProcessRejectedMessage(t *testing.T) {
	t.Parallel()

	disp, d := newDispatcher(dispatch.Options{})
	msg := inbound("[message removed]")
	msg.Rejected = true

	out := disp.Process(context.Background(), msg)
	if out.Text == "" {
		t.Fatal("rejected message produced empty response")
	}
	if out.Text == "model says hi" {
		t.Error("rejected content reached the model")
	}

	d.contexts.mu.Lock()
	defer d.contexts.mu.Unlock()
	for _, turn := range d.contexts.appends {
		if !turn.FromBot && turn.Text != "[message removed]" {
			t.Errorf("original rejected content leaked into context: %q", turn.Text)
		}
	}
}
