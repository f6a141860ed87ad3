// Package intent classifies normalized messages into a closed set of request
// kinds. Classification is a pure, synchronous decision over the message text
// and an already-materialized context snapshot; it never touches the network.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/stargazy/nifty/internal/contextstore"
	"github.com/stargazy/nifty/internal/core"
	"github.com/stargazy/nifty/internal/market"
)

// Kind is the classified purpose of one inbound message.
type Kind string

const (
	KindReset       Kind = "reset"
	KindSummary     Kind = "summary"
	KindStats       Kind = "stats"
	KindURLAnalysis Kind = "url_analysis"
	KindPrice       Kind = "price"
	KindFx          Kind = "fx"
	KindMeme        Kind = "meme"
	KindSearch      Kind = "search"
	KindChat        Kind = "chat"
)

// Intent carries the classification result plus the parameters extracted for
// the matched kind. Only the fields for the matched Kind are populated.
type Intent struct {
	Kind Kind

	// KindPrice
	Symbol string
	// KindPrice and KindFx
	Quote string

	// KindFx
	Base   string
	Amount float64

	// KindMeme
	Topic string

	// KindSearch
	Query string

	// KindURLAnalysis
	URLs        []string
	Instruction string

	// KindChat
	Text string
	// NovelTopic reports that the message raises a topic the conversation has
	// not discussed yet, a hint to consult web search before answering.
	NovelTopic bool
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// priceKeywords trigger price/FX classification when they co-occur with a
// recognized asset or currency token.
var priceKeywords = map[string]bool{
	"price": true, "worth": true, "convert": true, "rate": true,
}

// Options configures a Classifier.
type Options struct {
	CommandPrefix string
	ResetCommand  string
	SummaryCmd    string
	StatsCommand  string
	MemeCommand   string
	SearchCommand string
}

// Classifier maps messages to intents using an ordered first-match rule set.
type Classifier struct {
	opts Options
}

// NewClassifier creates a Classifier. Zero-value options fall back to the
// "!" prefix and the default command words.
func NewClassifier(opts Options) *Classifier {
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = "!"
	}
	if opts.ResetCommand == "" {
		opts.ResetCommand = "reset"
	}
	if opts.SummaryCmd == "" {
		opts.SummaryCmd = "summary"
	}
	if opts.StatsCommand == "" {
		opts.StatsCommand = "stats"
	}
	if opts.MemeCommand == "" {
		opts.MemeCommand = "meme"
	}
	if opts.SearchCommand == "" {
		opts.SearchCommand = "search"
	}
	return &Classifier{opts: opts}
}

// Classify resolves msg to an Intent. Rules apply in a fixed order with
// first match winning; anything unmatched is a chat turn.
func (c *Classifier) Classify(msg core.InboundMessage, snap core.ContextSnapshot) Intent {
	text := strings.TrimSpace(msg.Text)

	if cmd, rest, ok := c.command(text); ok {
		switch cmd {
		case c.opts.ResetCommand:
			return Intent{Kind: KindReset}
		case c.opts.SummaryCmd:
			return Intent{Kind: KindSummary}
		case c.opts.StatsCommand:
			return Intent{Kind: KindStats}
		case c.opts.MemeCommand:
			if rest != "" {
				return Intent{Kind: KindMeme, Topic: rest}
			}
		case c.opts.SearchCommand:
			if rest != "" {
				return Intent{Kind: KindSearch, Query: rest}
			}
		}
	}

	if urls := urlPattern.FindAllString(text, -1); len(urls) > 0 {
		instruction := strings.Join(strings.Fields(urlPattern.ReplaceAllString(text, "")), " ")
		return Intent{Kind: KindURLAnalysis, URLs: urls, Instruction: instruction}
	}

	if in, ok := c.classifyPrice(text); ok {
		return in
	}

	return Intent{
		Kind:       KindChat,
		Text:       msg.Text,
		NovelTopic: hasNovelTopic(text, snap),
	}
}

// command splits "!word rest" into its command word and remainder.
func (c *Classifier) command(text string) (cmd, rest string, ok bool) {
	if !strings.HasPrefix(text, c.opts.CommandPrefix) {
		return "", "", false
	}
	body := strings.TrimPrefix(text, c.opts.CommandPrefix)
	cmd, rest, _ = strings.Cut(body, " ")
	return strings.ToLower(cmd), strings.TrimSpace(rest), cmd != ""
}

// classifyPrice detects price and FX queries: a crypto or fiat token
// co-occurring with a price keyword, or a "<subject> to <currency>" pattern.
// Crypto resolution takes priority when a token matches both.
func (c *Classifier) classifyPrice(text string) (Intent, bool) {
	tokens := tokenize(text)

	var (
		hasKeyword bool
		symbol     string
		base       string
		quote      string
		amount     float64
	)

	for i, tok := range tokens {
		lower := strings.ToLower(tok)

		if priceKeywords[lower] {
			hasKeyword = true
			continue
		}

		// "to eur" / "in eur" names the target currency.
		if (lower == "to" || lower == "in") && i+1 < len(tokens) {
			next := tokens[i+1]
			if market.IsFiat(next) && quote == "" {
				quote = strings.ToUpper(next)
				continue
			}
		}

		if sym, ok := market.ResolveCrypto(tok); ok && symbol == "" {
			symbol = sym
			if i > 0 {
				if v, err := strconv.ParseFloat(tokens[i-1], 64); err == nil {
					amount = v
				}
			}
			continue
		}

		if market.IsFiat(tok) && symbol == "" && base == "" {
			base = strings.ToUpper(tok)
			if i > 0 {
				if v, err := strconv.ParseFloat(tokens[i-1], 64); err == nil {
					amount = v
				}
			}
		}
	}

	if symbol != "" && (hasKeyword || quote != "") {
		if quote == "" {
			quote = "USD"
		}
		return Intent{Kind: KindPrice, Symbol: symbol, Quote: quote}, true
	}

	// FX needs an explicit target; "usd price" alone is not a meaningful
	// conversion.
	if base != "" && quote != "" && base != quote {
		if amount == 0 {
			amount = 1
		}
		return Intent{Kind: KindFx, Base: base, Quote: quote, Amount: amount}, true
	}

	return Intent{}, false
}

// hasNovelTopic reports whether the text mentions a tracked topic the
// conversation has no accumulated score for yet.
func hasNovelTopic(text string, snap core.ContextSnapshot) bool {
	for topic := range contextstore.ExtractTopics(text) {
		if !snap.HasTopic(topic) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,!?;:()[]{}"'`)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
