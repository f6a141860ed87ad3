// Package normalizer converts raw platform events into canonical inbound
// messages. It owns trigger detection, the known-bot denylist, and content
// filtering; it never blocks and fails only on malformed input.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

// ErrKnownBot marks an event from a denylisted bot sender. The caller drops
// the event without it ever entering the pipeline.
var ErrKnownBot = errors.New("sender is a known bot")

// RejectionMarker replaces the text of a message caught by the content
// filter. The message still feeds history so the filter is visible in
// summaries, but its original content is gone.
const RejectionMarker = "[message removed]"

// Options configures a Normalizer.
type Options struct {
	// BotName triggers the pipeline when it appears as a token in a message.
	BotName string
	// CommandPrefix triggers the pipeline when a message starts with it.
	CommandPrefix string
	// KnownBots is the sender denylist, matched case-insensitively against
	// sender IDs and display names.
	KnownBots []string
	// FilteredWords are tokens that cause a message's content to be replaced
	// with RejectionMarker.
	FilteredWords []string
}

// Normalizer turns platform events into inbound messages.
type Normalizer struct {
	botName       string
	commandPrefix string
	knownBots     map[string]bool
	filteredWords map[string]bool
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = "!"
	}
	n := &Normalizer{
		botName:       strings.ToLower(opts.BotName),
		commandPrefix: opts.CommandPrefix,
		knownBots:     make(map[string]bool, len(opts.KnownBots)),
		filteredWords: make(map[string]bool, len(opts.FilteredWords)),
	}
	for _, b := range opts.KnownBots {
		n.knownBots[strings.ToLower(b)] = true
	}
	for _, w := range opts.FilteredWords {
		n.filteredWords[strings.ToLower(w)] = true
	}
	return n
}

// Normalize validates and converts ev. It returns ErrMalformedEvent for
// events missing required fields and ErrKnownBot for denylisted senders;
// both mean the event is dropped.
func (n *Normalizer) Normalize(ev core.RawEvent) (core.InboundMessage, error) {
	if ev.Platform == "" || ev.ChatID == "" || ev.SenderID == "" {
		return core.InboundMessage{}, fmt.Errorf("%w: missing platform, chat or sender id", core.ErrMalformedEvent)
	}
	if strings.TrimSpace(ev.Text) == "" && len(ev.Attachments) == 0 {
		return core.InboundMessage{}, fmt.Errorf("%w: empty message", core.ErrMalformedEvent)
	}

	if n.knownBots[strings.ToLower(ev.SenderID)] || n.knownBots[strings.ToLower(ev.SenderName)] {
		return core.InboundMessage{}, fmt.Errorf("%w: %s", ErrKnownBot, ev.SenderID)
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	msg := core.InboundMessage{
		ConversationID: core.ConversationID(ev.Platform, ev.ChatID),
		Platform:       ev.Platform,
		MessageID:      ev.MessageID,
		SenderID:       ev.SenderID,
		SenderName:     ev.SenderName,
		Text:           ev.Text,
		ReceivedAt:     ts,
		IsCommand:      strings.HasPrefix(strings.TrimSpace(ev.Text), n.commandPrefix),
		ReplyTo:        ev.ReplyToID,
		Attachments:    ev.Attachments,
	}

	msg.Triggered = msg.IsCommand ||
		n.mentionsBot(ev.Text) ||
		(n.botName != "" && strings.ToLower(ev.ReplyToSender) == n.botName)

	if n.containsFilteredWord(ev.Text) {
		msg.Text = RejectionMarker
		msg.Rejected = true
	}

	return msg, nil
}

// mentionsBot reports whether the bot's name appears as a standalone token.
func (n *Normalizer) mentionsBot(text string) bool {
	if n.botName == "" {
		return false
	}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:()[]{}\"'@")
		if f == n.botName {
			return true
		}
	}
	return false
}

func (n *Normalizer) containsFilteredWord(text string) bool {
	if len(n.filteredWords) == 0 {
		return false
	}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:()[]{}\"'")
		if n.filteredWords[f] {
			return true
		}
	}
	return false
}
