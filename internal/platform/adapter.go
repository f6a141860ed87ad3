// Package platform holds the messaging platform adapters. Each adapter
// translates its SDK's events into raw events at the edge and delivers
// outbound messages back; everything else in the pipeline is
// platform-agnostic.
package platform

import (
	"context"
	"unicode/utf8"

	"github.com/stargazy/nifty/internal/core"
)

// Sink receives raw inbound events from an adapter. Fire and forget: the
// adapter gets nothing back synchronously, responses arrive later through
// Send.
type Sink func(ev core.RawEvent)

// Adapter is one platform connection.
type Adapter interface {
	// Name identifies the platform.
	Name() core.Platform

	// Run connects and listens for events until ctx is cancelled, pushing
	// each inbound event into sink.
	Run(ctx context.Context, sink Sink) error

	// Send delivers one outbound message to its conversation.
	Send(ctx context.Context, msg core.OutboundMessage) error
}

// renderOutbound applies format hints to the message text before the
// platform-specific splitting and delivery.
func renderOutbound(msg core.OutboundMessage) string {
	text := msg.Text
	for _, h := range msg.Hints {
		if h == core.FormatCodeBlock {
			text = "```\n" + text + "\n```"
		}
	}
	return text
}

// splitMessage splits text into chunks of at most maxLen bytes, preferring
// newline boundaries and never cutting inside a multi-byte rune.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cut := maxLen
		if idx := lastNewline(text[:maxLen]); idx > maxLen/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				// Invalid UTF-8; fall back to the byte cut.
				cut = maxLen
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}
