// Package core defines the canonical message types and error taxonomy shared
// by every component of the pipeline. Platform adapters translate their SDK
// events into these types at the edge; nothing downstream of the normalizer
// ever sees a platform-specific shape.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a messaging platform adapter.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
	PlatformSlack    Platform = "slack"
)

// ConversationID builds the stable composite key for one room/chat/DM thread.
func ConversationID(platform Platform, chatID string) string {
	return string(platform) + ":" + chatID
}

// SplitConversationID is the inverse of ConversationID.
func SplitConversationID(id string) (Platform, string, error) {
	platform, chatID, ok := strings.Cut(id, ":")
	if !ok || platform == "" || chatID == "" {
		return "", "", fmt.Errorf("invalid conversation id %q", id)
	}
	return Platform(platform), chatID, nil
}

// RawEvent is what a platform adapter hands to the normalizer: the common
// denominator of an inbound platform event, before any filtering or trigger
// detection has been applied.
type RawEvent struct {
	Platform      Platform
	ChatID        string
	MessageID     string
	SenderID      string
	SenderName    string
	Text          string
	ReplyToID     string
	ReplyToSender string
	Timestamp     time.Time
	Attachments   []string
}

// InboundMessage is the canonical representation of one inbound message.
// Immutable after creation; owned by the conversation scheduler until a
// worker dequeues it.
type InboundMessage struct {
	ConversationID string
	Platform       Platform
	MessageID      string
	SenderID       string
	SenderName     string
	Text           string
	ReceivedAt     time.Time
	IsCommand      bool
	ReplyTo        string
	Attachments    []string

	// Triggered reports whether the message addresses the bot (name mention,
	// reply to a bot message, or command prefix). Untriggered messages still
	// feed conversational context but never enter the scheduler.
	Triggered bool

	// Rejected is set when the content filter replaced the text with a
	// rejection marker instead of processing it.
	Rejected bool
}

// FormatHint tells the delivering adapter how to render an outbound message.
type FormatHint string

// FormatCodeBlock asks the adapter to render the text preformatted.
const FormatCodeBlock FormatHint = "code-block"

// OutboundMessage is the single response produced for one processed inbound
// message. Consumed exactly once by the originating adapter.
type OutboundMessage struct {
	ID             string
	ConversationID string
	Text           string
	Hints          []FormatHint
	InReplyTo      string
}

// Turn is one sender+text+timestamp unit in a conversation's history.
type Turn struct {
	Sender     string
	SenderName string
	Text       string
	At         time.Time
	FromBot    bool
}

// TopicScore pairs an extracted topic with its recency-weighted score.
type TopicScore struct {
	Topic string
	Score float64
}

// Summary is a read-only snapshot of one conversation's recent activity.
type Summary struct {
	TopTopics    []TopicScore
	Participants []string
	MessageCount int
	Oldest       time.Time
	Newest       time.Time
	LastResetAt  time.Time
}

// ContextSnapshot is a read-only copy of a conversation's context, used by
// the intent router and the dispatcher's prompt assembly.
type ContextSnapshot struct {
	ConversationID string
	History        []Turn
	Topics         map[string]float64
	Participants   []string
	LastResetAt    time.Time
}

// HasTopic reports whether the conversation has accumulated any score for
// the given topic.
func (s ContextSnapshot) HasTopic(topic string) bool {
	return s.Topics[topic] > 0
}
