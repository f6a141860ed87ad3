package database

import "time"

// Message is one archived inbound or outbound message. The pipeline keeps
// its working context in memory; this table exists for audit, stats, and
// surviving restarts.
type Message struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Platform       string    `db:"platform"`
	SenderID       string    `db:"sender_id"`
	SenderName     string    `db:"sender_name"`
	Content        string    `db:"content"`
	FromBot        bool      `db:"from_bot"`
	Timestamp      time.Time `db:"timestamp"`
	CreatedAt      time.Time `db:"created_at"`
}

// ConversationStats aggregates archived activity for one conversation.
type ConversationStats struct {
	ConversationID string    `db:"conversation_id"`
	MessageCount   int       `db:"message_count"`
	Oldest         time.Time `db:"oldest"`
	Newest         time.Time `db:"newest"`
}
