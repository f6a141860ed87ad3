package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"github.com/stargazy/nifty/internal/core"
)

// Store is the data access interface for the message archive.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts a new message record. A missing ID is assigned.
	SaveMessage(ctx context.Context, message *Message) error

	// RecentMessages retrieves the most recent limit messages for one
	// conversation, newest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// Stats aggregates archived activity for one conversation.
	Stats(ctx context.Context, conversationID string) (ConversationStats, error)

	// PruneBefore deletes messages older than cutoff and returns how many
	// rows were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Maintenance reclaims space after pruning.
	Maintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ConversationID == "" || message.SenderID == "" {
		return fmt.Errorf("message must have a conversation and sender id")
	}
	if message.ID == "" {
		message.ID = ulid.Make().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	message.CreatedAt = time.Now().UTC()

	const q = `
		INSERT INTO messages (id, conversation_id, platform, sender_id, sender_name, content, from_bot, timestamp, created_at)
		VALUES (:id, :conversation_id, :platform, :sender_id, :sender_name, :content, :from_bot, :timestamp, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, message); err != nil {
		s.logger.ErrorContext(ctx, "failed to save message",
			"conversation_id", message.ConversationID, "error", err)
		return fmt.Errorf("%w: save message: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sqlxStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	const q = `
		SELECT id, conversation_id, platform, sender_id, sender_name, content, from_bot, timestamp, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`

	var messages []Message
	if err := s.db.SelectContext(ctx, &messages, q, conversationID, limit); err != nil {
		return nil, fmt.Errorf("%w: recent messages: %v", core.ErrStoreUnavailable, err)
	}
	return messages, nil
}

func (s *sqlxStore) Stats(ctx context.Context, conversationID string) (ConversationStats, error) {
	stats := ConversationStats{ConversationID: conversationID}

	const qCount = `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`
	if err := s.db.GetContext(ctx, &stats.MessageCount, qCount, conversationID); err != nil {
		return ConversationStats{}, fmt.Errorf("%w: stats: %v", core.ErrStoreUnavailable, err)
	}
	if stats.MessageCount == 0 {
		return stats, nil
	}

	// Plain column selects instead of MIN/MAX aggregates: the driver only
	// maps a value back to time.Time when the column's declared type is
	// visible.
	const qOldest = `SELECT timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC LIMIT 1`
	if err := s.db.GetContext(ctx, &stats.Oldest, qOldest, conversationID); err != nil {
		return ConversationStats{}, fmt.Errorf("%w: stats: %v", core.ErrStoreUnavailable, err)
	}
	const qNewest = `SELECT timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &stats.Newest, qNewest, conversationID); err != nil {
		return ConversationStats{}, fmt.Errorf("%w: stats: %v", core.ErrStoreUnavailable, err)
	}
	return stats, nil
}

func (s *sqlxStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", core.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *sqlxStore) Maintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("%w: vacuum: %v", core.ErrStoreUnavailable, err)
	}
	s.logger.InfoContext(ctx, "database maintenance completed")
	return nil
}
