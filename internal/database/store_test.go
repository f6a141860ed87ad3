package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stargazy/nifty/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "nifty.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func save(t *testing.T, s database.Store, conv, content string, ts time.Time) database.Message {
	t.Helper()

	msg := database.Message{
		ConversationID: conv,
		Platform:       "telegram",
		SenderID:       "u1",
		SenderName:     "Alice",
		Content:        content,
		Timestamp:      ts,
	}
	if err := s.SaveMessage(context.Background(), &msg); err != nil {
		t.Fatalf("SaveMessage(%q): %v", content, err)
	}
	return msg
}

func TestPing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestSaveMessageAssignsID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	msg := save(t, s, "telegram:1", "hello", time.Now().UTC())
	if msg.ID == "" {
		t.Error("SaveMessage left ID empty")
	}
}

func TestSaveMessageRejectsIncomplete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	err := s.SaveMessage(context.Background(), &database.Message{Content: "no conversation"})
	if err == nil {
		t.Error("SaveMessage accepted a message without conversation and sender")
	}
}

func TestRecentMessagesNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	save(t, s, "telegram:1", "first", base)
	save(t, s, "telegram:1", "second", base.Add(time.Minute))
	save(t, s, "telegram:1", "third", base.Add(2*time.Minute))
	save(t, s, "discord:9", "other room", base.Add(3*time.Minute))

	msgs, err := s.RecentMessages(context.Background(), "telegram:1", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "third" || msgs[1].Content != "second" {
		t.Errorf("order = [%q, %q], want newest first", msgs[0].Content, msgs[1].Content)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	save(t, s, "telegram:1", "first", base)
	save(t, s, "telegram:1", "second", base.Add(time.Hour))

	st, err := s.Stats(context.Background(), "telegram:1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", st.MessageCount)
	}
	if st.Oldest.UTC().Unix() != base.Unix() {
		t.Errorf("Oldest = %v, want %v", st.Oldest, base)
	}
	if st.Newest.UTC().Unix() != base.Add(time.Hour).Unix() {
		t.Errorf("Newest = %v, want %v", st.Newest, base.Add(time.Hour))
	}
}

func TestStatsEmptyConversation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	st, err := s.Stats(context.Background(), "telegram:nobody")
	if err != nil {
		t.Fatalf("Stats on empty conversation: %v", err)
	}
	if st.MessageCount != 0 {
		t.Errorf("MessageCount = %d, want 0", st.MessageCount)
	}
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	save(t, s, "telegram:1", "old", base)
	save(t, s, "telegram:1", "older", base.Add(-time.Hour))
	save(t, s, "telegram:1", "recent", base.Add(24*time.Hour))

	n, err := s.PruneBefore(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}

	msgs, err := s.RecentMessages(context.Background(), "telegram:1", 10)
	if err != nil {
		t.Fatalf("RecentMessages after prune: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "recent" {
		t.Errorf("survivors = %v, want only the recent message", msgs)
	}
}
