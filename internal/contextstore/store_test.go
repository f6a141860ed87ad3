package contextstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

func turn(sender, text string, at time.Time) core.Turn {
	return core.Turn{Sender: sender, SenderName: sender, Text: text, At: at}
}

func TestAppendBoundsHistory(t *testing.T) {
	t.Parallel()

	s := New(Options{HistorySize: 5}, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		err := s.Append("telegram:1", turn("alice", fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}

		snap, err := s.Snapshot("telegram:1")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if len(snap.History) > 5 {
			t.Fatalf("history length %d exceeds bound 5 after %d appends", len(snap.History), i+1)
		}
	}

	snap, _ := s.Snapshot("telegram:1")
	if len(snap.History) != 5 {
		t.Fatalf("expected full window of 5, got %d", len(snap.History))
	}
	if got := snap.History[0].Text; got != "message 15" {
		t.Errorf("oldest retained turn = %q, want %q (FIFO eviction)", got, "message 15")
	}
	if got := snap.History[4].Text; got != "message 19" {
		t.Errorf("newest turn = %q, want %q", got, "message 19")
	}
}

func TestResetThenSummarizeIsEmpty(t *testing.T) {
	t.Parallel()

	s := New(Options{}, nil)
	now := time.Now()

	s.Append("discord:general", turn("bob", "python and django question?", now))
	s.Append("discord:general", turn("carol", "try flask instead", now.Add(time.Second)))

	if err := s.Reset("discord:general"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	sum, err := s.Summarize("discord:general")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(sum.TopTopics) != 0 {
		t.Errorf("topics after reset = %v, want empty", sum.TopTopics)
	}
	if sum.MessageCount != 0 {
		t.Errorf("message count after reset = %d, want 0", sum.MessageCount)
	}
	if sum.LastResetAt.IsZero() {
		t.Error("LastResetAt not stamped by reset")
	}

	// Resetting an already-empty context is a no-op success.
	if err := s.Reset("discord:general"); err != nil {
		t.Errorf("second Reset: %v", err)
	}
}

func TestTopicScoresDecay(t *testing.T) {
	t.Parallel()

	s := New(Options{TopicDecay: 0.5}, nil)
	now := time.Now()

	s.Append("slack:C1", turn("dana", "anyone good with python?", now))
	snap, _ := s.Snapshot("slack:C1")
	if snap.Topics["python"] != 1.0 {
		t.Fatalf("python score = %v, want 1.0", snap.Topics["python"])
	}

	s.Append("slack:C1", turn("erin", "what about the linux kernel", now.Add(time.Second)))
	snap, _ = s.Snapshot("slack:C1")
	if snap.Topics["python"] != 0.5 {
		t.Errorf("python score after unrelated append = %v, want 0.5", snap.Topics["python"])
	}
	if snap.Topics["linux"] != 1.0 {
		t.Errorf("linux score = %v, want 1.0", snap.Topics["linux"])
	}
}

func TestSummarizeReportsWindow(t *testing.T) {
	t.Parallel()

	s := New(Options{TopTopics: 2}, nil)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s.Append("telegram:9", turn("alice", "bitcoin is pumping", base))
	s.Append("telegram:9", turn("bob", "monero is better for privacy", base.Add(time.Minute)))
	s.Append("telegram:9", turn("alice", "what about ethereum defi", base.Add(2*time.Minute)))

	sum, err := s.Summarize("telegram:9")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", sum.MessageCount)
	}
	if len(sum.Participants) != 2 {
		t.Errorf("participants = %v, want alice and bob", sum.Participants)
	}
	if !sum.Oldest.Equal(base) || !sum.Newest.Equal(base.Add(2*time.Minute)) {
		t.Errorf("window bounds = %v..%v, want %v..%v", sum.Oldest, sum.Newest, base, base.Add(2*time.Minute))
	}
	if len(sum.TopTopics) == 0 || sum.TopTopics[0].Topic != "crypto" {
		t.Errorf("top topics = %v, want crypto first", sum.TopTopics)
	}
	if len(sum.TopTopics) > 2 {
		t.Errorf("top topics length = %d, want at most 2", len(sum.TopTopics))
	}
}

func TestSnapshotIsIsolatedCopy(t *testing.T) {
	t.Parallel()

	s := New(Options{}, nil)
	s.Append("telegram:2", turn("alice", "talking about python", time.Now()))

	snap, _ := s.Snapshot("telegram:2")
	snap.Topics["python"] = 99
	snap.History[0].Text = "mutated"

	again, _ := s.Snapshot("telegram:2")
	if again.Topics["python"] == 99 {
		t.Error("mutating a snapshot's topics leaked into the store")
	}
	if again.History[0].Text == "mutated" {
		t.Error("mutating a snapshot's history leaked into the store")
	}
}

func TestIdleConversationExpiresLazily(t *testing.T) {
	t.Parallel()

	s := New(Options{IdleExpiry: time.Hour}, nil)
	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	s.Append("telegram:3", turn("alice", "hello there", current))

	// Two hours later the context is expired and recreated on next access.
	current = current.Add(2 * time.Hour)
	snap, _ := s.Snapshot("telegram:3")
	if len(snap.History) != 0 {
		t.Errorf("expired conversation retained %d turns, want 0", len(snap.History))
	}
}

func TestCleanupPrunesAndExpires(t *testing.T) {
	t.Parallel()

	s := New(Options{IdleExpiry: time.Hour, TopicDecay: 0.95}, nil)
	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	s.Append("telegram:4", turn("alice", "python question", current))
	s.Append("telegram:5", turn("bob", "linux question", current))

	// Drive the python score under the 0.1 pruning floor: one halving of a
	// heavily-decayed score.
	c := s.get("telegram:4")
	c.topics["python"] = 0.15
	c.mu.Unlock()

	s.Cleanup()

	snap, _ := s.Snapshot("telegram:4")
	if _, ok := snap.Topics["python"]; ok {
		t.Errorf("python score %v survived cleanup, want pruned", snap.Topics["python"])
	}

	// Idle conversations are dropped entirely.
	current = current.Add(2 * time.Hour)
	s.Cleanup()
	s.mu.RLock()
	_, exists := s.convs["telegram:5"]
	s.mu.RUnlock()
	if exists {
		t.Error("idle conversation survived cleanup")
	}
}

func TestExtractTopicsTokenBoundaries(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
		want []string
	}{
		{name: "simple match", text: "I love Python!", want: []string{"python"}},
		{name: "no substring match", text: "the pipeline is broken", want: nil},
		{name: "multiple topics", text: "running django on ubuntu", want: []string{"linux", "python"}},
		{name: "punctuation stripped", text: "bitcoin, anyone?", want: []string{"crypto"}},
		{name: "empty", text: "", want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractTopics(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("ExtractTopics(%q) = %v, want %v", tc.text, got, tc.want)
			}
			for _, w := range tc.want {
				if _, ok := got[w]; !ok {
					t.Errorf("ExtractTopics(%q) missing %q", tc.text, w)
				}
			}
		})
	}
}
