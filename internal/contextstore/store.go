// Package contextstore maintains bounded per-conversation memory: a rolling
// history window, recency-weighted topic scores, and participant tracking.
// State is sharded per conversation; no operation ever takes a global lock
// while holding a conversation lock.
package contextstore

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stargazy/nifty/internal/core"
)

// Options configures a Store.
type Options struct {
	// HistorySize bounds the rolling window; the oldest turn is evicted
	// when a conversation exceeds it.
	HistorySize int
	// TopicDecay is the multiplicative decay applied to non-matching topic
	// scores on each append.
	TopicDecay float64
	// TopTopics is how many topics a Summary reports.
	TopTopics int
	// IdleExpiry is how long a conversation may sit untouched before it is
	// lazily discarded on next access (and eagerly during Cleanup).
	IdleExpiry time.Duration
}

// Store owns all conversation contexts. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*conversation

	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

type conversation struct {
	mu             sync.Mutex
	history        []core.Turn
	topics         map[string]float64
	participants   map[string]time.Time
	lastResetAt    time.Time
	lastActivityAt time.Time
	sinceReset     int
}

// New creates a Store. Zero or negative option fields fall back to safe
// defaults so a partially-populated config cannot produce an unbounded store.
func New(opts Options, logger *slog.Logger) *Store {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}
	if opts.TopicDecay <= 0 || opts.TopicDecay >= 1 {
		opts.TopicDecay = 0.95
	}
	if opts.TopTopics <= 0 {
		opts.TopTopics = 5
	}
	if opts.IdleExpiry <= 0 {
		opts.IdleExpiry = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		convs:  make(map[string]*conversation),
		opts:   opts,
		logger: logger.With("component", "contextstore"),
		now:    time.Now,
	}
}

// get returns the conversation for id, creating it if absent and discarding
// expired state first. The returned conversation is locked; the caller must
// unlock it.
func (s *Store) get(id string) *conversation {
	s.mu.RLock()
	c := s.convs[id]
	s.mu.RUnlock()

	if c == nil {
		s.mu.Lock()
		c = s.convs[id]
		if c == nil {
			c = newConversation(s.now())
			s.convs[id] = c
		}
		s.mu.Unlock()
	}

	c.mu.Lock()
	if !c.lastActivityAt.IsZero() && s.now().Sub(c.lastActivityAt) > s.opts.IdleExpiry {
		// Lazy expiry: recreate in place on first message after the idle
		// window, rather than running an eviction timer.
		c.resetState(s.now())
	}
	return c
}

func newConversation(now time.Time) *conversation {
	return &conversation{
		topics:         make(map[string]float64),
		participants:   make(map[string]time.Time),
		lastActivityAt: now,
	}
}

func (c *conversation) resetState(now time.Time) {
	c.history = c.history[:0]
	c.topics = make(map[string]float64)
	c.participants = make(map[string]time.Time)
	c.sinceReset = 0
	c.lastActivityAt = now
}

// Append pushes a turn into the conversation's history, evicting the oldest
// entry beyond the window bound, and updates topic scores: topics mentioned
// by the turn gain a point while all others decay multiplicatively.
func (s *Store) Append(id string, turn core.Turn) error {
	c := s.get(id)
	defer c.mu.Unlock()

	c.history = append(c.history, turn)
	if len(c.history) > s.opts.HistorySize {
		c.history = append(c.history[:0], c.history[len(c.history)-s.opts.HistorySize:]...)
	}

	matched := ExtractTopics(turn.Text)
	for topic := range c.topics {
		if _, ok := matched[topic]; !ok {
			c.topics[topic] *= s.opts.TopicDecay
		}
	}
	for topic := range matched {
		c.topics[topic]++
	}

	if !turn.FromBot {
		c.participants[turn.Sender] = turn.At
	}
	c.sinceReset++
	c.lastActivityAt = s.now()
	return nil
}

// Reset clears history and topics and stamps the reset time. Resetting an
// already-empty context is a no-op success.
func (s *Store) Reset(id string) error {
	c := s.get(id)
	defer c.mu.Unlock()

	now := s.now()
	c.resetState(now)
	c.lastResetAt = now
	s.logger.Debug("context reset", "conversation_id", id)
	return nil
}

// Summarize produces a read-only snapshot of the conversation's recent
// activity: top topics by score, participants, message count since the last
// reset, and the window's timestamp bounds.
func (s *Store) Summarize(id string) (core.Summary, error) {
	c := s.get(id)
	defer c.mu.Unlock()

	sum := core.Summary{
		MessageCount: c.sinceReset,
		LastResetAt:  c.lastResetAt,
		Participants: make([]string, 0, len(c.participants)),
	}
	for p := range c.participants {
		sum.Participants = append(sum.Participants, p)
	}
	sort.Strings(sum.Participants)

	sum.TopTopics = topTopics(c.topics, s.opts.TopTopics)

	if len(c.history) > 0 {
		sum.Oldest = c.history[0].At
		sum.Newest = c.history[len(c.history)-1].At
	}
	return sum, nil
}

// Snapshot returns a read-only copy of the conversation's context for use by
// the intent router and prompt assembly.
func (s *Store) Snapshot(id string) (core.ContextSnapshot, error) {
	c := s.get(id)
	defer c.mu.Unlock()

	snap := core.ContextSnapshot{
		ConversationID: id,
		History:        make([]core.Turn, len(c.history)),
		Topics:         make(map[string]float64, len(c.topics)),
		Participants:   make([]string, 0, len(c.participants)),
		LastResetAt:    c.lastResetAt,
	}
	copy(snap.History, c.history)
	for k, v := range c.topics {
		snap.Topics[k] = v
	}
	for p := range c.participants {
		snap.Participants = append(snap.Participants, p)
	}
	sort.Strings(snap.Participants)
	return snap, nil
}

// Cleanup halves all topic scores, prunes those that have decayed below the
// noise floor, and drops conversations idle past the expiry window. Run
// periodically by the maintenance scheduler.
func (s *Store) Cleanup() {
	now := s.now()

	s.mu.Lock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var expired int
	for _, id := range ids {
		s.mu.RLock()
		c := s.convs[id]
		s.mu.RUnlock()
		if c == nil {
			continue
		}

		c.mu.Lock()
		idle := now.Sub(c.lastActivityAt) > s.opts.IdleExpiry
		for topic, score := range c.topics {
			score *= 0.5
			if score < 0.1 {
				delete(c.topics, topic)
			} else {
				c.topics[topic] = score
			}
		}
		c.mu.Unlock()

		if idle {
			s.mu.Lock()
			delete(s.convs, id)
			s.mu.Unlock()
			expired++
		}
	}

	s.logger.Info("context cleanup completed", "conversations", len(ids), "expired", expired)
}

func topTopics(topics map[string]float64, k int) []core.TopicScore {
	out := make([]core.TopicScore, 0, len(topics))
	for topic, score := range topics {
		out = append(out, core.TopicScore{Topic: topic, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
