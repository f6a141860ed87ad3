// Package conversation provides the per-conversation scheduler: a bounded
// FIFO queue per conversation, one drainer per conversation at a time, and a
// global worker limit. It is the component that makes shared state safe per
// conversation while unrelated conversations proceed in parallel.
package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stargazy/nifty/internal/core"
)

// Outcome is the result of an enqueue attempt.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Dropped  Outcome = "dropped"
)

// ProcessFunc handles one dequeued message. The context carries the
// per-message deadline; implementations must respect it so a stuck downstream
// call cannot stall the conversation's queue.
type ProcessFunc func(ctx context.Context, msg core.InboundMessage)

// Options configures a Scheduler.
type Options struct {
	// MaxQueueSize bounds each conversation's pending queue. At capacity the
	// newest message is dropped.
	MaxQueueSize int
	// MaxWorkers bounds concurrent message processing across all
	// conversations.
	MaxWorkers int
	// MessageTimeout is the deadline applied to processing one message.
	MessageTimeout time.Duration
}

type queue struct {
	items    []core.InboundMessage
	draining bool
}

// Scheduler sequences message processing: strict FIFO within a conversation,
// full parallelism across conversations up to the global worker limit.
type Scheduler struct {
	mu     sync.Mutex
	queues map[string]*queue
	closed bool

	opts    Options
	process ProcessFunc
	sem     *semaphore.Weighted
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler that hands dequeued messages to process.
func NewScheduler(opts Options, process ProcessFunc, logger *slog.Logger) *Scheduler {
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = 5
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		queues:  make(map[string]*queue),
		opts:    opts,
		process: process,
		sem:     semaphore.NewWeighted(int64(opts.MaxWorkers)),
		logger:  logger.With("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue appends msg to its conversation's queue and returns whether it was
// accepted. At capacity the new message is dropped (drop-newest) so a burst
// in one busy room cannot grow memory without bound or starve other rooms.
func (s *Scheduler) Enqueue(msg core.InboundMessage) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Dropped
	}

	q, ok := s.queues[msg.ConversationID]
	if !ok {
		q = &queue{}
		s.queues[msg.ConversationID] = q
	}

	if len(q.items) >= s.opts.MaxQueueSize {
		s.logger.Warn("queue full, dropping message",
			"conversation_id", msg.ConversationID, "message_id", msg.MessageID)
		return Dropped
	}

	q.items = append(q.items, msg)
	if !q.draining {
		q.draining = true
		s.wg.Add(1)
		go s.drain(msg.ConversationID, q)
	}
	return Accepted
}

// QueueLen reports the number of pending messages for a conversation.
func (s *Scheduler) QueueLen(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[conversationID]; ok {
		return len(q.items)
	}
	return 0
}

// Run blocks until ctx is cancelled, then stops accepting messages and waits
// for in-flight workers to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	<-ctx.Done()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// drain is the single active worker for one conversation. It pops messages
// in FIFO order until the queue is empty, then exits; the next enqueue
// starts a fresh drainer.
func (s *Scheduler) drain(conversationID string, q *queue) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(q.items) == 0 || s.closed {
			q.draining = false
			s.mu.Unlock()
			return
		}
		msg := q.items[0]
		q.items = q.items[1:]
		s.mu.Unlock()

		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.mu.Lock()
			q.draining = false
			s.mu.Unlock()
			return
		}
		s.handle(msg)
		s.sem.Release(1)
	}
}

func (s *Scheduler) handle(msg core.InboundMessage) {
	ctx := s.ctx
	if s.opts.MessageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.MessageTimeout)
		defer cancel()
	}
	s.process(ctx, msg)
}
