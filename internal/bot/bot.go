// Package bot wires the pipeline together and manages component lifecycle:
// platform adapters feed the normalizer, triggered messages go through the
// conversation scheduler to the dispatcher, and responses flow back to the
// adapter that owns the conversation.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stargazy/nifty/internal/contextstore"
	"github.com/stargazy/nifty/internal/conversation"
	"github.com/stargazy/nifty/internal/core"
	"github.com/stargazy/nifty/internal/database"
	"github.com/stargazy/nifty/internal/dispatch"
	"github.com/stargazy/nifty/internal/metrics"
	"github.com/stargazy/nifty/internal/normalizer"
	"github.com/stargazy/nifty/internal/platform"
)

// seedLimit bounds how many archived messages warm a conversation's context
// after a restart.
const seedLimit = 50

// Bot is the application orchestrator.
type Bot struct {
	logger     *slog.Logger
	norm       *normalizer.Normalizer
	contexts   *contextstore.Store
	scheduler  *conversation.Scheduler
	dispatcher *dispatch.Dispatcher
	store      database.Store
	adapters   map[core.Platform]platform.Adapter
	cron       *Cron

	mu     sync.Mutex
	warmed map[string]bool

	metricsAddr string
}

// New creates the orchestrator over its already-constructed components.
func New(
	logger *slog.Logger,
	norm *normalizer.Normalizer,
	contexts *contextstore.Store,
	dispatcher *dispatch.Dispatcher,
	store database.Store,
	adapters []platform.Adapter,
	cron *Cron,
	schedOpts conversation.Options,
	metricsAddr string,
) *Bot {
	b := &Bot{
		logger:      logger.With("component", "bot"),
		norm:        norm,
		contexts:    contexts,
		dispatcher:  dispatcher,
		store:       store,
		adapters:    make(map[core.Platform]platform.Adapter, len(adapters)),
		cron:        cron,
		warmed:      make(map[string]bool),
		metricsAddr: metricsAddr,
	}
	for _, a := range adapters {
		b.adapters[a.Name()] = a
	}
	b.scheduler = conversation.NewScheduler(schedOpts, b.process, logger)
	return b
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("starting", "adapters", len(b.adapters))

	g, gCtx := errgroup.WithContext(ctx)

	for _, adapter := range b.adapters {
		g.Go(func() error {
			if err := adapter.Run(gCtx, b.intake); err != nil {
				return fmt.Errorf("%s adapter: %w", adapter.Name(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return b.scheduler.Run(gCtx)
	})

	if b.cron != nil {
		g.Go(func() error {
			if err := b.cron.Start(); err != nil {
				return fmt.Errorf("failed to start cron: %w", err)
			}
			<-gCtx.Done()
			return b.cron.Stop()
		})
	}

	if b.metricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gCtx, b.metricsAddr)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("stopped with error", "error", err)
		return err
	}
	b.logger.Info("stopped")
	return nil
}

// intake handles one raw platform event: normalize, archive, feed context,
// and enqueue if the message addresses the bot. Untriggered messages still
// shape the conversation's history and topics but never produce a response.
func (b *Bot) intake(ev core.RawEvent) {
	msg, err := b.norm.Normalize(ev)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrMalformedEvent):
			metrics.MessagesDropped.WithLabelValues("malformed").Inc()
			b.logger.Debug("dropping malformed event", "platform", ev.Platform, "error", err)
		case errors.Is(err, normalizer.ErrKnownBot):
			metrics.MessagesDropped.WithLabelValues("known_bot").Inc()
		default:
			b.logger.Warn("normalize failed", "platform", ev.Platform, "error", err)
		}
		return
	}

	b.warm(msg.ConversationID)
	b.archive(msg)

	if !msg.Triggered {
		if err := b.contexts.Append(msg.ConversationID, core.Turn{
			Sender: msg.SenderID, SenderName: msg.SenderName, Text: msg.Text, At: msg.ReceivedAt,
		}); err != nil {
			b.logger.Warn("context append failed", "conversation_id", msg.ConversationID, "error", err)
		}
		return
	}

	if b.scheduler.Enqueue(msg) == conversation.Dropped {
		metrics.MessagesDropped.WithLabelValues("queue_overflow").Inc()
		b.logger.Warn("message dropped",
			"conversation_id", msg.ConversationID, "message_id", msg.MessageID,
			"error", core.ErrQueueOverflow)
	}
}

// process handles one dequeued message and delivers the response.
func (b *Bot) process(ctx context.Context, msg core.InboundMessage) {
	out := b.dispatcher.Process(ctx, msg)

	b.archiveOutbound(out, msg.Platform)

	adapter, ok := b.adapters[msg.Platform]
	if !ok {
		b.logger.Error("no adapter for platform", "platform", msg.Platform)
		return
	}
	if err := adapter.Send(ctx, out); err != nil {
		b.logger.Error("send failed",
			"platform", msg.Platform, "conversation_id", out.ConversationID, "error", err)
	}
}

// warm seeds a conversation's context from the archive the first time the
// conversation is seen after startup, so history survives restarts.
func (b *Bot) warm(conversationID string) {
	if b.store == nil {
		return
	}

	b.mu.Lock()
	if b.warmed[conversationID] {
		b.mu.Unlock()
		return
	}
	b.warmed[conversationID] = true
	b.mu.Unlock()

	msgs, err := b.store.RecentMessages(context.Background(), conversationID, seedLimit)
	if err != nil {
		b.logger.Warn("context seed failed", "conversation_id", conversationID, "error", err)
		return
	}

	// Newest first from the archive; append oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if err := b.contexts.Append(conversationID, core.Turn{
			Sender: m.SenderID, SenderName: m.SenderName, Text: m.Content,
			At: m.Timestamp, FromBot: m.FromBot,
		}); err != nil {
			b.logger.Warn("context seed append failed",
				"conversation_id", conversationID, "error", err)
			return
		}
	}
	if len(msgs) > 0 {
		b.logger.Debug("context seeded from archive",
			"conversation_id", conversationID, "messages", len(msgs))
	}
}

func (b *Bot) archive(msg core.InboundMessage) {
	if b.store == nil {
		return
	}
	err := b.store.SaveMessage(context.Background(), &database.Message{
		ConversationID: msg.ConversationID,
		Platform:       string(msg.Platform),
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Content:        msg.Text,
		Timestamp:      msg.ReceivedAt,
	})
	if err != nil {
		b.logger.Warn("failed to archive message", "conversation_id", msg.ConversationID, "error", err)
	}
}

func (b *Bot) archiveOutbound(out core.OutboundMessage, p core.Platform) {
	if b.store == nil {
		return
	}
	err := b.store.SaveMessage(context.Background(), &database.Message{
		ID:             out.ID,
		ConversationID: out.ConversationID,
		Platform:       string(p),
		SenderID:       "nifty",
		SenderName:     "nifty",
		Content:        out.Text,
		FromBot:        true,
	})
	if err != nil {
		b.logger.Warn("failed to archive response", "conversation_id", out.ConversationID, "error", err)
	}
}
