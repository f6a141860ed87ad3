package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/stargazy/nifty/internal/core"
)

const telegramMaxMsgLen = 4096

// Telegram is the Telegram adapter, built on long polling.
type Telegram struct {
	token  string
	logger *slog.Logger
	bot    *tgbot.Bot
}

// NewTelegram creates the Telegram adapter.
func NewTelegram(token string, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		token:  token,
		logger: logger.With("component", "telegram"),
	}
}

func (t *Telegram) Name() core.Platform { return core.PlatformTelegram }

// Run connects to the Telegram API and polls for updates until ctx is
// cancelled.
func (t *Telegram) Run(ctx context.Context, sink Sink) error {
	handler := func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil || msg.From == nil {
			return
		}

		text := msg.Text
		if text == "" {
			text = msg.Caption
		}

		ev := core.RawEvent{
			Platform:   core.PlatformTelegram,
			ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
			MessageID:  strconv.Itoa(msg.ID),
			SenderID:   strconv.FormatInt(msg.From.ID, 10),
			SenderName: senderName(msg.From),
			Text:       text,
			Timestamp:  time.Unix(int64(msg.Date), 0),
		}
		if reply := msg.ReplyToMessage; reply != nil {
			ev.ReplyToID = strconv.Itoa(reply.ID)
			if reply.From != nil {
				ev.ReplyToSender = senderName(reply.From)
			}
		}
		for _, photo := range msg.Photo {
			ev.Attachments = append(ev.Attachments, photo.FileID)
		}

		sink(ev)
	}

	b, err := tgbot.New(t.token, tgbot.WithDefaultHandler(handler))
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t.bot = b

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	t.logger.Info("telegram connected", "bot_id", me.ID, "username", me.Username)

	b.Start(ctx)
	return nil
}

// Send delivers one outbound message, splitting it to fit Telegram's length
// limit.
func (t *Telegram) Send(ctx context.Context, msg core.OutboundMessage) error {
	_, chatIDStr, err := core.SplitConversationID(msg.ConversationID)
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatIDStr, err)
	}

	for i, chunk := range splitMessage(renderOutbound(msg), telegramMaxMsgLen) {
		params := &tgbot.SendMessageParams{ChatID: chatID, Text: chunk}
		if i == 0 && msg.InReplyTo != "" {
			if replyID, err := strconv.Atoi(msg.InReplyTo); err == nil {
				params.ReplyParameters = &models.ReplyParameters{MessageID: replyID}
			}
		}
		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
	}
	return nil
}

func senderName(u *models.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}
