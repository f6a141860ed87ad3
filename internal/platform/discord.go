package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stargazy/nifty/internal/core"
)

const discordMaxMsgLen = 2000

// Discord is the Discord adapter, built on the gateway websocket.
type Discord struct {
	token   string
	guildID string
	logger  *slog.Logger
	session *discordgo.Session
}

// NewDiscord creates the Discord adapter. A non-empty guildID restricts the
// adapter to one guild.
func NewDiscord(token, guildID string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		token:   token,
		guildID: guildID,
		logger:  logger.With("component", "discord"),
	}
}

func (d *Discord) Name() core.Platform { return core.PlatformDiscord }

// Run connects to the Discord gateway and listens until ctx is cancelled.
func (d *Discord) Run(ctx context.Context, sink Sink) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.ID == s.State.User.ID {
			return
		}
		if d.guildID != "" && m.GuildID != d.guildID {
			return
		}

		ev := core.RawEvent{
			Platform:   core.PlatformDiscord,
			ChatID:     m.ChannelID,
			MessageID:  m.ID,
			SenderID:   m.Author.ID,
			SenderName: m.Author.Username,
			Text:       m.Content,
			Timestamp:  time.Now(),
		}
		if ref := m.ReferencedMessage; ref != nil {
			ev.ReplyToID = ref.ID
			if ref.Author != nil {
				ev.ReplyToSender = ref.Author.Username
			}
		}
		for _, att := range m.Attachments {
			ev.Attachments = append(ev.Attachments, att.URL)
		}

		sink(ev)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	d.logger.Info("discord connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord disconnecting")
	return session.Close()
}

// Send delivers one outbound message, splitting it to fit Discord's length
// limit.
func (d *Discord) Send(_ context.Context, msg core.OutboundMessage) error {
	_, channelID, err := core.SplitConversationID(msg.ConversationID)
	if err != nil {
		return err
	}

	for _, chunk := range splitMessage(renderOutbound(msg), discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("discord send failed: %w", err)
		}
	}
	return nil
}
