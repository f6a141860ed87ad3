package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/stargazy/nifty/internal/core"
)

const slackMaxMsgLen = 4000

// Slack is the Slack adapter, built on Socket Mode.
type Slack struct {
	botToken string
	appToken string
	logger   *slog.Logger
	client   *slack.Client
	botUID   string
}

// NewSlack creates the Slack adapter.
func NewSlack(botToken, appToken string, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		botToken: botToken,
		appToken: appToken,
		logger:   logger.With("component", "slack"),
	}
}

func (s *Slack) Name() core.Platform { return core.PlatformSlack }

// Run connects via Socket Mode and listens for events until ctx is
// cancelled.
func (s *Slack) Run(ctx context.Context, sink Sink) error {
	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.client = api

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth failed: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEvent(apiEvent, sink)
			default:
				// Unacknowledged events cause Socket Mode disconnects.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) handleEvent(event slackevents.EventsAPIEvent, sink Sink) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Skip the bot's own messages and edits/joins.
	if ev.User == s.botUID || ev.User == "" || ev.SubType != "" {
		return
	}

	sink(core.RawEvent{
		Platform:   core.PlatformSlack,
		ChatID:     ev.Channel,
		MessageID:  ev.TimeStamp,
		SenderID:   ev.User,
		SenderName: ev.Username,
		Text:       ev.Text,
		Timestamp:  time.Now(),
	})
}

// Send delivers one outbound message, splitting it to fit Slack's length
// limit.
func (s *Slack) Send(ctx context.Context, msg core.OutboundMessage) error {
	_, channelID, err := core.SplitConversationID(msg.ConversationID)
	if err != nil {
		return err
	}

	for _, chunk := range splitMessage(renderOutbound(msg), slackMaxMsgLen) {
		_, _, err := s.client.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(chunk, false))
		if err != nil {
			return fmt.Errorf("slack send failed: %w", err)
		}
	}
	return nil
}
