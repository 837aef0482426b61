// Package slack implements the Slack platform client: a Socket Mode
// connection per bot, the outbound Web API surface, and the Events API
// webhook endpoint.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/hivegate-io/hivegate/internal/platform"
)

// Type is the platform identifier for Slack.
const Type = platform.Platform("slack")

// Adapter is the Slack adapter.
type Adapter struct {
	resolver platform.ConfigResolver
	events   platform.EventHandler
	logger   *slog.Logger
}

// NewAdapter creates the Slack adapter.
func NewAdapter(log *slog.Logger, resolver platform.ConfigResolver, events platform.EventHandler) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		resolver: resolver,
		events:   events,
		logger:   log.With(slog.String("adapter", "slack")),
	}
}

func (a *Adapter) Type() platform.Platform {
	return Type
}

// Start opens a Socket Mode connection for cfg. The run loop and the
// self-termination timer are registered through the keep-alive hook.
func (a *Adapter) Start(ctx context.Context, cfg platform.BotConfig, opts platform.StartOptions) (platform.Handle, error) {
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if creds.AppToken == "" {
		return nil, fmt.Errorf("slack app_token is required for socket mode")
	}
	api := slack.New(creds.BotToken, slack.OptionAppLevelToken(creds.AppToken))
	client := socketmode.New(api)

	deadline := time.Now().Add(opts.Duration)
	connCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	handle := platform.NewHandle(cfg, deadline, func(context.Context) error {
		cancel()
		return nil
	})

	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = a.events
	}

	opts.Spawn(func() {
		if err := client.RunContext(connCtx); err != nil && connCtx.Err() == nil {
			a.logger.Error("socket mode run failed",
				slog.String("application_id", cfg.ApplicationID),
				slog.Any("error", err))
			handle.MarkErrored()
		}
	})
	opts.Spawn(func() {
		defer cancel()
		for {
			select {
			case <-connCtx.Done():
				if handle.Running() {
					_ = handle.Stop(context.Background())
				}
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				a.handleSocketEvent(connCtx, cfg, client, handle, onEvent, evt)
			}
		}
	})
	return handle, nil
}

func (a *Adapter) handleSocketEvent(ctx context.Context, cfg platform.BotConfig, client *socketmode.Client, handle *platform.BaseHandle, onEvent platform.EventHandler, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		a.logger.Info("socket mode connected", slog.String("application_id", cfg.ApplicationID))
		handle.MarkOpen()
	case socketmode.EventTypeConnectionError:
		a.logger.Warn("socket mode connection error", slog.String("application_id", cfg.ApplicationID))
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			client.Ack(*evt.Request)
		}
		if msg, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			if msg.BotID != "" || msg.SubType != "" {
				return
			}
			a.deliver(ctx, cfg, onEvent, messageEvent(cfg, msg))
		}
	}
}

func (a *Adapter) deliver(ctx context.Context, cfg platform.BotConfig, handler platform.EventHandler, evt platform.Event) {
	if handler == nil {
		return
	}
	if err := handler(ctx, cfg, evt); err != nil {
		a.logger.Error("handle inbound failed",
			slog.String("application_id", cfg.ApplicationID),
			slog.Any("error", err))
	}
}

func messageEvent(cfg platform.BotConfig, msg *slackevents.MessageEvent) platform.Event {
	return platform.Event{
		Platform:      Type,
		ApplicationID: cfg.ApplicationID,
		Type:          "message",
		Sender:        msg.User,
		Target:        msg.Channel,
		MessageID:     msg.TimeStamp,
		Text:          msg.Text,
		ReceivedAt:    time.Now().UTC(),
		Metadata:      map[string]any{"thread_ts": msg.ThreadTimeStamp},
	}
}

type credentials struct {
	BotToken      string
	AppToken      string
	SigningSecret string
}

func parseCredentials(raw map[string]any) (credentials, error) {
	botToken := platform.ReadString(raw, "botToken", "bot_token")
	if botToken == "" {
		return credentials{}, fmt.Errorf("slack bot_token is required")
	}
	return credentials{
		BotToken:      botToken,
		AppToken:      platform.ReadString(raw, "appToken", "app_token"),
		SigningSecret: platform.ReadString(raw, "signingSecret", "signing_secret"),
	}, nil
}

func (a *Adapter) webAPI(cfg platform.BotConfig) (*slack.Client, error) {
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return slack.New(creds.BotToken), nil
}

// SendMessage posts a message and returns its timestamp (Slack's message ID).
func (a *Adapter) SendMessage(ctx context.Context, cfg platform.BotConfig, target, text string) (string, error) {
	api, err := a.webAPI(cfg)
	if err != nil {
		return "", err
	}
	_, timestamp, err := api.PostMessageContext(ctx, target, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack send: %w", err)
	}
	return timestamp, nil
}

// EditMessage replaces the text of an existing message.
func (a *Adapter) EditMessage(ctx context.Context, cfg platform.BotConfig, target, messageID, text string) error {
	api, err := a.webAPI(cfg)
	if err != nil {
		return err
	}
	if _, _, _, err := api.UpdateMessageContext(ctx, target, messageID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack edit: %w", err)
	}
	return nil
}

// Typing is not available through the Web API for bots.
func (a *Adapter) Typing(ctx context.Context, cfg platform.BotConfig, target string) error {
	return platform.ErrUnsupported
}

// RemoveOwnReaction removes the bot's reaction from a message.
func (a *Adapter) RemoveOwnReaction(ctx context.Context, cfg platform.BotConfig, target, messageID, emoji string) error {
	api, err := a.webAPI(cfg)
	if err != nil {
		return err
	}
	if err := api.RemoveReactionContext(ctx, emoji, slack.ItemRef{Channel: target, Timestamp: messageID}); err != nil {
		return fmt.Errorf("slack remove reaction: %w", err)
	}
	return nil
}
