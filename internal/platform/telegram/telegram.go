// Package telegram implements the Telegram platform client: a long-poll
// updates loop per bot, the outbound Bot API surface, and the webhook
// endpoint for push delivery.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hivegate-io/hivegate/internal/platform"
)

// Type is the platform identifier for Telegram.
const Type = platform.Platform("telegram")

// Adapter is the Telegram adapter.
type Adapter struct {
	resolver platform.ConfigResolver
	events   platform.EventHandler
	logger   *slog.Logger
}

// NewAdapter creates the Telegram adapter.
func NewAdapter(log *slog.Logger, resolver platform.ConfigResolver, events platform.EventHandler) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		resolver: resolver,
		events:   events,
		logger:   log.With(slog.String("adapter", "telegram")),
	}
}

func (a *Adapter) Type() platform.Platform {
	return Type
}

// Start begins long-polling updates for cfg. The loop drains itself once
// opts.Duration elapses; both the loop and the deadline live past the
// synchronous caller via the keep-alive hook.
func (a *Adapter) Start(ctx context.Context, cfg platform.BotConfig, opts platform.StartOptions) (platform.Handle, error) {
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(creds.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)

	deadline := time.Now().Add(opts.Duration)
	connCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	handle := platform.NewHandle(cfg, deadline, func(context.Context) error {
		cancel()
		bot.StopReceivingUpdates()
		return nil
	})
	handle.MarkOpen()

	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = a.events
	}

	opts.Spawn(func() {
		defer cancel()
		for {
			select {
			case <-connCtx.Done():
				a.logger.Info("polling stopped", slog.String("application_id", cfg.ApplicationID))
				bot.StopReceivingUpdates()
				if handle.Running() {
					_ = handle.Stop(context.Background())
				}
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				a.deliver(connCtx, cfg, onEvent, messageEvent(cfg, update.Message))
			}
		}
	})
	return handle, nil
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

func messageEvent(cfg platform.BotConfig, msg *tgbotapi.Message) platform.Event {
	evt := platform.Event{
		Platform:      Type,
		ApplicationID: cfg.ApplicationID,
		Type:          "message",
		MessageID:     strconv.Itoa(msg.MessageID),
		Text:          strings.TrimSpace(msg.Text),
		ReceivedAt:    time.Unix(int64(msg.Date), 0).UTC(),
		Metadata:      map[string]any{},
	}
	if msg.Chat != nil {
		evt.Target = strconv.FormatInt(msg.Chat.ID, 10)
		evt.Metadata["chat_type"] = msg.Chat.Type
	}
	if msg.From != nil {
		evt.Sender = strconv.FormatInt(msg.From.ID, 10)
		evt.SenderName = strings.TrimSpace(msg.From.UserName)
	}
	return evt
}

type credentials struct {
	BotToken      string
	WebhookSecret string
}

func parseCredentials(raw map[string]any) (credentials, error) {
	token := platform.ReadString(raw, "botToken", "bot_token")
	if token == "" {
		return credentials{}, fmt.Errorf("telegram bot_token is required")
	}
	return credentials{
		BotToken:      token,
		WebhookSecret: platform.ReadString(raw, "webhookSecret", "webhook_secret"),
	}, nil
}

func (a *Adapter) botAPI(cfg platform.BotConfig) (*tgbotapi.BotAPI, error) {
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return tgbotapi.NewBotAPI(creds.BotToken)
}

func parseChatID(target string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram target must be a chat_id")
	}
	return chatID, nil
}

// SendMessage sends a text message and returns the new message ID. Targets
// starting with @ address a channel by username.
func (a *Adapter) SendMessage(ctx context.Context, cfg platform.BotConfig, target, text string) (string, error) {
	bot, err := a.botAPI(cfg)
	if err != nil {
		return "", err
	}
	var message tgbotapi.MessageConfig
	if strings.HasPrefix(target, "@") {
		message = tgbotapi.NewMessageToChannel(target, text)
	} else {
		chatID, err := parseChatID(target)
		if err != nil {
			return "", err
		}
		message = tgbotapi.NewMessage(chatID, text)
	}
	sent, err := bot.Send(message)
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// EditMessage replaces the text of an existing message.
func (a *Adapter) EditMessage(ctx context.Context, cfg platform.BotConfig, target, messageID, text string) error {
	bot, err := a.botAPI(cfg)
	if err != nil {
		return err
	}
	chatID, err := parseChatID(target)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram message id must be numeric")
	}
	if _, err := bot.Send(tgbotapi.NewEditMessageText(chatID, msgID, text)); err != nil {
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

// Typing sends the "typing" chat action.
func (a *Adapter) Typing(ctx context.Context, cfg platform.BotConfig, target string) error {
	bot, err := a.botAPI(cfg)
	if err != nil {
		return err
	}
	chatID, err := parseChatID(target)
	if err != nil {
		return err
	}
	if _, err := bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram typing: %w", err)
	}
	return nil
}

// RemoveOwnReaction is not supported by the Bot API version in use.
func (a *Adapter) RemoveOwnReaction(ctx context.Context, cfg platform.BotConfig, target, messageID, emoji string) error {
	return platform.ErrUnsupported
}
