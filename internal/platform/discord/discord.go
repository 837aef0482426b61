// Package discord implements the Discord platform client: a discordgo
// gateway session per bot, the outbound REST surface, and the interactions
// webhook endpoint.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hivegate-io/hivegate/internal/platform"
)

// Type is the platform identifier for Discord.
const Type = platform.Platform("discord")

// Adapter is the Discord adapter. One gateway session is opened per
// (platform, applicationID) start; outbound calls build short-lived REST
// sessions from the stored token.
type Adapter struct {
	resolver platform.ConfigResolver
	events   platform.EventHandler
	logger   *slog.Logger
}

// NewAdapter creates the Discord adapter. resolver is used by the webhook
// endpoint to look up per-application verification keys; events receives
// webhook-delivered interactions (gateway events go through StartOptions).
func NewAdapter(log *slog.Logger, resolver platform.ConfigResolver, events platform.EventHandler) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		resolver: resolver,
		events:   events,
		logger:   log.With(slog.String("adapter", "discord")),
	}
}

func (a *Adapter) Type() platform.Platform {
	return Type
}

// Start opens the gateway session for cfg. The session closes itself once
// opts.Duration elapses; the timer is registered through the keep-alive hook
// so it survives the synchronous caller returning.
func (a *Adapter) Start(ctx context.Context, cfg platform.BotConfig, opts platform.StartOptions) (platform.Handle, error) {
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + creds.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	deadline := time.Now().Add(opts.Duration)
	handle := platform.NewHandle(cfg, deadline, func(context.Context) error {
		return session.Close()
	})

	// Events arrive long after the start call's context is done; deliveries
	// must not inherit its cancellation.
	evtCtx := context.WithoutCancel(ctx)

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.logger.Info("gateway ready",
			slog.String("application_id", cfg.ApplicationID),
			slog.String("bot_user", r.User.Username))
	})
	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = a.events
	}
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}
		a.deliver(evtCtx, cfg, onEvent, messageEvent(cfg, m))
	})
	session.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		a.logger.Warn("gateway disconnected", slog.String("application_id", cfg.ApplicationID))
	})

	if err := session.Open(); err != nil {
		handle.MarkErrored()
		return nil, fmt.Errorf("open discord gateway: %w", err)
	}
	handle.MarkOpen()

	// Self-terminate at the deadline; the orchestrator never force-kills.
	opts.Spawn(func() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		<-timer.C
		if handle.Running() {
			a.logger.Info("budget elapsed, closing gateway",
				slog.String("application_id", cfg.ApplicationID))
			if err := handle.Stop(context.Background()); err != nil {
				a.logger.Warn("gateway close failed",
					slog.String("application_id", cfg.ApplicationID),
					slog.Any("error", err))
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

func messageEvent(cfg platform.BotConfig, m *discordgo.MessageCreate) platform.Event {
	evt := platform.Event{
		Platform:      Type,
		ApplicationID: cfg.ApplicationID,
		Type:          "message",
		Target:        m.ChannelID,
		MessageID:     m.ID,
		Text:          m.Content,
		ReceivedAt:    time.Now().UTC(),
		Metadata:      map[string]any{"guild_id": m.GuildID},
	}
	if m.Author != nil {
		evt.Sender = m.Author.ID
		evt.SenderName = m.Author.Username
	}
	return evt
}

type credentials struct {
	BotToken  string
	PublicKey string
}

func parseCredentials(raw map[string]any) (credentials, error) {
	token := platform.ReadString(raw, "botToken", "bot_token")
	if token == "" {
		return credentials{}, fmt.Errorf("discord bot_token is required")
	}
	return credentials{
		BotToken:  token,
		PublicKey: strings.TrimSpace(platform.ReadString(raw, "publicKey", "public_key")),
	}, nil
}

func (a *Adapter) restSession(cfg platform.BotConfig) (*discordgo.Session, error) {
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return discordgo.New("Bot " + creds.BotToken)
}
