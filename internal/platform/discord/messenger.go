package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/hivegate-io/hivegate/internal/platform"
)

// Discord caps message content at 2000 characters.
const maxMessageLen = 2000

// SendMessage posts a message to a channel and returns the new message ID.
func (a *Adapter) SendMessage(ctx context.Context, cfg platform.BotConfig, target, text string) (string, error) {
	session, err := a.restSession(cfg)
	if err != nil {
		return "", err
	}
	msg, err := session.ChannelMessageSend(target, truncate(text))
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return msg.ID, nil
}

// EditMessage replaces the content of an existing message.
func (a *Adapter) EditMessage(ctx context.Context, cfg platform.BotConfig, target, messageID, text string) error {
	session, err := a.restSession(cfg)
	if err != nil {
		return err
	}
	if _, err := session.ChannelMessageEdit(target, messageID, truncate(text)); err != nil {
		return fmt.Errorf("discord edit: %w", err)
	}
	return nil
}

// Typing triggers the typing indicator in a channel.
func (a *Adapter) Typing(ctx context.Context, cfg platform.BotConfig, target string) error {
	session, err := a.restSession(cfg)
	if err != nil {
		return err
	}
	if err := session.ChannelTyping(target); err != nil {
		return fmt.Errorf("discord typing: %w", err)
	}
	return nil
}

// RemoveOwnReaction removes the bot's own reaction from a message.
func (a *Adapter) RemoveOwnReaction(ctx context.Context, cfg platform.BotConfig, target, messageID, emoji string) error {
	session, err := a.restSession(cfg)
	if err != nil {
		return err
	}
	if err := session.MessageReactionRemove(target, messageID, emoji, "@me"); err != nil {
		return fmt.Errorf("discord remove reaction: %w", err)
	}
	return nil
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxMessageLen {
		return text[:maxMessageLen-3] + "..."
	}
	return text
}
