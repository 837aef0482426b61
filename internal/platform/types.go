// Package platform defines the common contract between the gateway
// orchestrator and the per-platform bot clients: bot configurations,
// connection handles, normalized inbound events, and the adapter registry.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Platform identifies a chat platform (e.g. "discord").
type Platform string

func (p Platform) String() string {
	return string(p)
}

// ParsePlatform validates and normalizes a raw platform string.
func ParsePlatform(raw string) (Platform, error) {
	normalized := normalizePlatform(raw)
	if normalized == "" {
		return "", fmt.Errorf("unsupported platform: %s", raw)
	}
	return normalized, nil
}

func normalizePlatform(raw string) Platform {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return Platform(normalized)
}

// BotConfig is the decrypted runtime view of a stored bot provider
// configuration. The credential bundle has already been unsealed; the
// gateway holds it in memory only.
type BotConfig struct {
	ID            string
	UserID        string
	Platform      Platform
	ApplicationID string
	Credentials   map[string]any
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Event is a normalized inbound platform event (message, interaction).
type Event struct {
	Platform      Platform
	ApplicationID string
	Type          string
	Sender        string
	SenderName    string
	Target        string
	MessageID     string
	Text          string
	ReceivedAt    time.Time
	Metadata      map[string]any
}

// EventHandler consumes normalized inbound events. Errors are the handler's
// concern; adapters log and continue.
type EventHandler func(ctx context.Context, cfg BotConfig, evt Event) error

// StartOptions controls how a platform client opens a gateway connection.
type StartOptions struct {
	// Duration is the wall-clock budget for this connection. The client must
	// close the connection itself once the duration elapses; the caller never
	// force-kills it.
	Duration time.Duration

	// Background registers work that must outlive the synchronous start call
	// (reconnect handling, the self-termination timer). When nil the client
	// falls back to spawning a plain goroutine.
	Background func(fn func())

	// OnEvent receives normalized inbound events for this connection.
	OnEvent EventHandler
}

// Spawn runs fn via the Background hook, or a goroutine when none was supplied.
func (o StartOptions) Spawn(fn func()) {
	if o.Background != nil {
		o.Background(fn)
		return
	}
	go fn()
}

// ErrConfigNotFound is returned by config lookups when no enabled
// configuration matches.
var ErrConfigNotFound = errors.New("bot provider config not found")

// ConfigResolver looks up enabled bot configurations. Implemented by the
// credential store; webhook-serving adapters use it to resolve verification
// material per application.
type ConfigResolver interface {
	FindEnabledByApplicationID(ctx context.Context, platform Platform, applicationID string) (BotConfig, error)
}

// ReadString extracts the first non-empty string value from a credentials map,
// trying each key in order.
func ReadString(raw map[string]any, keys ...string) string {
	if raw == nil {
		return ""
	}
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
