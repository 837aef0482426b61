package platform

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"
)

// ErrUnsupported is returned by outbound actions a platform cannot perform
// (e.g. typing indicators on platforms without the API).
var ErrUnsupported = errors.New("action not supported by platform")

// Adapter is the minimal contract every platform integration satisfies.
type Adapter interface {
	Type() Platform
}

// Starter opens a persistent gateway connection for one bot configuration.
// The connection must self-terminate once opts.Duration elapses. A start
// failure for one bot leaves the adapter usable for others.
type Starter interface {
	Start(ctx context.Context, cfg BotConfig, opts StartOptions) (Handle, error)
}

// Messenger exposes the outbound REST surface. Plain request/response calls,
// no retry at this layer; failures surface to the caller.
type Messenger interface {
	SendMessage(ctx context.Context, cfg BotConfig, target, text string) (string, error)
	EditMessage(ctx context.Context, cfg BotConfig, target, messageID, text string) error
	Typing(ctx context.Context, cfg BotConfig, target string) error
	RemoveOwnReaction(ctx context.Context, cfg BotConfig, target, messageID, emoji string) error
}

// WebhookReceiver handles an inbound platform webhook call. The receiver owns
// request verification (signatures, secret tokens) and must read the raw body
// at most once before verifying it.
type WebhookReceiver interface {
	HandleWebhook(c echo.Context) error
}
