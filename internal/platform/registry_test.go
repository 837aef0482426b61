package platform

import (
	"context"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type fakeAdapter struct {
	platform Platform
}

func (a *fakeAdapter) Type() Platform {
	return a.platform
}

type fakeFullAdapter struct {
	fakeAdapter
}

func (a *fakeFullAdapter) Start(ctx context.Context, cfg BotConfig, opts StartOptions) (Handle, error) {
	return NewHandle(cfg, time.Now().Add(opts.Duration), nil), nil
}

func (a *fakeFullAdapter) HandleWebhook(c echo.Context) error {
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(&fakeAdapter{platform: "discord"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, ok := r.Get("discord"); !ok {
		t.Fatalf("expected adapter for discord")
	}
	if _, ok := r.Get("Discord"); !ok {
		t.Fatalf("lookup should normalize case")
	}
	if _, ok := r.Get("slack"); ok {
		t.Fatalf("unexpected adapter for slack")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(&fakeAdapter{platform: "discord"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(&fakeAdapter{platform: "discord"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistryCapabilityLookups(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(&fakeFullAdapter{fakeAdapter{platform: "discord"}})
	r.MustRegister(&fakeAdapter{platform: "slack"})

	if _, ok := r.GetStarter("discord"); !ok {
		t.Fatalf("expected starter for discord")
	}
	if _, ok := r.GetStarter("slack"); ok {
		t.Fatalf("slack fake has no starter")
	}
	if _, ok := r.GetWebhookReceiver("discord"); !ok {
		t.Fatalf("expected webhook receiver for discord")
	}
	if _, ok := r.GetWebhookReceiver("telegram"); ok {
		t.Fatalf("unregistered platform must have no receiver")
	}
	if _, ok := r.GetMessenger("discord"); ok {
		t.Fatalf("fake does not implement messenger")
	}
}

func TestRegistryParse(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(&fakeAdapter{platform: "telegram"})

	p, err := r.Parse(" Telegram ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p != "telegram" {
		t.Fatalf("unexpected platform: %s", p)
	}
	if _, err := r.Parse("matrix"); err == nil {
		t.Fatalf("expected error for unregistered platform")
	}
}

func TestReadString(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"bot_token": " token-1 ",
		"empty":     "",
		"number":    42,
	}
	if got := ReadString(raw, "botToken", "bot_token"); got != "token-1" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := ReadString(raw, "empty", "number"); got != "" {
		t.Fatalf("expected empty for non-string values, got %q", got)
	}
	if got := ReadString(nil, "bot_token"); got != "" {
		t.Fatalf("expected empty for nil map, got %q", got)
	}
}
