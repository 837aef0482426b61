package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/platform"
)

type stubReceiver struct {
	platformType platform.Platform
	calls        int
}

func (r *stubReceiver) Type() platform.Platform {
	return r.platformType
}

func (r *stubReceiver) HandleWebhook(c echo.Context) error {
	r.calls++
	return c.JSON(http.StatusOK, map[string]string{"handled": string(r.platformType)})
}

func dispatchWebhook(t *testing.T, registry *platform.Registry, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	NewWebhookHandler(slog.Default(), registry).Register(e)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesToRegisteredPlatform(t *testing.T) {
	t.Parallel()

	registry := platform.NewRegistry()
	receiver := &stubReceiver{platformType: "discord"}
	registry.MustRegister(receiver)

	rec := dispatchWebhook(t, registry, "/webhooks/discord")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if receiver.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", receiver.calls)
	}
}

func TestWebhookUnknownPlatformReturnsNotFound(t *testing.T) {
	t.Parallel()

	registry := platform.NewRegistry()
	registry.MustRegister(&stubReceiver{platformType: "discord"})

	rec := dispatchWebhook(t, registry, "/webhooks/nonexistent-platform")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown platform") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestWebhookPlatformWithoutReceiverReturnsNotFound(t *testing.T) {
	t.Parallel()

	registry := platform.NewRegistry()

	rec := dispatchWebhook(t, registry, "/webhooks/discord")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
