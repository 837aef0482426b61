package discord

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/platform"
)

type fakeResolver struct {
	configs map[string]platform.BotConfig
}

func (r *fakeResolver) FindEnabledByApplicationID(ctx context.Context, p platform.Platform, applicationID string) (platform.BotConfig, error) {
	cfg, ok := r.configs[applicationID]
	if !ok {
		return platform.BotConfig{}, platform.ErrConfigNotFound
	}
	return cfg, nil
}

func signedRequest(t *testing.T, priv ed25519.PrivateKey, body string) *http.Request {
	t.Helper()
	timestamp := "1700000000"
	sig := ed25519.Sign(priv, []byte(timestamp+body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(headerSignature, hex.EncodeToString(sig))
	req.Header.Set(headerSignatureTimestamp, timestamp)
	return req
}

func webhookFixture(t *testing.T) (*Adapter, ed25519.PrivateKey, *[]platform.Event) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	resolver := &fakeResolver{configs: map[string]platform.BotConfig{
		"app-1": {
			ID:            "cfg-1",
			Platform:      Type,
			ApplicationID: "app-1",
			Credentials: map[string]any{
				"bot_token":  "token",
				"public_key": hex.EncodeToString(pub),
			},
			Enabled: true,
		},
		"app-nokey": {
			ID:            "cfg-2",
			Platform:      Type,
			ApplicationID: "app-nokey",
			Credentials:   map[string]any{"bot_token": "token"},
			Enabled:       true,
		},
	}}
	var events []platform.Event
	handler := func(ctx context.Context, cfg platform.BotConfig, evt platform.Event) error {
		events = append(events, evt)
		return nil
	}
	return NewAdapter(nil, resolver, handler), priv, &events
}

func dispatch(t *testing.T, a *Adapter, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := a.HandleWebhook(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestWebhookPingPong(t *testing.T) {
	t.Parallel()

	a, priv, _ := webhookFixture(t)
	rec := dispatch(t, a, signedRequest(t, priv, `{"type":1,"application_id":"app-1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["type"] != interactionResponsePong {
		t.Fatalf("expected pong, got %v", resp)
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	a, _, events := webhookFixture(t)
	_, wrongPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	rec := dispatch(t, a, signedRequest(t, wrongPriv, `{"type":2,"application_id":"app-1"}`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(*events) != 0 {
		t.Fatalf("unverified payload must not be delivered")
	}
}

func TestWebhookRejectsMissingTimestamp(t *testing.T) {
	t.Parallel()

	a, priv, _ := webhookFixture(t)
	req := signedRequest(t, priv, `{"type":1,"application_id":"app-1"}`)
	req.Header.Del(headerSignatureTimestamp)
	rec := dispatch(t, a, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookUnknownApplication(t *testing.T) {
	t.Parallel()

	a, priv, _ := webhookFixture(t)
	rec := dispatch(t, a, signedRequest(t, priv, `{"type":1,"application_id":"app-unknown"}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookWithoutVerificationKey(t *testing.T) {
	t.Parallel()

	a, priv, _ := webhookFixture(t)
	rec := dispatch(t, a, signedRequest(t, priv, `{"type":1,"application_id":"app-nokey"}`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookDeliversInteraction(t *testing.T) {
	t.Parallel()

	a, priv, events := webhookFixture(t)
	body := `{"type":2,"id":"int-1","application_id":"app-1","token":"tok","channel_id":"chan-1","member":{"user":{"id":"u-1","username":"alice"}}}`
	rec := dispatch(t, a, signedRequest(t, priv, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["type"] != interactionResponseDefer {
		t.Fatalf("expected deferred response, got %v", resp)
	}
	if len(*events) != 1 {
		t.Fatalf("expected one delivered event, got %d", len(*events))
	}
	evt := (*events)[0]
	if evt.Type != "interaction" || evt.Sender != "u-1" || evt.Target != "chan-1" || evt.MessageID != "int-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}
