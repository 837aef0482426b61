package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/platform"
)

// Interaction callback types (Discord API v10).
const (
	interactionPing          = 1
	interactionResponsePong  = 1
	interactionResponseDefer = 5

	headerSignature          = "X-Signature-Ed25519"
	headerSignatureTimestamp = "X-Signature-Timestamp"
)

type interactionPayload struct {
	Type          int             `json:"type"`
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Token         string          `json:"token"`
	ChannelID     string          `json:"channel_id"`
	Data          json.RawMessage `json:"data"`
	Member        *struct {
		User *struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	} `json:"member"`
}

// HandleWebhook serves the Discord interactions endpoint. The raw body is
// read exactly once; the Ed25519 signature covers timestamp||body and is
// checked against the application's stored public key before any parsing of
// the payload is trusted.
func (a *Adapter) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	var payload interactionPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ApplicationID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid interaction payload"})
	}

	cfg, err := a.resolver.FindEnabledByApplicationID(c.Request().Context(), Type, payload.ApplicationID)
	if err != nil {
		a.logger.Warn("webhook for unknown application",
			slog.String("application_id", payload.ApplicationID))
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown application"})
	}
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil || creds.PublicKey == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no verification key configured"})
	}

	if !verifySignature(c.Request().Header, body, creds.PublicKey) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid request signature"})
	}

	if payload.Type == interactionPing {
		return c.JSON(http.StatusOK, map[string]int{"type": interactionResponsePong})
	}

	a.deliver(c.Request().Context(), cfg, a.events, interactionEvent(cfg, payload))
	return c.JSON(http.StatusOK, map[string]int{"type": interactionResponseDefer})
}

func verifySignature(header http.Header, body []byte, hexKey string) bool {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(header.Get(headerSignature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	timestamp := header.Get(headerSignatureTimestamp)
	if timestamp == "" {
		return false
	}
	signed := make([]byte, 0, len(timestamp)+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, body...)
	return ed25519.Verify(ed25519.PublicKey(key), signed, sig)
}

func interactionEvent(cfg platform.BotConfig, payload interactionPayload) platform.Event {
	evt := platform.Event{
		Platform:      Type,
		ApplicationID: cfg.ApplicationID,
		Type:          "interaction",
		Target:        payload.ChannelID,
		MessageID:     payload.ID,
		ReceivedAt:    time.Now().UTC(),
		Metadata: map[string]any{
			"interaction_type":  payload.Type,
			"interaction_token": payload.Token,
		},
	}
	if len(payload.Data) > 0 {
		evt.Metadata["data"] = json.RawMessage(payload.Data)
	}
	if payload.Member != nil && payload.Member.User != nil {
		evt.Sender = payload.Member.User.ID
		evt.SenderName = payload.Member.User.Username
	}
	return evt
}
