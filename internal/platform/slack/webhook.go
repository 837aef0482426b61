package slack

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// HandleWebhook serves the Slack Events API endpoint. The raw body is read
// exactly once; the request signature is checked against the application's
// stored signing secret before the payload is trusted. URL verification
// challenges are answered in plain text as Slack requires.
func (a *Adapter) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	var envelope struct {
		APIAppID string `json:"api_app_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.APIAppID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
	}

	cfg, err := a.resolver.FindEnabledByApplicationID(c.Request().Context(), Type, envelope.APIAppID)
	if err != nil {
		a.logger.Warn("webhook for unknown application",
			slog.String("application_id", envelope.APIAppID))
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown application"})
	}
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil || creds.SigningSecret == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no verification key configured"})
	}

	if !verifySignature(c.Request().Header, body, creds.SigningSecret) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid request signature"})
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid challenge"})
		}
		return c.String(http.StatusOK, challenge.Challenge)
	case slackevents.CallbackEvent:
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			if msg.BotID == "" && msg.SubType == "" {
				a.deliver(c.Request().Context(), cfg, a.events, messageEvent(cfg, msg))
			}
		}
		return c.NoContent(http.StatusOK)
	default:
		return c.NoContent(http.StatusOK)
	}
}

func verifySignature(header http.Header, body []byte, signingSecret string) bool {
	verifier, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	return verifier.Ensure() == nil
}
