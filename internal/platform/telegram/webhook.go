package telegram

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
)

const headerSecretToken = "X-Telegram-Bot-Api-Secret-Token"

// HandleWebhook serves Telegram webhook updates. Telegram's update payload
// carries no application identifier, so the webhook URL must be registered
// with an app_id query parameter; the secret token header is compared in
// constant time against that application's stored webhook secret.
func (a *Adapter) HandleWebhook(c echo.Context) error {
	appID := strings.TrimSpace(c.QueryParam("app_id"))
	if appID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "app_id query parameter is required"})
	}

	cfg, err := a.resolver.FindEnabledByApplicationID(c.Request().Context(), Type, appID)
	if err != nil {
		a.logger.Warn("webhook for unknown application", slog.String("application_id", appID))
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown application"})
	}
	creds, err := parseCredentials(cfg.Credentials)
	if err != nil || creds.WebhookSecret == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no verification key configured"})
	}

	token := c.Request().Header.Get(headerSecretToken)
	if subtle.ConstantTimeCompare([]byte(token), []byte(creds.WebhookSecret)) != 1 {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid secret token"})
	}

	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid update payload"})
	}
	if update.Message != nil && update.Message.Text != "" {
		a.deliver(c.Request().Context(), cfg, a.events, messageEvent(cfg, update.Message))
	}
	return c.NoContent(http.StatusOK)
}
