package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/platform"
)

// WebhookHandler routes inbound platform webhooks to the adapter registered
// for the path's platform tag. The router itself never reads the body; the
// resolved adapter owns verification and response shape, so signature checks
// always see the raw bytes.
type WebhookHandler struct {
	registry *platform.Registry
	logger   *slog.Logger
}

// NewWebhookHandler creates the webhook router.
func NewWebhookHandler(log *slog.Logger, registry *platform.Registry) *WebhookHandler {
	return &WebhookHandler{
		registry: registry,
		logger:   log.With(slog.String("handler", "webhook")),
	}
}

// Register mounts POST /webhooks/:platform.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/:platform", h.Dispatch)
}

// Dispatch resolves the platform adapter and hands over the request. Unknown
// or webhook-incapable platforms get a deterministic 404 rather than an error.
func (h *WebhookHandler) Dispatch(c echo.Context) error {
	name := c.Param("platform")
	p, err := platform.ParsePlatform(name)
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown platform"})
	}
	receiver, ok := h.registry.GetWebhookReceiver(p)
	if !ok {
		h.logger.Warn("no webhook receiver", slog.String("platform", string(p)))
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown platform"})
	}
	return receiver.HandleWebhook(c)
}
