package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/credstore"
	"github.com/hivegate-io/hivegate/internal/gateway"
	"github.com/hivegate-io/hivegate/internal/platform"
	"github.com/hivegate-io/hivegate/internal/queue"
)

// BotsHandler manages bot provider configurations: credential upserts,
// enable/disable, and deletion. Connect requests flow through the durable
// queue so the next orchestrator cycle picks them up even if this process
// is recycled in between.
type BotsHandler struct {
	store  *credstore.Service
	queue  queue.ConnectQueue
	orc    *gateway.Orchestrator
	logger *slog.Logger
}

// NewBotsHandler creates the bot config handler.
func NewBotsHandler(log *slog.Logger, store *credstore.Service, q queue.ConnectQueue, orc *gateway.Orchestrator) *BotsHandler {
	return &BotsHandler{
		store:  store,
		queue:  q,
		orc:    orc,
		logger: log.With(slog.String("handler", "bots")),
	}
}

// Register mounts the bot config routes.
func (h *BotsHandler) Register(e *echo.Echo) {
	e.PUT("/bots/:platform/:appID", h.Upsert)
	e.POST("/bots/:platform/:appID/enable", h.Enable)
	e.POST("/bots/:platform/:appID/disable", h.Disable)
	e.DELETE("/bots/:platform/:appID", h.Delete)
}

type upsertRequest struct {
	UserID      string         `json:"user_id"`
	Credentials map[string]any `json:"credentials"`
	Enabled     *bool          `json:"enabled"`
}

// botResponse is the credential-free view returned to callers.
type botResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Platform      string    `json:"platform"`
	ApplicationID string    `json:"application_id"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toBotResponse(cfg platform.BotConfig) botResponse {
	return botResponse{
		ID:            cfg.ID,
		UserID:        cfg.UserID,
		Platform:      cfg.Platform.String(),
		ApplicationID: cfg.ApplicationID,
		Enabled:       cfg.Enabled,
		CreatedAt:     cfg.CreatedAt,
		UpdatedAt:     cfg.UpdatedAt,
	}
}

// Upsert stores (or rotates) credentials for a bot and queues a connect
// request when the config is enabled.
func (h *BotsHandler) Upsert(c echo.Context) error {
	p, err := platform.ParsePlatform(c.Param("platform"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	appID := c.Param("appID")

	var req upsertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	cfg, err := h.store.Upsert(c.Request().Context(), p, appID, credstore.UpsertRequest{
		UserID:      req.UserID,
		Credentials: req.Credentials,
		Enabled:     req.Enabled,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	if cfg.Enabled {
		if err := h.queue.Enqueue(c.Request().Context(), p, cfg.ApplicationID, cfg.UserID); err != nil {
			h.logger.Error("enqueue connect failed",
				slog.String("application_id", cfg.ApplicationID),
				slog.Any("error", err))
		}
	}
	return c.JSON(http.StatusOK, toBotResponse(cfg))
}

// Enable flips a config on and queues a connect request for the next cycle.
func (h *BotsHandler) Enable(c echo.Context) error {
	p, err := platform.ParsePlatform(c.Param("platform"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	appID := c.Param("appID")

	if err := h.store.SetEnabled(c.Request().Context(), p, appID, true); err != nil {
		return h.configError(c, err)
	}
	cfg, err := h.store.FindEnabledByApplicationID(c.Request().Context(), p, appID)
	if err != nil {
		return h.configError(c, err)
	}
	if err := h.queue.Enqueue(c.Request().Context(), p, cfg.ApplicationID, cfg.UserID); err != nil {
		h.logger.Error("enqueue connect failed",
			slog.String("application_id", cfg.ApplicationID),
			slog.Any("error", err))
	}
	return c.JSON(http.StatusOK, toBotResponse(cfg))
}

// Disable flips a config off, stops any running handle, and withdraws a
// pending connect request.
func (h *BotsHandler) Disable(c echo.Context) error {
	p, err := platform.ParsePlatform(c.Param("platform"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	appID := c.Param("appID")

	if err := h.store.SetEnabled(c.Request().Context(), p, appID, false); err != nil {
		return h.configError(c, err)
	}
	if err := h.orc.StopBot(c.Request().Context(), p, appID); err != nil {
		h.logger.Warn("stop bot failed", slog.String("application_id", appID), slog.Any("error", err))
	}
	if err := h.queue.Remove(c.Request().Context(), p, appID); err != nil {
		h.logger.Warn("dequeue failed", slog.String("application_id", appID), slog.Any("error", err))
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes a config entirely, stopping any running handle first.
func (h *BotsHandler) Delete(c echo.Context) error {
	p, err := platform.ParsePlatform(c.Param("platform"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	appID := c.Param("appID")

	if err := h.orc.StopBot(c.Request().Context(), p, appID); err != nil {
		h.logger.Warn("stop bot failed", slog.String("application_id", appID), slog.Any("error", err))
	}
	if err := h.queue.Remove(c.Request().Context(), p, appID); err != nil {
		h.logger.Warn("dequeue failed", slog.String("application_id", appID), slog.Any("error", err))
	}
	if err := h.store.Delete(c.Request().Context(), p, appID); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BotsHandler) configError(c echo.Context, err error) error {
	if errors.Is(err, credstore.ErrConfigNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "bot config not found"})
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}
