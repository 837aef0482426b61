package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/gateway"
	"github.com/hivegate-io/hivegate/internal/platform"
)

// MessagesHandler exposes the outbound platform actions: send, edit, typing
// indicator, and reaction removal. Calls go through the registry's Messenger
// capability; a running gateway connection is not required.
type MessagesHandler struct {
	registry *platform.Registry
	store    gateway.ConfigStore
	logger   *slog.Logger
}

// NewMessagesHandler creates the outbound actions handler.
func NewMessagesHandler(log *slog.Logger, registry *platform.Registry, store gateway.ConfigStore) *MessagesHandler {
	return &MessagesHandler{
		registry: registry,
		store:    store,
		logger:   log.With(slog.String("handler", "messages")),
	}
}

// Register mounts the outbound action routes.
func (h *MessagesHandler) Register(e *echo.Echo) {
	e.POST("/bots/:platform/:appID/messages", h.Send)
	e.PUT("/bots/:platform/:appID/messages/:messageID", h.Edit)
	e.POST("/bots/:platform/:appID/typing", h.Typing)
	e.DELETE("/bots/:platform/:appID/messages/:messageID/reactions/:emoji", h.RemoveReaction)
}

type sendRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

func (h *MessagesHandler) resolve(c echo.Context) (platform.Messenger, platform.BotConfig, error) {
	p, err := platform.ParsePlatform(c.Param("platform"))
	if err != nil {
		return nil, platform.BotConfig{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	messenger, ok := h.registry.GetMessenger(p)
	if !ok {
		return nil, platform.BotConfig{}, echo.NewHTTPError(http.StatusNotFound, "unknown platform")
	}
	cfg, err := h.store.FindEnabledByApplicationID(c.Request().Context(), p, c.Param("appID"))
	if err != nil {
		if errors.Is(err, platform.ErrConfigNotFound) {
			return nil, platform.BotConfig{}, echo.NewHTTPError(http.StatusNotFound, "bot config not found")
		}
		return nil, platform.BotConfig{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return messenger, cfg, nil
}

// Send posts a message and returns the platform-assigned message ID.
func (h *MessagesHandler) Send(c echo.Context) error {
	messenger, cfg, err := h.resolve(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil || req.Target == "" || req.Text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target and text are required"})
	}
	messageID, err := messenger.SendMessage(c.Request().Context(), cfg, req.Target, req.Text)
	if err != nil {
		return h.actionError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message_id": messageID})
}

// Edit replaces the text of an existing message.
func (h *MessagesHandler) Edit(c echo.Context) error {
	messenger, cfg, err := h.resolve(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil || req.Target == "" || req.Text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target and text are required"})
	}
	if err := messenger.EditMessage(c.Request().Context(), cfg, req.Target, c.Param("messageID"), req.Text); err != nil {
		return h.actionError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Typing triggers the typing indicator.
func (h *MessagesHandler) Typing(c echo.Context) error {
	messenger, cfg, err := h.resolve(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil || req.Target == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target is required"})
	}
	if err := messenger.Typing(c.Request().Context(), cfg, req.Target); err != nil {
		return h.actionError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveReaction removes the bot's own reaction from a message. The target
// channel comes from the target query parameter.
func (h *MessagesHandler) RemoveReaction(c echo.Context) error {
	messenger, cfg, err := h.resolve(c)
	if err != nil {
		return err
	}
	target := c.QueryParam("target")
	if target == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target query parameter is required"})
	}
	if err := messenger.RemoveOwnReaction(c.Request().Context(), cfg, target, c.Param("messageID"), c.Param("emoji")); err != nil {
		return h.actionError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *MessagesHandler) actionError(c echo.Context, err error) error {
	if errors.Is(err, platform.ErrUnsupported) {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "action not supported on this platform"})
	}
	h.logger.Error("outbound action failed", slog.Any("error", err))
	return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
}
