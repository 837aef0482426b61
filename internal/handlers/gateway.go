package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hivegate-io/hivegate/internal/gateway"
)

// GatewayHandler exposes the cron trigger and the lifecycle control endpoint.
type GatewayHandler struct {
	orc       *gateway.Orchestrator
	lifecycle *gateway.Lifecycle
	budget    time.Duration
	logger    *slog.Logger
}

// NewGatewayHandler creates the gateway control handler. budget is the
// wall-clock budget applied to cycles triggered over HTTP.
func NewGatewayHandler(log *slog.Logger, orc *gateway.Orchestrator, lifecycle *gateway.Lifecycle, budget time.Duration) *GatewayHandler {
	return &GatewayHandler{
		orc:       orc,
		lifecycle: lifecycle,
		budget:    budget,
		logger:    log.With(slog.String("handler", "gateway")),
	}
}

// Register mounts the gateway control routes.
func (h *GatewayHandler) Register(e *echo.Echo) {
	e.GET("/gateway/cycle", h.RunCycle)
	e.POST("/gateway/control", h.Control)
	e.GET("/gateway/status", h.Status)
}

// RunCycle triggers one orchestrator cycle. The external cron scheduler calls
// this; the cycle's poll loop keeps running in the background after the
// response is sent.
func (h *GatewayHandler) RunCycle(c echo.Context) error {
	summary, err := h.orc.RunCycle(c.Request().Context(), h.budget)
	if err != nil {
		if errors.Is(err, gateway.ErrStopped) {
			return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		}
		h.logger.Error("cycle failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

type controlRequest struct {
	Restart bool `json:"restart"`
}

type controlResponse struct {
	Status string `json:"status"`
}

// Control ensures the background gateway service is running, or restarts it
// when the body carries {"restart": true}. Both paths are idempotent.
func (h *GatewayHandler) Control(c echo.Context) error {
	var req controlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Restart {
		if err := h.lifecycle.Restart(c.Request().Context()); err != nil {
			h.logger.Error("restart failed", slog.Any("error", err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, controlResponse{Status: "restarted"})
	}
	if err := h.lifecycle.EnsureRunning(c.Request().Context()); err != nil {
		h.logger.Error("start failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, controlResponse{Status: "started"})
}

// Status reports whether the background service is running and which handles
// are currently open.
func (h *GatewayHandler) Status(c echo.Context) error {
	handles := h.orc.RunningHandles()
	bots := make([]map[string]any, 0, len(handles))
	for _, handle := range handles {
		bots = append(bots, map[string]any{
			"platform":       handle.Platform(),
			"application_id": handle.ApplicationID(),
			"state":          handle.State(),
			"started_at":     handle.StartedAt(),
			"deadline":       handle.Deadline(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.lifecycle.Running(),
		"bots":    bots,
	})
}
