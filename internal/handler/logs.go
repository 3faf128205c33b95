package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/agentops/statuslog/internal/config"
	"github.com/agentops/statuslog/internal/model"
	"github.com/agentops/statuslog/internal/repository"
)

// Store is the log-store surface the handlers need.
type Store interface {
	Insert(ctx context.Context, ev model.NewStatusEvent) (int64, error)
	Query(ctx context.Context, f repository.Filter) ([]model.StatusEvent, error)
}

// HealthProber reports whether the storage pool currently answers.
type HealthProber interface {
	Healthy(ctx context.Context) bool
}

// LogStatusRequest is the insert payload. Metadata is optional.
type LogStatusRequest struct {
	SessionID  string          `json:"session_id" validate:"required"`
	UserID     string          `json:"user_id" validate:"required"`
	AgentName  string          `json:"agent_name" validate:"required"`
	StatusType string          `json:"status_type" validate:"required"`
	Message    string          `json:"message" validate:"required"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type LogStatusResponse struct {
	Success bool   `json:"success"`
	LogID   *int64 `json:"log_id"`
	Message string `json:"message"`
}

type QueryLogsResponse struct {
	Success bool                `json:"success"`
	Logs    []model.StatusEvent `json:"logs"`
	Count   int                 `json:"count"`
	Message string              `json:"message,omitempty"`
}

type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	DatabaseConnected bool   `json:"database_connected"`
}

// LogHandler serves the status-log HTTP surface.
type LogHandler struct {
	Store  Store
	Prober HealthProber
	Logger zerolog.Logger

	// ConnectivityURL is probed by the test-connectivity endpoint.
	ConnectivityURL string
}

// Health always returns 200. Storage state is reported as a field, never
// as a failure: an unreachable database must not take the health probe
// down with it.
func (h *LogHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:            "healthy",
		Version:           config.ServiceVersion,
		DatabaseConnected: h.Prober.Healthy(c.Request().Context()),
	})
}

// LogStatus records one status event (POST /log_status).
func (h *LogHandler) LogStatus(c echo.Context) error {
	var req LogStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, LogStatusResponse{
			Success: false,
			Message: "invalid JSON body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, LogStatusResponse{
			Success: false,
			Message: "missing required fields: " + err.Error(),
		})
	}

	id, err := h.Store.Insert(c.Request().Context(), model.NewStatusEvent{
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		AgentName:  req.AgentName,
		StatusType: req.StatusType,
		Message:    req.Message,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.Logger.Error().Err(err).Str("agent", req.AgentName).Msg("log status failed")
		return c.JSON(http.StatusInternalServerError, LogStatusResponse{
			Success: false,
			Message: "failed to log status: " + err.Error(),
		})
	}

	h.Logger.Info().Str("agent", req.AgentName).Str("type", req.StatusType).Int64("log_id", id).Msg("status logged")
	return c.JSON(http.StatusOK, LogStatusResponse{
		Success: true,
		LogID:   &id,
		Message: "status logged successfully with id " + strconv.FormatInt(id, 10),
	})
}

// QueryLogs returns recent events (GET /query_logs). The limit defaults
// to 100 and is clamped into [1, 1000].
func (h *LogHandler) QueryLogs(c echo.Context) error {
	limit := repository.DefaultQueryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, QueryLogsResponse{
				Success: false,
				Logs:    []model.StatusEvent{},
				Message: "invalid limit: " + raw,
			})
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > repository.MaxQueryLimit {
		limit = repository.MaxQueryLimit
	}

	logs, err := h.Store.Query(c.Request().Context(), repository.Filter{
		Limit:     limit,
		SessionID: c.QueryParam("session_id"),
		AgentName: c.QueryParam("agent_name"),
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("query logs failed")
		return c.JSON(http.StatusInternalServerError, QueryLogsResponse{
			Success: false,
			Logs:    []model.StatusEvent{},
			Message: "failed to query logs: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, QueryLogsResponse{
		Success: true,
		Logs:    logs,
		Count:   len(logs),
	})
}

// Root lists the service's endpoints (GET /).
func (h *LogHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": config.ServiceName,
		"version": config.ServiceVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"health":     "/health",
			"log_status": "/log_status",
			"query_logs": "/query_logs",
		},
	})
}

// TestConnectivity reports outbound HTTP and database reachability. Both
// checks are best effort; the endpoint itself always returns 200.
func (h *LogHandler) TestConnectivity(c echo.Context) error {
	ctx := c.Request().Context()
	results := map[string]any{}

	target := h.ConnectivityURL
	if target == "" {
		target = "https://httpbin.org/ip"
	}
	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(httpCtx, http.MethodGet, target, nil)
	if err == nil {
		resp, doErr := http.DefaultClient.Do(req)
		if doErr != nil {
			results["http_connectivity"] = map[string]any{"status": "failed", "error": doErr.Error()}
		} else {
			resp.Body.Close()
			results["http_connectivity"] = map[string]any{"status": "success", "code": resp.StatusCode}
		}
	} else {
		results["http_connectivity"] = map[string]any{"status": "failed", "error": err.Error()}
	}

	if h.Prober.Healthy(ctx) {
		results["database_connectivity"] = map[string]any{"status": "success"}
	} else {
		results["database_connectivity"] = map[string]any{"status": "failed"}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"results":   results,
	})
}
