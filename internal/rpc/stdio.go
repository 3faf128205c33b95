// Package rpc exposes the status-log operations over a line-delimited
// JSON protocol on a byte stream, typically stdin/stdout. Each request
// line is one JSON object; each response line answers the request with
// the same id.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/agentops/statuslog/internal/model"
	"github.com/agentops/statuslog/internal/repository"
)

// Store is the log-store surface the RPC server needs.
type Store interface {
	Insert(ctx context.Context, ev model.NewStatusEvent) (int64, error)
	Query(ctx context.Context, f repository.Filter) ([]model.StatusEvent, error)
}

// HealthProber reports whether the storage pool currently answers.
type HealthProber interface {
	Healthy(ctx context.Context) bool
}

// Request is one incoming line. ID is echoed back verbatim.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one outgoing line.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type logStatusParams struct {
	SessionID  string          `json:"session_id" validate:"required"`
	UserID     string          `json:"user_id" validate:"required"`
	AgentName  string          `json:"agent_name" validate:"required"`
	StatusType string          `json:"status_type" validate:"required"`
	Message    string          `json:"message" validate:"required"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type queryLogsParams struct {
	Limit     int    `json:"limit"`
	SessionID string `json:"session_id"`
	AgentName string `json:"agent_name"`
}

// Server answers requests sequentially in arrival order.
type Server struct {
	Store    Store
	Prober   HealthProber
	Logger   zerolog.Logger
	validate *validator.Validate
	once     sync.Once
}

// Run reads request lines from r until EOF or ctx cancellation, writing
// one response line per request. Malformed lines get an error response
// with a null id rather than terminating the loop.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	s.once.Do(func() { s.validate = validator.New() })

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(Response{Error: "malformed request: " + err.Error()}); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(s.handle(ctx, req)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	switch req.Method {
	case "log_status":
		var p logStatusParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = "invalid params: " + err.Error()
			return resp
		}
		if err := s.validate.Struct(&p); err != nil {
			resp.Error = "missing required fields: " + err.Error()
			return resp
		}
		id, err := s.Store.Insert(ctx, model.NewStatusEvent{
			SessionID:  p.SessionID,
			UserID:     p.UserID,
			AgentName:  p.AgentName,
			StatusType: p.StatusType,
			Message:    p.Message,
			Metadata:   p.Metadata,
		})
		if err != nil {
			s.Logger.Error().Err(err).Msg("rpc log_status failed")
			resp.Error = err.Error()
			return resp
		}
		resp.Result = map[string]any{"log_id": id}

	case "query_logs":
		p := queryLogsParams{Limit: repository.DefaultQueryLimit}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				resp.Error = "invalid params: " + err.Error()
				return resp
			}
		}
		if p.Limit < 1 {
			p.Limit = 1
		}
		if p.Limit > repository.MaxQueryLimit {
			p.Limit = repository.MaxQueryLimit
		}
		logs, err := s.Store.Query(ctx, repository.Filter{
			Limit:     p.Limit,
			SessionID: p.SessionID,
			AgentName: p.AgentName,
		})
		if err != nil {
			s.Logger.Error().Err(err).Msg("rpc query_logs failed")
			resp.Error = err.Error()
			return resp
		}
		resp.Result = map[string]any{"logs": logs, "count": len(logs)}

	case "health":
		resp.Result = map[string]any{
			"status":             "healthy",
			"database_connected": s.Prober.Healthy(ctx),
		}

	default:
		resp.Error = "unknown method: " + req.Method
	}
	return resp
}
