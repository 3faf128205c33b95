package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentops/statuslog/internal/config"
	"github.com/agentops/statuslog/internal/model"
)

// DirectStore is the fallback path: insert straight into storage. The
// status-log repository satisfies it.
type DirectStore interface {
	Insert(ctx context.Context, ev model.NewStatusEvent) (int64, error)
}

// DeliveryError means both transports failed for one event. The direct
// path is the authoritative fallback, so Error and Unwrap expose its
// failure; Remote keeps the remote-path error for diagnostics.
type DeliveryError struct {
	Remote error
	Direct error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Direct)
}

func (e *DeliveryError) Unwrap() error { return e.Direct }

type remoteResponse struct {
	Success bool   `json:"success"`
	LogID   *int64 `json:"log_id"`
	Message string `json:"message"`
}

// Dispatcher delivers one status event at a time: remote HTTP first when
// configured, then the direct storage path. One shot, at most two
// attempts, no backoff, no retry of the same transport.
type Dispatcher struct {
	remoteURL     string
	remoteEnabled bool
	httpClient    *http.Client
	tokens        TokenSource
	direct        DirectStore
	logger        zerolog.Logger
}

// NewDispatcher builds a Dispatcher from the remote-transport config.
// tokens may be nil, in which case remote requests go unauthenticated.
func NewDispatcher(cfg config.RemoteConfig, direct DirectStore, tokens TokenSource, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		remoteURL:     strings.TrimRight(cfg.URL, "/"),
		remoteEnabled: cfg.Enabled && cfg.URL != "",
		httpClient:    &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		tokens:        tokens,
		direct:        direct,
		logger:        logger,
	}
}

// Dispatch delivers one event and returns the store-assigned id. When the
// remote path fails for any reason it falls back to the direct path
// immediately; the remote error is only surfaced if the direct path fails
// too, wrapped in a *DeliveryError.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.NewStatusEvent) (int64, error) {
	var remoteErr error
	if d.remoteEnabled {
		id, err := d.viaRemote(ctx, ev)
		if err == nil {
			return id, nil
		}
		remoteErr = err
		d.logger.Warn().Err(err).Msg("remote delivery failed, falling back to direct storage")
	}

	id, err := d.direct.Insert(ctx, ev)
	if err != nil {
		return 0, &DeliveryError{Remote: remoteErr, Direct: err}
	}
	return id, nil
}

func (d *Dispatcher) viaRemote(ctx context.Context, ev model.NewStatusEvent) (int64, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.remoteURL+"/log_status", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	if d.tokens != nil {
		token, err := d.tokens.Token(ctx)
		if err != nil {
			// Best effort: send unauthenticated and let the remote decide.
			d.logger.Debug().Err(err).Msg("token acquisition failed, sending unauthenticated")
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("remote returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode remote response: %w", err)
	}
	if !out.Success || out.LogID == nil {
		return 0, fmt.Errorf("remote rejected event: %s", out.Message)
	}
	return *out.LogID, nil
}
