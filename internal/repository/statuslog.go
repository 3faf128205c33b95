package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentops/statuslog/internal/database"
	"github.com/agentops/statuslog/internal/model"
)

// MaxQueryLimit is the ceiling the façade clamps query limits to.
const MaxQueryLimit = 1000

// DefaultQueryLimit applies when a caller does not specify a limit.
const DefaultQueryLimit = 100

// WriteError wraps a store failure during insert.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("storage write failed: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a store failure during query.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("storage read failed: %v", e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// Filter selects which events a query returns. The zero value matches
// everything with the default limit. Only the fixed fields below can
// filter; each maps to a parameterized predicate, never to concatenated
// SQL.
type Filter struct {
	Limit     int
	SessionID string
	AgentName string
}

type predicate struct {
	column string
	value  any
}

func (f Filter) predicates() []predicate {
	var preds []predicate
	if f.SessionID != "" {
		preds = append(preds, predicate{column: "session_id", value: f.SessionID})
	}
	if f.AgentName != "" {
		preds = append(preds, predicate{column: "agent_name", value: f.AgentName})
	}
	return preds
}

// buildQuery renders the SELECT for this filter. Predicate values are
// returned as bind arguments, with the limit always last.
func (f Filter) buildQuery() (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, timestamp, session_id, user_id, agent_name, status_type, message, metadata
		FROM agent_status_logs`)

	preds := f.predicates()
	args := make([]any, 0, len(preds)+1)
	for i, p := range preds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = $%d", p.column, i+1)
		args = append(args, p.value)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	// Stable recent-N ordering: id breaks timestamp ties.
	fmt.Fprintf(&sb, " ORDER BY timestamp DESC, id DESC LIMIT $%d", len(preds)+1)
	args = append(args, limit)

	return sb.String(), args
}

// StatusLogRepository reads and writes agent status events through the
// pool manager. Connections are borrowed per operation and returned on
// every exit path.
type StatusLogRepository struct {
	mgr *database.Manager

	mu          sync.Mutex
	schemaReady bool
}

// NewStatusLogRepository returns a StatusLogRepository on the given pool
// manager.
func NewStatusLogRepository(mgr *database.Manager) *StatusLogRepository {
	return &StatusLogRepository{mgr: mgr}
}

// ready lazily establishes the pool and schema so the first storage
// operation after a degraded startup can still succeed once the database
// becomes reachable.
func (r *StatusLogRepository) ready(ctx context.Context) error {
	if err := r.mgr.EnsureReady(ctx); err != nil {
		return err
	}
	return r.EnsureSchema(ctx)
}

// EnsureSchema applies the schema migrations once per process; repeated
// calls are no-ops after the first success.
func (r *StatusLogRepository) EnsureSchema(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schemaReady {
		return nil
	}
	if err := r.mgr.EnsureSchema(ctx); err != nil {
		return err
	}
	r.schemaReady = true
	return nil
}

// Insert records one status event and returns the store-assigned id.
func (r *StatusLogRepository) Insert(ctx context.Context, ev model.NewStatusEvent) (int64, error) {
	if err := r.ready(ctx); err != nil {
		return 0, &WriteError{Err: err}
	}

	var metadata any
	if len(ev.Metadata) > 0 {
		metadata = ev.Metadata
	}

	var id int64
	err := r.mgr.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO agent_status_logs (session_id, user_id, agent_name, status_type, message, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			ev.SessionID,
			ev.UserID,
			ev.AgentName,
			ev.StatusType,
			ev.Message,
			metadata,
		).Scan(&id)
	})
	if err != nil {
		return 0, &WriteError{Err: err}
	}
	return id, nil
}

// Query returns recent events matching the filter, newest first. The
// result is never nil.
func (r *StatusLogRepository) Query(ctx context.Context, f Filter) ([]model.StatusEvent, error) {
	if err := r.ready(ctx); err != nil {
		return nil, &ReadError{Err: err}
	}

	query, args := f.buildQuery()
	events := make([]model.StatusEvent, 0)
	err := r.mgr.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ev model.StatusEvent
			if err := rows.Scan(
				&ev.ID,
				&ev.Timestamp,
				&ev.SessionID,
				&ev.UserID,
				&ev.AgentName,
				&ev.StatusType,
				&ev.Message,
				&ev.Metadata,
			); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	return events, nil
}
