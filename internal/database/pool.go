package database

import (
	"context"
	"sync"
	"time"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"github.com/agentops/statuslog/internal/config"
)

// Manager owns the process's single connection pool. It is constructed
// once and injected into the repository and the server; there is no
// package-level pool state.
//
// Establishment is lazy and sticky: the first EnsureReady walks the
// resolved candidates and pools against the first one whose liveness
// probe succeeds. Later calls return immediately while a pool exists,
// even if a higher-priority candidate has since become reachable.
type Manager struct {
	cfg    config.DatabaseConfig
	logger zerolog.Logger
	extra  []pgx.QueryTracer

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewManager returns an unconnected Manager. Extra tracers (e.g. the New
// Relic pgx tracer) are chained after the zerolog query tracer on every
// pooled connection.
func NewManager(cfg config.DatabaseConfig, logger zerolog.Logger, extra ...pgx.QueryTracer) *Manager {
	return &Manager{cfg: cfg, logger: logger, extra: extra}
}

// EnsureReady establishes the pool if none exists. Candidates are tried
// strictly in resolver order: a short single-connection probe first, then
// the pool against the same target. When every candidate fails the
// returned error is an *UnavailableError carrying each attempt.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		return nil
	}

	var attempts []CandidateError
	for _, cand := range ResolveCandidates(m.cfg) {
		if err := m.probe(ctx, cand); err != nil {
			m.logger.Warn().
				Str("source", string(cand.Source)).
				Str("addr", cand.Addr()).
				Err(err).
				Msg("candidate probe failed")
			attempts = append(attempts, CandidateError{Candidate: cand, Err: err})
			continue
		}
		pool, err := m.connect(ctx, cand)
		if err != nil {
			m.logger.Warn().
				Str("source", string(cand.Source)).
				Str("addr", cand.Addr()).
				Err(err).
				Msg("pool establishment failed")
			attempts = append(attempts, CandidateError{Candidate: cand, Err: err})
			continue
		}
		m.logger.Info().
			Str("source", string(cand.Source)).
			Str("addr", cand.Addr()).
			Int("max_conns", m.cfg.MaxConns).
			Msg("connection pool established")
		m.pool = pool
		return nil
	}
	return &UnavailableError{attempts: attempts}
}

// probe opens a single throwaway connection and pings it under the probe
// timeout. Cheap enough to run against every candidate in turn.
func (m *Manager) probe(ctx context.Context, cand Candidate) error {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.ProbeTimeout)*time.Second)
	defer cancel()

	conn, err := pgx.Connect(probeCtx, cand.URL())
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(probeCtx)
}

func (m *Manager) connect(ctx context.Context, cand Candidate) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cand.URL())
	if err != nil {
		return nil, err
	}
	poolCfg.MinConns = int32(m.cfg.MinConns)
	poolCfg.MaxConns = int32(m.cfg.MaxConns)
	poolCfg.ConnConfig.ConnectTimeout = time.Duration(m.cfg.ConnTimeout) * time.Second

	tracers := []pgx.QueryTracer{&tracelog.TraceLog{
		Logger:   zerologadapter.NewLogger(m.logger),
		LogLevel: tracelog.LogLevelWarn,
	}}
	tracers = append(tracers, m.extra...)
	poolCfg.ConnConfig.Tracer = multitracer.New(tracers...)

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// AcquireFunc borrows one pooled connection for the duration of fn. The
// connection goes back to the pool on every exit path, including panics
// and context cancellation. Callers waiting on an exhausted pool are
// bounded by their own ctx deadline.
func (m *Manager) AcquireFunc(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	if pool == nil {
		return ErrNotReady
	}
	return pool.AcquireFunc(ctx, fn)
}

// Healthy reports whether a pool exists and currently answers a ping.
// Never returns an error: callers report the result as a field.
func (m *Manager) Healthy(ctx context.Context) bool {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	if pool == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.ProbeTimeout)*time.Second)
	defer cancel()
	return pool.Ping(pingCtx) == nil
}

// Stat returns pool statistics, or nil when no pool exists.
func (m *Manager) Stat() *pgxpool.Stat {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return nil
	}
	return m.pool.Stat()
}

// Shutdown closes the pool. Idempotent and safe when no pool was ever
// established.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return
	}
	m.pool.Close()
	m.pool = nil
	m.logger.Info().Msg("connection pool closed")
}
