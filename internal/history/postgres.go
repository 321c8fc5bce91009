package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/oratio/pkg/speech"
)

// Schema is the SQL DDL for the speech_sessions table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS speech_sessions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'completed',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    metrics     JSONB NOT NULL DEFAULT '{}',
    issues      JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_speech_sessions_user ON speech_sessions(user_id, created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Metrics and issues are
// stored as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects a pool to dsn, pings it and runs [PostgresStore.Migrate].
// The returned close function releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("history: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// HealthCheck verifies the database answers queries.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("history: ping: %w", err)
	}
	return nil
}

// Save implements [Recorder.Save], inserting or replacing the session.
func (s *PostgresStore) Save(ctx context.Context, sess Session) error {
	if sess.UserID == "" {
		return ErrMissingUser
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = StatusCompleted
	}

	metricsJSON, err := json.Marshal(sess.Metrics)
	if err != nil {
		return fmt.Errorf("history: marshal metrics: %w", err)
	}
	issues := sess.Issues
	if issues == nil {
		issues = []speech.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("history: marshal issues: %w", err)
	}

	const query = `
		INSERT INTO speech_sessions (id, user_id, status, created_at, metrics, issues)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			metrics = EXCLUDED.metrics,
			issues = EXCLUDED.issues`

	if _, err := s.db.Exec(ctx, query, sess.ID, sess.UserID, sess.Status, sess.CreatedAt, metricsJSON, issuesJSON); err != nil {
		return fmt.Errorf("history: save %q: %w", sess.ID, err)
	}
	return nil
}

// CompletedSessions implements [Provider.CompletedSessions].
func (s *PostgresStore) CompletedSessions(ctx context.Context, userID string) ([]Session, error) {
	const query = `
		SELECT id, user_id, status, created_at, metrics, issues
		FROM speech_sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, userID, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("history: list %q: %w", userID, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var metricsJSON, issuesJSON []byte
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt, &metricsJSON, &issuesJSON); err != nil {
			return nil, fmt.Errorf("history: list scan: %w", err)
		}
		if err := json.Unmarshal(metricsJSON, &sess.Metrics); err != nil {
			return nil, fmt.Errorf("history: unmarshal metrics of %q: %w", sess.ID, err)
		}
		if err := json.Unmarshal(issuesJSON, &sess.Issues); err != nil {
			return nil, fmt.Errorf("history: unmarshal issues of %q: %w", sess.ID, err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list %q: %w", userID, err)
	}
	return out, nil
}
