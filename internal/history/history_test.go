package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/oratio/pkg/speech"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func session(id string, offsetDays int, wpm float64) Session {
	var m speech.MetricsResult
	m.Speaking.WPM = wpm
	m.Clarity.Fillers.Rate = 4
	return Session{ID: id, UserID: "u1", CreatedAt: day0.AddDate(0, 0, offsetDays), Metrics: m}
}

func TestMemStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemStore(session("b", 2, 150), session("a", 0, 120))

	pending := session("c", 1, 140)
	pending.Status = "processing"
	if err := s.Save(ctx, pending); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, Session{}); !errors.Is(err, ErrMissingUser) {
		t.Errorf("Save(no user) = %v, want ErrMissingUser", err)
	}

	got, err := s.CompletedSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("CompletedSessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("CompletedSessions = %+v, want a then b", got)
	}
	if got[0].FillerRate() != 0.04 || got[1].WPM() != 150 {
		t.Errorf("accessors = %v / %v", got[0].FillerRate(), got[1].WPM())
	}

	// Replacing by ID keeps one entry.
	if err := s.Save(ctx, session("a", 0, 125)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ = s.CompletedSessions(ctx, "u1")
	if len(got) != 2 || got[0].WPM() != 125 {
		t.Errorf("after replace = %+v", got)
	}

	if got, _ := s.CompletedSessions(ctx, "nobody"); len(got) != 0 {
		t.Errorf("unknown user returned %d sessions", len(got))
	}
}

func TestMemStoreZeroValue(t *testing.T) {
	t.Parallel()

	var s MemStore
	if err := s.Save(context.Background(), Session{UserID: "u1", CreatedAt: day0}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.CompletedSessions(context.Background(), "u1")
	if len(got) != 1 || got[0].ID == "" || got[0].Status != StatusCompleted {
		t.Errorf("got %+v, want one completed session with generated ID", got)
	}
}

func TestPostgresStore_CompletedSessions(t *testing.T) {
	t.Parallel()

	a := session("a", 0, 120)
	mj, _ := json.Marshal(a.Metrics)
	ij, _ := json.Marshal([]speech.Issue{{Kind: speech.KindFillerWord, Text: "um"}})

	rows := &mockRows{data: [][]any{
		{"a", "u1", StatusCompleted, a.CreatedAt, mj, ij},
	}}
	var gotArgs []any
	db := &mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		if !strings.Contains(sql, "ORDER BY created_at") {
			t.Errorf("query not ordered by time: %s", sql)
		}
		gotArgs = args
		return rows, nil
	}}

	got, err := NewPostgresStore(db).CompletedSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CompletedSessions: %v", err)
	}
	if len(got) != 1 || got[0].WPM() != 120 || len(got[0].Issues) != 1 || got[0].Issues[0].Text != "um" {
		t.Errorf("got %+v", got)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "u1" || gotArgs[1] != StatusCompleted {
		t.Errorf("args = %v", gotArgs)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestPostgresStore_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	tests := []struct {
		name string
		db   *mockDB
	}{
		{"query", &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) { return nil, boom }}},
		{"rows", &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) { return &mockRows{err: boom}, nil }}},
		{"bad json", &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
			return &mockRows{data: [][]any{{"a", "u1", StatusCompleted, day0, []byte("{"), []byte("[]")}}}, nil
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewPostgresStore(tc.db).CompletedSessions(context.Background(), "u1"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	var gotSQL string
	var gotArgs []any
	db := &mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		gotSQL, gotArgs = sql, args
		return pgconn.CommandTag{}, nil
	}}
	s := NewPostgresStore(db)

	if err := s.Save(context.Background(), Session{UserID: "u1", CreatedAt: day0}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.Contains(gotSQL, "ON CONFLICT (id)") {
		t.Errorf("Save is not an upsert: %s", gotSQL)
	}
	if len(gotArgs) != 6 || gotArgs[0] == "" || gotArgs[2] != StatusCompleted {
		t.Errorf("args = %v", gotArgs)
	}
	if string(gotArgs[5].([]byte)) != "[]" {
		t.Errorf("issues = %s, want []", gotArgs[5])
	}

	if err := s.Save(context.Background(), Session{}); !errors.Is(err, ErrMissingUser) {
		t.Errorf("Save(no user) = %v", err)
	}
}

func TestPostgresStore_MigrateAndHealth(t *testing.T) {
	t.Parallel()

	var migrated bool
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			migrated = strings.Contains(sql, "CREATE TABLE IF NOT EXISTS speech_sessions")
			return pgconn.CommandTag{}, nil
		},
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*int)) = 1
				return nil
			}}
		},
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(context.Background()); err != nil || !migrated {
		t.Errorf("Migrate = %v, migrated %v", err, migrated)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	down := NewPostgresStore(&mockDB{})
	if err := down.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck succeeded on a failing database")
	}
}
