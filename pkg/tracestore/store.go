package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/agentsim/internal/observability"
	"github.com/harun/agentsim/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNotFound is returned when no trace has the requested eval id
var ErrNotFound = errors.New("trace not found")

// Record is one catalogued golden trace
type Record struct {
	EvalID    string    `json:"eval_id"`
	SessionID string    `json:"session_id"`
	AgentName string    `json:"agent_name"`
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	ToolCalls int       `json:"tool_calls"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOptions filters List
type ListOptions struct {
	AgentName string
	SessionID string
	Limit     int
}

// Store indexes exported traces in SQLite
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path
func Open(path string) (*Store, error) {
	observability.EnsureRegistered()

	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.updateMetric(context.Background())
	log.Debug().Str("path", path).Msg("Trace store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS traces (
			eval_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			path TEXT NOT NULL,
			format TEXT NOT NULL,
			tool_calls INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);
		CREATE INDEX IF NOT EXISTS idx_traces_agent ON traces(agent_name);
		CREATE INDEX IF NOT EXISTS idx_traces_created ON traces(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a record keyed by eval id
func (s *Store) Put(ctx context.Context, rec Record) (err error) {
	if rec.EvalID == "" {
		return errors.New("eval id cannot be empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		tracing.TracerExport,
		"tracestore.put",
		attribute.String("eval_id", rec.EvalID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO traces
			(eval_id, session_id, agent_name, path, format, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.EvalID, rec.SessionID, rec.AgentName, rec.Path, rec.Format, rec.ToolCalls,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store trace %s: %w", rec.EvalID, err)
	}

	s.updateMetric(ctx)
	return nil
}

// Get returns the record for evalID or ErrNotFound
func (s *Store) Get(ctx context.Context, evalID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT eval_id, session_id, agent_name, path, format, tool_calls, created_at
		FROM traces WHERE eval_id = ?`, evalID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, evalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trace %s: %w", evalID, err)
	}
	return rec, nil
}

// List returns records newest first
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query := `
		SELECT eval_id, session_id, agent_name, path, format, tool_calls, created_at
		FROM traces WHERE 1 = 1`
	var args []any

	if opts.AgentName != "" {
		query += " AND agent_name = ?"
		args = append(args, opts.AgentName)
	}
	if opts.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	query += " ORDER BY created_at DESC, eval_id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Delete removes the record for evalID. The trace file is left alone.
func (s *Store) Delete(ctx context.Context, evalID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM traces WHERE eval_id = ?", evalID)
	if err != nil {
		return fmt.Errorf("failed to delete trace %s: %w", evalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, evalID)
	}
	s.updateMetric(ctx)
	return nil
}

// PruneBefore removes records created before cutoff together with their
// trace files
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT eval_id, path FROM traces WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to query old traces: %w", err)
	}

	type stale struct{ evalID, path string }
	var old []stale
	for rows.Next() {
		var st stale
		if err := rows.Scan(&st.evalID, &st.path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan trace: %w", err)
		}
		old = append(old, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, st := range old {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if st.path != "" {
			if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
				log.Warn().Str("eval_id", st.evalID).Err(err).Msg("Failed to remove trace file")
			}
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM traces WHERE eval_id = ?", st.evalID); err != nil {
			log.Error().Str("eval_id", st.evalID).Err(err).Msg("Failed to delete trace")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.updateMetric(ctx)
	}
	return deleted, nil
}

// Count returns the number of catalogued traces
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM traces").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) updateMetric(ctx context.Context) {
	n, err := s.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count traces")
		return
	}
	observability.SetTracesStored(n)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec     Record
		created int64
	)
	if err := row.Scan(&rec.EvalID, &rec.SessionID, &rec.AgentName, &rec.Path, &rec.Format, &rec.ToolCalls, &created); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(created)
	return &rec, nil
}
