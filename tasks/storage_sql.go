package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shaharia-lab/cate/observability"
	"github.com/shaharia-lab/cate/webapi"
)

type dialect struct {
	name     string
	schema   []string
	numbered bool // $1, $2, ... placeholders instead of ?
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			session_id TEXT NOT NULL,
			job_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			progress TEXT,
			failure TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, job_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks (updated_at);`,
	},
}

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			session_id TEXT NOT NULL,
			job_id BIGINT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			progress TEXT,
			failure TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, job_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks (updated_at);`,
	},
	numbered: true,
}

// bind rewrites ? placeholders for dialects that number them.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	upsertTaskSQL = `
	INSERT INTO tasks (session_id, job_id, title, method, status, progress, failure, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (session_id, job_id) DO UPDATE SET
		title = excluded.title,
		method = excluded.method,
		status = excluded.status,
		progress = excluded.progress,
		failure = excluded.failure,
		updated_at = excluded.updated_at`

	selectTaskColumns = `SELECT session_id, job_id, title, method, status, progress, failure, created_at, updated_at FROM tasks`
)

// SQLStorage stores task states in a SQL database. Use NewSQLiteStorage or
// NewPostgresStorage to create one.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	logger  observability.Logger
}

func newSQLStorage(ctx context.Context, db *sql.DB, d dialect, logger observability.Logger) (*SQLStorage, error) {
	if logger == nil {
		logger = &observability.NullLogger{}
	}
	storage := &SQLStorage{
		db:      db,
		dialect: d,
		logger:  logger.WithFields(map[string]interface{}{"storage": d.name}),
	}

	if err := storage.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return storage, nil
}

func (s *SQLStorage) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema init: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range s.dialect.schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tasks schema: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLStorage) Save(ctx context.Context, state TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress, err := nullableJSON(state.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal task progress: %w", err)
	}
	failure, err := nullableJSON(state.Failure)
	if err != nil {
		return fmt.Errorf("failed to marshal task failure: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		s.dialect.bind(upsertTaskSQL),
		state.SessionID,
		state.JobID,
		state.Title,
		state.Method,
		state.Status.String(),
		progress,
		failure,
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %d: %w", state.JobID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"session_id": state.SessionID,
		"job_id":     state.JobID,
		"status":     state.Status.String(),
	}).Debug("Task state saved")
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, sessionID string, jobID int64) (*TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := s.dialect.bind(selectTaskColumns + ` WHERE session_id = ? AND job_id = ?`)
	state, err := scanTask(s.db.QueryRowContext(ctx, query, sessionID, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to query task %d: %w", jobID, err)
	}
	return state, nil
}

func (s *SQLStorage) List(ctx context.Context, sessionID string) ([]TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if sessionID == "" {
		rows, err = s.db.QueryContext(ctx, selectTaskColumns+` ORDER BY session_id, job_id`)
	} else {
		query := s.dialect.bind(selectTaskColumns + ` WHERE session_id = ? ORDER BY job_id`)
		rows, err = s.db.QueryContext(ctx, query, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	states := []TaskState{}
	for rows.Next() {
		state, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		states = append(states, *state)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return states, nil
}

func (s *SQLStorage) Delete(ctx context.Context, sessionID string, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.bind(`DELETE FROM tasks WHERE session_id = ? AND job_id = ?`)
	result, err := s.db.ExecContext(ctx, query, sessionID, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", jobID, err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*TaskState, error) {
	var (
		state             TaskState
		status            string
		progress, failure sql.NullString
	)

	err := row.Scan(
		&state.SessionID,
		&state.JobID,
		&state.Title,
		&state.Method,
		&status,
		&progress,
		&failure,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if state.Status, err = webapi.ParseJobStatus(status); err != nil {
		return nil, err
	}
	if progress.Valid {
		state.Progress = &webapi.Progress{}
		if err := json.Unmarshal([]byte(progress.String), state.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task progress: %w", err)
		}
		state.Progress.JobID = state.JobID
	}
	if failure.Valid {
		state.Failure = &webapi.Failure{}
		if err := json.Unmarshal([]byte(failure.String), state.Failure); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task failure: %w", err)
		}
	}

	return &state, nil
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
