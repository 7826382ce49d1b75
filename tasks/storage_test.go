package tasks

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shaharia-lab/cate/webapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState(sessionID string, jobID int64, status webapi.JobStatus) TaskState {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return TaskState{
		SessionID: sessionID,
		JobID:     jobID,
		Title:     "Load data sources",
		Method:    "get_data_sources",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// storageContract runs the behavior every Storage must share.
func storageContract(t *testing.T, storage Storage) {
	ctx := context.Background()

	worked, total := 2.0, 8.0
	running := sampleState("s1", 3, webapi.JobInProgress)
	running.Progress = &webapi.Progress{JobID: 3, Message: "reading", Worked: &worked, Total: &total}
	require.NoError(t, storage.Save(ctx, running))
	require.NoError(t, storage.Save(ctx, sampleState("s1", 1, webapi.JobSubmitted)))
	require.NoError(t, storage.Save(ctx, sampleState("s2", 1, webapi.JobDone)))

	got, err := storage.Get(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, webapi.JobInProgress, got.Status)
	require.NotNil(t, got.Progress)
	assert.Equal(t, "reading", got.Progress.Message)
	assert.Equal(t, 0.25, got.Progress.Fraction())
	assert.Equal(t, int64(3), got.Progress.JobID)

	failed := running
	failed.Status = webapi.JobFailed
	failed.Failure = &webapi.Failure{Code: 123, Message: "boom"}
	failed.UpdatedAt = running.UpdatedAt.Add(time.Minute)
	require.NoError(t, storage.Save(ctx, failed))

	got, err = storage.Get(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, webapi.JobFailed, got.Status)
	require.NotNil(t, got.Failure)
	assert.Equal(t, 123, got.Failure.Code)
	assert.WithinDuration(t, running.CreatedAt, got.CreatedAt, time.Second)
	assert.WithinDuration(t, failed.UpdatedAt, got.UpdatedAt, time.Second)

	states, err := storage.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, int64(1), states[0].JobID)
	assert.Equal(t, int64(3), states[1].JobID)

	all, err := storage.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = storage.Get(ctx, "s3", 1)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	require.NoError(t, storage.Delete(ctx, "s1", 3))
	assert.ErrorIs(t, storage.Delete(ctx, "s1", 3), ErrTaskNotFound)
	_, err = storage.Get(ctx, "s1", 3)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestInMemoryStorage(t *testing.T) {
	storageContract(t, NewInMemoryStorage())
}

func TestSQLiteStorage(t *testing.T) {
	storage, err := OpenSQLiteStorage(context.Background(), filepath.Join(t.TempDir(), "tasks.db"), nil)
	require.NoError(t, err)
	defer storage.Close()

	storageContract(t, storage)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	storage, err := OpenSQLiteStorage(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, storage.Save(ctx, sampleState("s1", 5, webapi.JobDone)))
	require.NoError(t, storage.Close())

	storage, err = OpenSQLiteStorage(ctx, path, nil)
	require.NoError(t, err)
	defer storage.Close()

	got, err := storage.Get(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Equal(t, webapi.JobDone, got.Status)
}

func TestSQLiteStorage_InvalidPath(t *testing.T) {
	storage, err := OpenSQLiteStorage(context.Background(), "/non/existent/directory/tasks.db", nil)
	assert.Error(t, err)
	assert.Nil(t, storage)
}

func expectPostgresSchema(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS tasks")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_tasks_updated_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
}

func TestPostgresStorage(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	expectPostgresSchema(mock)
	storage, err := NewPostgresStorage(ctx, db, nil)
	require.NoError(t, err)

	state := sampleState("s1", 7, webapi.JobFailed)
	state.Failure = &webapi.Failure{Code: 123, Message: "boom"}

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (session_id, job_id) DO UPDATE")).
		WithArgs("s1", int64(7), state.Title, state.Method, "FAILED", nil, `{"code":123,"message":"boom"}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, storage.Save(ctx, state))

	columns := []string{"session_id", "job_id", "title", "method", "status", "progress", "failure", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE session_id = $1 AND job_id = $2")).
		WithArgs("s1", int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s1", int64(7), state.Title, state.Method, "FAILED", nil, `{"code":123,"message":"boom"}`, state.CreatedAt, state.UpdatedAt))
	got, err := storage.Get(ctx, "s1", 7)
	require.NoError(t, err)
	assert.Equal(t, webapi.JobFailed, got.Status)
	assert.Nil(t, got.Progress)
	assert.Equal(t, 123, got.Failure.Code)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE session_id = $1 AND job_id = $2")).
		WithArgs("s1", int64(8)).
		WillReturnRows(sqlmock.NewRows(columns))
	_, err = storage.Get(ctx, "s1", 8)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE session_id = $1 ORDER BY job_id")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s1", int64(7), state.Title, state.Method, "BOGUS", nil, nil, state.CreatedAt, state.UpdatedAt))
	_, err = storage.List(ctx, "s1")
	assert.ErrorContains(t, err, "unknown job status")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tasks WHERE session_id = $1 AND job_id = $2")).
		WithArgs("s1", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, storage.Delete(ctx, "s1", 9), ErrTaskNotFound)

	mock.ExpectClose()
	require.NoError(t, storage.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SchemaFailureClosesDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)
	mock.ExpectRollback()
	mock.ExpectClose()

	storage, err := NewPostgresStorage(context.Background(), db, nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, storage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialect_Bind(t *testing.T) {
	query := "SELECT 1 FROM tasks WHERE a = ? AND b = ?"

	assert.Equal(t, query, sqliteDialect.bind(query))
	assert.Equal(t, "SELECT 1 FROM tasks WHERE a = $1 AND b = $2", postgresDialect.bind(query))
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	storage, closeFn, err := NewStorage(ctx, "", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStorage{}, storage)
	assert.NoError(t, closeFn())

	storage, closeFn, err = NewStorage(ctx, DriverSQLite, filepath.Join(t.TempDir(), "tasks.db"), nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStorage{}, storage)
	assert.NoError(t, closeFn())

	_, _, err = NewStorage(ctx, "mongodb", "", nil)
	assert.ErrorContains(t, err, "unsupported task storage driver")
}
