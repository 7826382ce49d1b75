package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/shaharia-lab/cate/webapi"
)

// ErrTaskNotFound is returned when no task is stored for a session and job id.
var ErrTaskNotFound = errors.New("task not found")

// TaskState is the last known state of one tracked job.
type TaskState struct {
	SessionID string
	JobID     int64
	Title     string
	Method    string
	Status    webapi.JobStatus
	Progress  *webapi.Progress
	Failure   *webapi.Failure
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Storage persists task states. Job ids are only unique per client session,
// so every state is keyed by session id and job id.
type Storage interface {
	// Save inserts or replaces the state of a task
	Save(ctx context.Context, state TaskState) error

	// Get returns the state of a single task or ErrTaskNotFound
	Get(ctx context.Context, sessionID string, jobID int64) (*TaskState, error)

	// List returns the tasks of a session ordered by job id. An empty
	// session id lists every stored task.
	List(ctx context.Context, sessionID string) ([]TaskState, error)

	// Delete removes a task
	Delete(ctx context.Context, sessionID string, jobID int64) error
}
