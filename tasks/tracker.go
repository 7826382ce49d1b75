// Package tasks keeps track of the jobs a webapi client submits: what they
// are called, how far they got and how they ended.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaharia-lab/cate/observability"
	"github.com/shaharia-lab/cate/webapi"
)

// CallFunc issues a call with the given progress handler and returns its Job.
type CallFunc func(onProgress webapi.ProgressHandler) *webapi.Job

// Tracker records a TaskState for every job issued through Track and writes
// each change to its Storage.
type Tracker struct {
	sessionID string
	storage   Storage
	logger    observability.Logger

	mu     sync.Mutex
	states map[int64]*TaskState
	jobs   map[int64]*webapi.Job
}

// NewTracker returns a tracker storing states under sessionID, usually the
// id of the client the jobs are issued on. A nil storage keeps states in
// memory only.
func NewTracker(sessionID string, storage Storage, logger observability.Logger) *Tracker {
	if storage == nil {
		storage = NewInMemoryStorage()
	}
	if logger == nil {
		logger = &observability.NullLogger{}
	}
	return &Tracker{
		sessionID: sessionID,
		storage:   storage,
		logger:    logger.WithFields(map[string]interface{}{"session_id": sessionID}),
		states:    make(map[int64]*TaskState),
		jobs:      make(map[int64]*webapi.Job),
	}
}

// Track issues call and follows the resulting job until it settles. States are
// saved with a context that outlives the cancellation of ctx.
func (t *Tracker) Track(ctx context.Context, title string, call CallFunc) *webapi.Job {
	ctx = context.WithoutCancel(ctx)

	job := call(func(progress webapi.Progress) {
		t.update(ctx, progress.JobID, func(state *TaskState) {
			state.Status = webapi.JobInProgress
			state.Progress = &progress
		})
	})

	t.mu.Lock()
	t.jobs[job.ID()] = job
	t.mu.Unlock()

	method := job.Request().Method
	t.update(ctx, job.ID(), func(state *TaskState) {
		state.Title = title
		state.Method = method
		if state.Status == webapi.JobNew {
			state.Status = webapi.JobSubmitted
		}
	})

	job.Then(func(json.RawMessage) {
		t.settle(ctx, job, nil)
	}, func(failure *webapi.Failure) {
		t.settle(ctx, job, failure)
	})

	return job
}

// Cancel requests cancellation of a running task. The returned job tracks
// the cancellation request.
func (t *Tracker) Cancel(jobID int64) (*webapi.Job, error) {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("task %d is not running: %w", jobID, ErrTaskNotFound)
	}
	return job.Cancel(nil, nil), nil
}

// Get returns the current state of a task.
func (t *Tracker) Get(jobID int64) (TaskState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[jobID]
	if !ok {
		return TaskState{}, false
	}
	return *state, true
}

// List returns all tasks ordered by job id.
func (t *Tracker) List() []TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()

	states := make([]TaskState, 0, len(t.states))
	for _, state := range t.states {
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].JobID < states[j].JobID })
	return states
}

// Forget removes a finished task from the tracker and its storage.
func (t *Tracker) Forget(ctx context.Context, jobID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[jobID]
	if !ok {
		return ErrTaskNotFound
	}
	if !state.Status.IsTerminal() {
		return fmt.Errorf("task %d is still %s", jobID, state.Status)
	}

	if err := t.storage.Delete(ctx, t.sessionID, jobID); err != nil {
		return fmt.Errorf("failed to forget task %d: %w", jobID, err)
	}
	delete(t.states, jobID)
	return nil
}

func (t *Tracker) settle(ctx context.Context, job *webapi.Job, failure *webapi.Failure) {
	t.mu.Lock()
	delete(t.jobs, job.ID())
	t.mu.Unlock()

	status := job.Status()
	t.update(ctx, job.ID(), func(state *TaskState) {
		state.Status = status
		state.Failure = failure
	})

	fields := map[string]interface{}{"job_id": job.ID(), "status": status.String()}
	if failure != nil {
		t.logger.WithFields(fields).WithErr(failure).Info("Task finished")
		return
	}
	t.logger.WithFields(fields).Info("Task finished")
}

func (t *Tracker) update(ctx context.Context, jobID int64, mutate func(state *TaskState)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	state, ok := t.states[jobID]
	if !ok {
		state = &TaskState{
			SessionID: t.sessionID,
			JobID:     jobID,
			Status:    webapi.JobNew,
			CreatedAt: now,
		}
		t.states[jobID] = state
	}
	mutate(state)
	state.UpdatedAt = now

	if err := t.storage.Save(ctx, *state); err != nil {
		t.logger.WithErr(err).WithFields(map[string]interface{}{"job_id": jobID}).Error("Failed to save task state")
	}
}
