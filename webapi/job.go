package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shaharia-lab/cate/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus int

const (
	JobNew JobStatus = iota
	JobSubmitted
	JobInProgress
	JobDone
	JobFailed
	JobCancelled
)

func (s JobStatus) String() string {
	switch s {
	case JobNew:
		return "NEW"
	case JobSubmitted:
		return "SUBMITTED"
	case JobInProgress:
		return "IN_PROGRESS"
	case JobDone:
		return "DONE"
	case JobFailed:
		return "FAILED"
	case JobCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ParseJobStatus is the inverse of JobStatus.String.
func ParseJobStatus(s string) (JobStatus, error) {
	for status := JobNew; status <= JobCancelled; status++ {
		if status.String() == s {
			return status, nil
		}
	}
	return JobNew, fmt.Errorf("unknown job status %q", s)
}

// IsTerminal reports whether no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

type (
	// ProgressHandler is notified for every progress frame of a job.
	ProgressHandler func(progress Progress)
	// ResponseHandler receives the response payload of a successful job.
	ResponseHandler func(response json.RawMessage)
	// FailureHandler receives the failure of a failed or cancelled job.
	FailureHandler func(failure *Failure)
)

type continuation struct {
	onResolve ResponseHandler
	onReject  FailureHandler
}

// Job is the client-side handle of one remote call. It carries the request,
// its status and control operations, and is also the future of the call's
// result: use Done, Wait or Then to consume it.
type Job struct {
	client  *Client
	request Request
	span    trace.Span

	mu            sync.Mutex
	status        JobStatus
	onProgress    ProgressHandler
	continuations []continuation
	response      json.RawMessage
	failure       *Failure
	done          chan struct{}
}

func newJob(client *Client, request Request, onProgress ProgressHandler, span trace.Span) *Job {
	return &Job{
		client:     client,
		request:    request,
		span:       span,
		status:     JobNew,
		onProgress: onProgress,
		done:       make(chan struct{}),
	}
}

// ID returns the request id of the job.
func (j *Job) ID() int64 {
	return j.request.ID
}

// Request returns the request the job was created for.
func (j *Job) Request() Request {
	return j.request
}

// Status returns the most recent status of the job.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// IsCancelled reports whether the server acknowledged cancellation of the job.
func (j *Job) IsCancelled() bool {
	return j.Status() == JobCancelled
}

// Cancel asks the server to cancel this job. The returned Job tracks the
// cancellation request itself; this job only becomes JobCancelled if the
// server answers it with an error of code CancelledCode.
func (j *Job) Cancel(onResolve ResponseHandler, onReject FailureHandler) *Job {
	return j.client.CancelJob(j.request.ID).Then(onResolve, onReject)
}

// Done is closed once the job reached a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job settles or ctx is done. A failed or cancelled job
// returns its *Failure as error.
func (j *Job) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failure != nil {
		return nil, j.failure
	}
	return j.response, nil
}

// Then registers continuations for the job's result. They run once when the
// job settles, or immediately if it already has. Either handler may be nil.
func (j *Job) Then(onResolve ResponseHandler, onReject FailureHandler) *Job {
	if onResolve == nil && onReject == nil {
		return j
	}

	j.mu.Lock()
	if !j.status.IsTerminal() {
		j.continuations = append(j.continuations, continuation{onResolve: onResolve, onReject: onReject})
		j.mu.Unlock()
		return j
	}
	response, failure := j.response, j.failure
	j.mu.Unlock()

	j.runContinuation(continuation{onResolve: onResolve, onReject: onReject}, response, failure)
	return j
}

func (j *Job) markSubmitted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == JobNew {
		j.status = JobSubmitted
	}
}

func (j *Job) notifyProgress(progress Progress) bool {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	j.status = JobInProgress
	handler := j.onProgress
	j.mu.Unlock()

	if handler != nil {
		progress.JobID = j.request.ID
		func() {
			defer j.recoverHandler("progress handler")
			handler(progress)
		}()
	}
	return true
}

func (j *Job) notifyDone(response json.RawMessage) bool {
	return j.settle(JobDone, response, nil)
}

func (j *Job) notifyFailure(failure *Failure) bool {
	status := JobFailed
	if failure.IsCancellation() {
		status = JobCancelled
	}
	return j.settle(status, nil, failure)
}

func (j *Job) settle(status JobStatus, response json.RawMessage, failure *Failure) bool {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	j.status = status
	j.response = response
	j.failure = failure
	pending := j.continuations
	j.continuations = nil
	close(j.done)
	j.mu.Unlock()

	j.endSpan(status, failure)

	for _, c := range pending {
		j.runContinuation(c, response, failure)
	}
	return true
}

func (j *Job) endSpan(status JobStatus, failure *Failure) {
	if j.span == nil {
		return
	}
	j.span.SetAttributes(attribute.String("webapi.job.status", status.String()))
	if failure != nil {
		j.span.SetAttributes(attribute.Int("webapi.error.code", failure.Code))
		if status == JobFailed {
			j.span.RecordError(failure)
			j.span.SetStatus(codes.Error, failure.Message)
		}
	}
	j.span.End()
}

// runContinuation isolates c, so a panicking handler does not keep the
// continuations registered after it from running.
func (j *Job) runContinuation(c continuation, response json.RawMessage, failure *Failure) {
	defer j.recoverHandler("continuation")

	if failure != nil {
		if c.onReject != nil {
			c.onReject(failure)
		}
		return
	}
	if c.onResolve != nil {
		c.onResolve(response)
	}
}

func (j *Job) recoverHandler(what string) {
	if r := recover(); r != nil {
		j.logger().Errorf("Recovered from panic in %s of job %d (%s): %v", what, j.request.ID, j.request.Method, r)
	}
}

func (j *Job) logger() observability.Logger {
	if j.client == nil {
		return observability.NewNullLogger()
	}
	return j.client.logger
}
