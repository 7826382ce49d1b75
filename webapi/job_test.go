package webapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_String(t *testing.T) {
	tests := []struct {
		status   JobStatus
		want     string
		terminal bool
	}{
		{JobNew, "NEW", false},
		{JobSubmitted, "SUBMITTED", false},
		{JobInProgress, "IN_PROGRESS", false},
		{JobDone, "DONE", true},
		{JobFailed, "FAILED", true},
		{JobCancelled, "CANCELLED", true},
		{JobStatus(42), "UNKNOWN", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())

			parsed, err := ParseJobStatus(tt.want)
			if tt.want == "UNKNOWN" {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, parsed)
		})
	}
}

func TestJob_RequestIsKept(t *testing.T) {
	client, _, _ := setupTestClient(t)

	params := map[string]any{"dataStoreId": "esa_cci_odp"}
	job := client.Call("get_data_sources", params, nil)

	req := job.Request()
	assert.Equal(t, int64(0), req.ID)
	assert.Equal(t, "get_data_sources", req.Method)
	assert.Equal(t, params, req.Params)
}

func TestJob_ThenAfterSettleRunsImmediately(t *testing.T) {
	client, mock, _ := setupTestClient(t)
	job := client.Call("foo", []any{}, nil)
	require.NoError(t, mock.EmulateIncomingMessages(map[string]any{"id": 0, "response": "late"}))

	var got json.RawMessage
	job.Then(func(r json.RawMessage) { got = r }, func(*Failure) { t.Error("unexpected reject") })

	assert.JSONEq(t, `"late"`, string(got))
}

func TestJob_ThenChainsContinuations(t *testing.T) {
	client, mock, _ := setupTestClient(t)

	var order []string
	client.Call("foo", []any{}, nil).
		Then(func(json.RawMessage) { order = append(order, "first") }, nil).
		Then(func(json.RawMessage) { order = append(order, "second") }, nil).
		Then(nil, func(*Failure) { order = append(order, "never") })

	require.NoError(t, mock.EmulateIncomingMessages(map[string]any{"id": 0, "response": 1}))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestJob_WaitHonorsContext(t *testing.T) {
	client, _, _ := setupTestClient(t)
	job := client.Call("forever", []any{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := job.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, JobSubmitted, job.Status())
}

func TestJob_NotificationsAfterTerminalAreIgnored(t *testing.T) {
	job := newJob(nil, Request{ID: 7, Method: "foo"}, nil, nil)

	assert.True(t, job.notifyFailure(&Failure{Code: CancelledCode, Message: "cancelled"}))
	assert.False(t, job.notifyDone(json.RawMessage(`1`)))
	assert.False(t, job.notifyProgress(Progress{}))
	assert.False(t, job.notifyFailure(&Failure{Code: 1, Message: "again"}))

	assert.Equal(t, JobCancelled, job.Status())
}

func TestJob_MarkSubmittedDoesNotRegress(t *testing.T) {
	job := newJob(nil, Request{ID: 1}, nil, nil)
	job.notifyProgress(Progress{})
	job.markSubmitted()

	assert.Equal(t, JobInProgress, job.Status())
}

func TestProgress_Fraction(t *testing.T) {
	worked, total, zero := 3.0, 4.0, 0.0

	assert.Equal(t, 0.75, Progress{Worked: &worked, Total: &total}.Fraction())
	assert.Equal(t, -1.0, Progress{Worked: &worked}.Fraction())
	assert.Equal(t, -1.0, Progress{Worked: &worked, Total: &zero}.Fraction())
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Code: 999, Message: "cancelled"}

	assert.Equal(t, "webapi: cancelled (code 999)", f.Error())
	assert.True(t, f.IsCancellation())
	assert.False(t, (&Failure{Code: 1}).IsCancellation())
}
