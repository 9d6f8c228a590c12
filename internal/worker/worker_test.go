package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehall/boxoffice/internal/model"
)

type settledJob struct {
	jobID          uint64
	state          string // completed, retried, failed
	executionCount int
	nextRetryAt    time.Time
	errMsg         string
}

// fakeQueue serves a fixed set of jobs once and records every settlement.
type fakeQueue struct {
	mu      sync.Mutex
	jobs    []model.Job
	served  bool
	settled []settledJob
}

func (q *fakeQueue) DequeueBatch(ctx context.Context, limit int) ([]model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.served {
		return nil, nil
	}
	q.served = true
	if len(q.jobs) > limit {
		return q.jobs[:limit], nil
	}
	return q.jobs, nil
}

func (q *fakeQueue) MarkCompleted(ctx context.Context, jobID uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settled = append(q.settled, settledJob{jobID: jobID, state: "completed"})
	return nil
}

func (q *fakeQueue) ScheduleRetry(ctx context.Context, jobID uint64, executionCount int, nextRetryAt time.Time, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settled = append(q.settled, settledJob{
		jobID: jobID, state: "retried",
		executionCount: executionCount, nextRetryAt: nextRetryAt, errMsg: errMsg,
	})
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, jobID uint64, executionCount int, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settled = append(q.settled, settledJob{
		jobID: jobID, state: "failed", executionCount: executionCount, errMsg: errMsg,
	})
	return nil
}

func (q *fakeQueue) settledCopy() []settledJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]settledJob, len(q.settled))
	copy(out, q.settled)
	return out
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func newTestWorker(q Queue, handlers map[string]HandlerFunc) *Worker {
	return New(q, handlers, Options{
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  3,
		RetryBase:    5 * time.Second,
		RetryCap:     5 * time.Minute,
	}, testLog())
}

func TestRunJobCompletesOnSuccess(t *testing.T) {
	q := &fakeQueue{}
	var got json.RawMessage
	w := newTestWorker(q, map[string]HandlerFunc{
		"noop": func(ctx context.Context, payload json.RawMessage) error {
			got = payload
			return nil
		},
	})

	w.runJob(context.Background(), model.Job{ID: 7, Type: "noop", Payload: []byte(`{"a":1}`)})

	settled := q.settledCopy()
	require.Len(t, settled, 1)
	assert.Equal(t, "completed", settled[0].state)
	assert.Equal(t, uint64(7), settled[0].jobID)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestRunJobSchedulesRetryWithIncrementedCount(t *testing.T) {
	q := &fakeQueue{}
	w := newTestWorker(q, map[string]HandlerFunc{
		"flaky": func(ctx context.Context, payload json.RawMessage) error {
			return errors.New("provider unavailable")
		},
	})

	before := time.Now().UTC()
	w.runJob(context.Background(), model.Job{ID: 3, Type: "flaky", ExecutionCount: 1})

	settled := q.settledCopy()
	require.Len(t, settled, 1)
	assert.Equal(t, "retried", settled[0].state)
	assert.Equal(t, 2, settled[0].executionCount)
	assert.Equal(t, "provider unavailable", settled[0].errMsg)
	// Second attempt just failed, so the next delay is base*2 = 10s.
	assert.WithinDuration(t, before.Add(10*time.Second), settled[0].nextRetryAt, 2*time.Second)
}

func TestRunJobFailsPermanentlyAtAttemptBudget(t *testing.T) {
	q := &fakeQueue{}
	w := newTestWorker(q, map[string]HandlerFunc{
		"flaky": func(ctx context.Context, payload json.RawMessage) error {
			return errors.New("still broken")
		},
	})

	// ExecutionCount 2 means this run is attempt 3 of 3.
	w.runJob(context.Background(), model.Job{ID: 9, Type: "flaky", ExecutionCount: 2})

	settled := q.settledCopy()
	require.Len(t, settled, 1)
	assert.Equal(t, "failed", settled[0].state)
	assert.Equal(t, 3, settled[0].executionCount)
	assert.Equal(t, "still broken", settled[0].errMsg)
}

func TestRunJobUnknownTypeFailsWithoutRetry(t *testing.T) {
	q := &fakeQueue{}
	w := newTestWorker(q, map[string]HandlerFunc{})

	w.runJob(context.Background(), model.Job{ID: 4, Type: "no-such-type"})

	settled := q.settledCopy()
	require.Len(t, settled, 1)
	assert.Equal(t, "failed", settled[0].state)
	assert.Equal(t, "unknown job type", settled[0].errMsg)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	w := New(&fakeQueue{}, nil, Options{
		RetryBase: 5 * time.Second,
		RetryCap:  5 * time.Minute,
	}, testLog())

	assert.Equal(t, 5*time.Second, w.Backoff(1))
	assert.Equal(t, 10*time.Second, w.Backoff(2))
	assert.Equal(t, 20*time.Second, w.Backoff(3))
	assert.Equal(t, 40*time.Second, w.Backoff(4))
	assert.Equal(t, 80*time.Second, w.Backoff(5))
	assert.Equal(t, 160*time.Second, w.Backoff(6))
	assert.Equal(t, 5*time.Minute, w.Backoff(7))
	assert.Equal(t, 5*time.Minute, w.Backoff(50))
}

func TestRunDrainsBatchThenStops(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{
		{ID: 1, Type: "noop"},
		{ID: 2, Type: "noop"},
	}}
	done := make(chan struct{}, 2)
	w := newTestWorker(q, map[string]HandlerFunc{
		"noop": func(ctx context.Context, payload json.RawMessage) error {
			done <- struct{}{}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not executed")
		}
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Len(t, q.settledCopy(), 2)
}

func TestRunWakeSignalTriggersImmediatePoll(t *testing.T) {
	q := &fakeQueue{served: true} // empty until we reset it
	wake := make(chan struct{}, 1)
	w := New(q, map[string]HandlerFunc{
		"noop": func(ctx context.Context, payload json.RawMessage) error {
			return nil
		},
	}, Options{
		PollInterval:    time.Hour, // only the wake signal can trigger a poll
		MaxIdleInterval: time.Hour,
		Wake:            wake,
	}, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx)
	}()

	// Let the first (empty) poll happen, then plant a job and wake.
	time.Sleep(20 * time.Millisecond)
	q.mu.Lock()
	q.jobs = []model.Job{{ID: 42, Type: "noop"}}
	q.served = false
	q.mu.Unlock()
	wake <- struct{}{}

	deadline := time.After(time.Second)
	for {
		settled := q.settledCopy()
		if len(settled) == 1 {
			assert.Equal(t, uint64(42), settled[0].jobID)
			assert.Equal(t, "completed", settled[0].state)
			return
		}
		select {
		case <-deadline:
			t.Fatal("wake signal did not trigger a poll")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunBatchBoundsJobsByJobTimeout(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{{ID: 1, Type: "deadline-check"}}}
	var deadline time.Time
	var hasDeadline bool
	w := New(q, map[string]HandlerFunc{
		"deadline-check": func(ctx context.Context, payload json.RawMessage) error {
			deadline, hasDeadline = ctx.Deadline()
			return nil
		},
	}, Options{
		JobTimeout:      10 * time.Minute,
		ShutdownTimeout: time.Second,
	}, testLog())

	before := time.Now()
	n, err := w.runBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The run context carries the job timeout, not the (much shorter)
	// shutdown grace.
	require.True(t, hasDeadline)
	assert.WithinDuration(t, before.Add(10*time.Minute), deadline, 30*time.Second)
}

func TestHandlersRejectsNil(t *testing.T) {
	h := func(ctx context.Context, payload json.RawMessage) error { return nil }
	_, err := Handlers(h, h, nil, h)
	assert.Error(t, err)

	table, err := Handlers(h, h, h, h)
	require.NoError(t, err)
	assert.Len(t, table, 4)
}
