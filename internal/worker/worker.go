// Package worker runs the background job loop. It polls the durable queue,
// dispatches each job to its handler, and applies the retry policy. A
// RabbitMQ wake signal cuts the latency between enqueue and pickup, but the
// loop is correct on polling alone.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/monitoring"
)

// Queue is the durable store the worker drains. Satisfied by
// repository.JobRepo.
type Queue interface {
	DequeueBatch(ctx context.Context, limit int) ([]model.Job, error)
	MarkCompleted(ctx context.Context, jobID uint64) error
	ScheduleRetry(ctx context.Context, jobID uint64, executionCount int, nextRetryAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, jobID uint64, executionCount int, errMsg string) error
}

// HandlerFunc executes one job attempt. A nil return completes the job;
// an error schedules a retry until the attempt budget runs out.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Worker drains the job queue. Construct with New and start with Run;
// one Worker runs one loop, and multiple instances (in one process or
// many) can share a queue safely.
type Worker struct {
	queue    Queue
	handlers map[string]HandlerFunc
	wake     <-chan struct{}
	log      *logrus.Entry

	pollInterval    time.Duration
	maxIdleInterval time.Duration
	batchSize       int
	maxAttempts     int
	retryBase       time.Duration
	retryCap        time.Duration
	jobTimeout      time.Duration
	shutdownTimeout time.Duration
}

// Options configures a Worker. Zero fields fall back to the defaults
// noted on each.
type Options struct {
	PollInterval    time.Duration // base delay between polls (default 5s)
	MaxIdleInterval time.Duration // cap for the idle backoff (default 1m)
	BatchSize       int           // jobs claimed per poll (default 10)
	MaxAttempts     int           // executions before a job fails terminally (default 5)
	RetryBase       time.Duration // first retry delay (default 5s)
	RetryCap        time.Duration // retry delay ceiling (default 5m)
	JobTimeout      time.Duration // bound on a single job execution (default 5m)
	ShutdownTimeout time.Duration // grace for in-flight jobs on shutdown (default 30s)
	Wake            <-chan struct{}
}

// New returns a Worker over the given queue and handler table.
func New(queue Queue, handlers map[string]HandlerFunc, opts Options, log *logrus.Entry) *Worker {
	w := &Worker{
		queue:           queue,
		handlers:        handlers,
		wake:            opts.Wake,
		log:             log,
		pollInterval:    opts.PollInterval,
		maxIdleInterval: opts.MaxIdleInterval,
		batchSize:       opts.BatchSize,
		maxAttempts:     opts.MaxAttempts,
		retryBase:       opts.RetryBase,
		retryCap:        opts.RetryCap,
		jobTimeout:      opts.JobTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.maxIdleInterval <= 0 {
		w.maxIdleInterval = time.Minute
	}
	if w.batchSize <= 0 {
		w.batchSize = 10
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = 5
	}
	if w.retryBase <= 0 {
		w.retryBase = 5 * time.Second
	}
	if w.retryCap <= 0 {
		w.retryCap = 5 * time.Minute
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 5 * time.Minute
	}
	if w.shutdownTimeout <= 0 {
		w.shutdownTimeout = 30 * time.Second
	}
	return w
}

// Run polls until ctx is cancelled, then returns after the current batch
// finishes or the shutdown grace expires. Jobs already claimed keep
// running on a detached context so cancellation never strands a lease
// mid-flight.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithField("poll_interval", w.pollInterval).Info("worker started")
	delay := w.pollInterval
	for {
		if ctx.Err() != nil {
			w.log.Info("worker stopped")
			return ctx.Err()
		}

		n, err := w.runBatch(ctx)
		if err != nil {
			w.log.WithError(err).Error("dequeue failed")
		}

		if n > 0 {
			// Work found: drain at full speed.
			delay = w.pollInterval
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return ctx.Err()
		case <-w.wake:
			delay = w.pollInterval
		case <-time.After(delay):
			// Idle: back off gradually so an empty queue does not get
			// hammered, but never beyond the cap.
			delay = time.Duration(float64(delay) * 1.5)
			if delay > w.maxIdleInterval {
				delay = w.maxIdleInterval
			}
		}
	}
}

// runBatch claims and executes one batch, returning how many jobs ran.
func (w *Worker) runBatch(ctx context.Context) (int, error) {
	jobs, err := w.queue.DequeueBatch(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	// Jobs in a batch run concurrently and the batch is waited out in
	// full before the next poll. Claimed jobs run to completion even if
	// ctx is cancelled between dequeue and execution; each run is
	// bounded by its own job timeout, not by cancellation.
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job model.Job) {
			defer wg.Done()
			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
			defer cancel()
			w.runJob(jobCtx, job)
		}(job)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// Shutting down: the in-flight jobs get the grace period, then
		// the loop exits without them and the process ends.
		select {
		case <-done:
		case <-time.After(w.shutdownTimeout):
			w.log.Warn("shutdown grace expired with jobs still in flight")
		}
	}
	return len(jobs), nil
}

// runJob executes one attempt and settles the job's next state.
func (w *Worker) runJob(ctx context.Context, job model.Job) {
	log := w.log.WithFields(logrus.Fields{"job": job.ID, "type": job.Type})
	attempt := job.ExecutionCount + 1

	handler, ok := w.handlers[job.Type]
	if !ok {
		// No retry will ever make an unknown type processable.
		log.Error("unknown job type")
		if err := w.queue.MarkFailed(ctx, job.ID, attempt, "unknown job type"); err != nil {
			log.WithError(err).Error("mark failed")
		}
		monitoring.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
		return
	}

	monitoring.JobsInFlight.Inc()
	start := time.Now()
	err := handler(ctx, job.Payload)
	monitoring.JobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())
	monitoring.JobsInFlight.Dec()

	if err == nil {
		if err := w.queue.MarkCompleted(ctx, job.ID); err != nil {
			log.WithError(err).Error("mark completed")
		}
		monitoring.JobsProcessed.WithLabelValues(job.Type, "completed").Inc()
		return
	}

	if attempt >= w.maxAttempts {
		log.WithError(err).WithField("attempt", attempt).Error("job failed permanently")
		if err := w.queue.MarkFailed(ctx, job.ID, attempt, err.Error()); err != nil {
			log.WithError(err).Error("mark failed")
		}
		monitoring.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
		return
	}

	retryAt := time.Now().UTC().Add(w.Backoff(attempt))
	log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_at": retryAt}).
		Warn("job attempt failed, retry scheduled")
	if err := w.queue.ScheduleRetry(ctx, job.ID, attempt, retryAt, err.Error()); err != nil {
		log.WithError(err).Error("schedule retry")
	}
	monitoring.JobsProcessed.WithLabelValues(job.Type, "retried").Inc()
}

// Backoff returns the delay before the retry following the given attempt
// number (1-based): base doubled per prior attempt, clamped to the cap.
func (w *Worker) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := w.retryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.retryCap {
			return w.retryCap
		}
	}
	if d > w.retryCap {
		return w.retryCap
	}
	return d
}

// Handlers builds the dispatch table for the standard job types.
func Handlers(create, webhook, cleanup, purge HandlerFunc) (map[string]HandlerFunc, error) {
	table := map[string]HandlerFunc{
		model.JobCreatePayment:  create,
		model.JobProcessWebhook: webhook,
		model.JobCleanupOrphans: cleanup,
		model.JobPurgeJobs:      purge,
	}
	for t, h := range table {
		if h == nil {
			return nil, fmt.Errorf("nil handler for job type %s", t)
		}
	}
	return table, nil
}
