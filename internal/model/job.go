package model

import "time"

// Job status values. PROCESSING is the lease: a dequeued job belongs to
// exactly one worker until it completes or a retry is scheduled.
const (
	JobPending    = "PENDING"
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

// Job type values, one per handler.
const (
	JobCreatePayment  = "create-payment"
	JobProcessWebhook = "process-webhook"
	JobCleanupOrphans = "cleanup-orphans"
	JobPurgeJobs      = "purge-jobs"
)

// Job is a unit of deferred work. Payload is opaque JSON whose schema
// depends on Type. Jobs are created by checkout or webhook ingress and
// mutated only by the worker; terminal jobs are removed by the retention
// sweep, never by handlers.
type Job struct {
	ID             uint64     // jobs.id
	Type           string     // jobs.type
	Payload        []byte     // jobs.payload (JSON)
	Status         string     // jobs.status
	Priority       int        // jobs.priority (higher first)
	ExecutionCount int        // jobs.execution_count
	NextRetryAt    *time.Time // jobs.next_retry_at (nullable; eligible immediately when nil)
	LastError      *string    // jobs.last_error (nullable)
	CreatedAt      time.Time  // jobs.created_at
	UpdatedAt      time.Time  // jobs.updated_at
}
