// Package jobs runs background reconciliation work: ledger pulls and
// auto-match sweeps.
package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeMatchSweep runs one auto-match sweep over the store.
	JobTypeMatchSweep JobType = "match_sweep"
	// JobTypeLedgerPull mirrors recent ledger transactions into the store.
	JobTypeLedgerPull JobType = "ledger_pull"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	return t == JobTypeMatchSweep || t == JobTypeLedgerPull
}

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and will be re-enqueued.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries applies when a job is published without MaxRetries.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned by JobStore lookups.
var ErrJobNotFound = errors.New("job not found")

// Job is one unit of background work.
type Job struct {
	ID   string  `json:"job_id"`
	Type JobType `json:"type"`

	// SinceDays and AccountID parameterise ledger_pull.
	SinceDays int    `json:"since_days,omitempty"`
	AccountID string `json:"account_id,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Result holds the counters reported by the handler.
	Result map[string]int `json:"result,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Clone returns a copy of j that shares nothing mutable with it.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	if j.Result != nil {
		c.Result = make(map[string]int, len(j.Result))
		for k, v := range j.Result {
			c.Result[k] = v
		}
	}
	return &c
}

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, job *Job) error
	Close() error
}

// Consumer runs queued jobs through a handler.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed;
// the queue decides whether to retry. Handlers may fill job.Result.
type JobHandler func(ctx context.Context, job *Job) error

// JobStore tracks job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs. Zero fields are ignored.
type JobFilter struct {
	Type   JobType
	Status JobStatus
	Limit  int
	Offset int
}
