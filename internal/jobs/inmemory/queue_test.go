package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, s *Store, id string, want jobs.JobStatus) *jobs.Job {
	t.Helper()
	var got *jobs.Job
	require.Eventually(t, func() bool {
		j, err := s.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_Completes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStore()
	q := NewQueue(10, 2, s)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		job.Result = map[string]int{"accepted": 3}
		return nil
	}))
	defer q.Close()

	job := &jobs.Job{Type: jobs.JobTypeMatchSweep}
	require.NoError(t, q.Publish(ctx, job))
	require.NotEmpty(t, job.ID)

	got := waitForStatus(t, s, job.ID, jobs.JobStatusCompleted)
	assert.Equal(t, 3, got.Result["accepted"])
	assert.Equal(t, jobs.DefaultMaxRetries, got.MaxRetries)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStore()
	q := NewQueue(10, 1, s)
	q.Backoff = time.Millisecond

	var attempts int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("ledger unavailable")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.Job{ID: "pull-1", Type: jobs.JobTypeLedgerPull}
	require.NoError(t, q.Publish(ctx, job))

	got := waitForStatus(t, s, "pull-1", jobs.JobStatusCompleted)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueue_GivesUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStore()
	q := NewQueue(10, 1, s)
	q.Backoff = time.Millisecond
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		return errors.New("boom")
	}))
	defer q.Close()

	require.NoError(t, q.Publish(ctx, &jobs.Job{ID: "sweep-1", Type: jobs.JobTypeMatchSweep, MaxRetries: 1}))

	got := waitForStatus(t, s, "sweep-1", jobs.JobStatusFailed)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "boom", got.Error)
}

func TestQueue_RecoversPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStore()
	q := NewQueue(1, 1, s)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		panic("nil map")
	}))
	defer q.Close()

	require.NoError(t, q.Publish(ctx, &jobs.Job{ID: "p", Type: jobs.JobTypeMatchSweep, MaxRetries: -1}))
	got := waitForStatus(t, s, "p", jobs.JobStatusFailed)
	assert.Contains(t, got.Error, "panicked")
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), &jobs.Job{Type: jobs.JobTypeMatchSweep})
	assert.Error(t, err)
	assert.Error(t, q.Start(context.Background(), nil))
}

func TestQueue_RejectsUnknownType(t *testing.T) {
	q := NewQueue(1, 1, nil)
	defer q.Close()
	assert.Error(t, q.Publish(context.Background(), &jobs.Job{Type: "reindex"}))
}
