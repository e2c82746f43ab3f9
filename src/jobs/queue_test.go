package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, st *MemoryStore, id string, want JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = st.GetJob(context.Background(), id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueueRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := NewMemoryStore()
	q := NewQueue(10, 2, st)
	var seen atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *Job) error {
		seen.Add(1)
		return nil
	}))

	job := &Job{Type: JobTypeSyncItem, ItemID: "item-1"}
	require.NoError(t, q.Publish(ctx, job))
	require.NotEmpty(t, job.ID)

	done := waitForStatus(t, st, job.ID, JobStatusCompleted)
	require.Equal(t, "item-1", done.ItemID)
	require.NotNil(t, done.CompletedAt)
	require.EqualValues(t, 1, seen.Load())
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueRetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := NewMemoryStore()
	q := NewQueue(10, 1, st)
	q.SetBackoff(time.Millisecond)
	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("provider down")
	}))

	job := &Job{Type: JobTypeSyncItem, MaxRetries: 2}
	require.NoError(t, q.Publish(ctx, job))

	failed := waitForStatus(t, st, job.ID, JobStatusFailed)
	require.Equal(t, 2, failed.RetryCount)
	require.Equal(t, "provider down", failed.Error)
	require.EqualValues(t, 3, attempts.Load())
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueRecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := NewMemoryStore()
	q := NewQueue(1, 1, st)
	q.SetBackoff(time.Millisecond)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *Job) error {
		if job.RetryCount == 0 {
			panic("boom")
		}
		return nil
	}))

	job := &Job{Type: JobTypeDetectRecurring}
	require.NoError(t, q.Publish(ctx, job))
	done := waitForStatus(t, st, job.ID, JobStatusCompleted)
	require.Equal(t, 1, done.RetryCount)
	require.NoError(t, q.Stop(context.Background()))
}

func TestPublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Stop(context.Background()))
	require.ErrorIs(t, q.Publish(context.Background(), &Job{}), ErrQueueClosed)
	require.ErrorIs(t, q.Start(context.Background(), nil), ErrQueueClosed)
}

func TestStopReleasesBlockedPublish(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Publish(ctx, &Job{Type: JobTypeSyncItem}))

	published := make(chan error, 1)
	go func() {
		published <- q.Publish(ctx, &Job{Type: JobTypeSyncItem})
	}()

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))

	select {
	case err := <-published:
		require.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after stop")
	}
}
