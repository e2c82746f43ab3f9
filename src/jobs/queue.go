package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgee-sync/src/logger"
)

var ErrQueueClosed = errors.New("queue is closed")

const defaultMaxRetries = 3

// Queue is a channel-backed job queue consumed by a fixed pool of workers.
type Queue struct {
	jobs      chan *Job
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     JobStore
	workers   int
	backoff   time.Duration
	closed    bool
}

// NewQueue creates a queue holding up to bufferSize pending jobs. store may be nil.
func NewQueue(bufferSize, workers int, store JobStore) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobs:      make(chan *Job, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		backoff:   time.Second,
	}
}

// SetBackoff sets the base delay between retries; attempt n waits n times this.
func (q *Queue) SetBackoff(d time.Duration) {
	q.backoff = d
}

// Publish saves job as pending and hands it to the workers, blocking while the
// buffer is full until ctx is done or the queue stops.
func (q *Queue) Publish(ctx context.Context, job *Job) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}
	q.save(ctx, job)

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context, handler Handler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobs:
			if job == nil {
				return
			}
			q.process(ctx, job, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, job *Job, handler Handler) {
	log := logger.FromContext(ctx).With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()

	job.Status = JobStatusRunning
	started := time.Now()
	job.StartedAt = &started
	q.save(ctx, job)

	err := q.run(logger.WithContext(ctx, log), job, handler)

	completed := time.Now()
	job.CompletedAt = &completed
	if err == nil {
		job.Status = JobStatusCompleted
		job.Error = ""
		q.save(ctx, job)
		log.Debug().Dur("duration", completed.Sub(started)).Msg("Job completed")
		return
	}

	job.Error = err.Error()
	if job.RetryCount >= job.MaxRetries {
		job.Status = JobStatusFailed
		q.save(ctx, job)
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("Job failed")
		return
	}

	job.RetryCount++
	job.Status = JobStatusRetrying
	q.save(ctx, job)
	log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Job failed, retrying")

	retry := *job
	time.AfterFunc(time.Duration(retry.RetryCount)*q.backoff, func() {
		retry.Status = JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		if err := q.Publish(ctx, &retry); err != nil {
			log.Warn().Err(err).Msg("Could not requeue job")
		}
	})
}

func (q *Queue) run(ctx context.Context, job *Job, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("job panicked")
			log := logger.FromContext(ctx)
			log.Error().Interface("panic", r).Msg("Recovered job panic")
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *Job) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.ID).Msg("Could not save job state")
	}
}

// Stop closes the queue and waits for in-flight jobs, or until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Publisher = (*Queue)(nil)
