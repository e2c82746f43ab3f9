package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrJobNotFound = errors.New("job not found")

// MemoryStore keeps job state in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) SaveJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return &job, nil
}

var _ JobStore = (*MemoryStore)(nil)
