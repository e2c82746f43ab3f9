// Package jobs runs background work (webhook-triggered syncs, recurrence
// detection) on an in-process worker pool with retry.
package jobs

import (
	"context"
	"encoding/json"
	"time"
)

type JobType string

const (
	JobTypeSyncItem        JobType = "sync_item"
	JobTypeDetectRecurring JobType = "detect_recurring"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	ItemID      string          `json:"item_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      JobStatus       `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
}

// Handler processes one job. A returned error schedules a retry until MaxRetries is reached.
type Handler func(ctx context.Context, job *Job) error

type Publisher interface {
	Publish(ctx context.Context, job *Job) error
}

// JobStore tracks job state so callers can poll for completion.
type JobStore interface {
	SaveJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
}
