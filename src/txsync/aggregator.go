package txsync

import (
	"context"
	"fmt"
	"time"

	"budgee-sync/src/models"
)

// Aggregator is the upstream provider of bank transaction events.
type Aggregator interface {
	// FetchChanges returns the page of changes after cursor. An empty cursor starts from the beginning.
	FetchChanges(ctx context.Context, accessToken, cursor string) (*models.ChangePage, error)
	// Enrich fills recurrence metadata on txns and returns them in the same order.
	Enrich(ctx context.Context, accessToken string, txns []models.RawTransaction) ([]models.RawTransaction, error)
}

// ProviderError is returned when an aggregator call fails twice. The item's
// cursor is left where it was, so the sync can be retried safely.
type ProviderError struct {
	ItemID string
	Op     string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("aggregator %s failed for item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// retryOnce runs fn, and once more after delay if it fails.
func retryOnce[T any](ctx context.Context, delay time.Duration, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil {
		return v, nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-t.C:
	}
	return fn()
}
