// internal/jobstore/store.go
package jobstore

import (
	"context"
	"errors"

	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

// ErrNotFound is returned for unknown or expired job ids.
var ErrNotFound = errors.New("job not found")

// Store persists bulk-update job snapshots for a fixed retention window.
// Set rewrites the full entry and refreshes its expiry. Each job has a
// single writer (its orchestrator run), so no compare-and-swap is needed.
type Store interface {
	Set(ctx context.Context, job *schema.Job) error
	Get(ctx context.Context, id string) (*schema.Job, error)
}
