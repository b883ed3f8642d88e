// internal/jobstore/memory.go
package jobstore

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

// MemoryStore is the fallback when no Redis is configured. Jobs are lost on
// process restart; that degradation is accepted.
type MemoryStore struct {
	jobs *gocache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{jobs: gocache.New(ttl, ttl)}
}

func (s *MemoryStore) Set(ctx context.Context, job *schema.Job) error {
	s.jobs.Set(job.ID, cloneJob(job), gocache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*schema.Job, error) {
	v, ok := s.jobs.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(v.(*schema.Job)), nil
}

// cloneJob copies the snapshot so readers never alias the writer's slices,
// matching the serialization boundary the Redis store gets for free.
func cloneJob(job *schema.Job) *schema.Job {
	clone := *job
	if job.Errors != nil {
		clone.Errors = make([]schema.JobError, len(job.Errors))
		copy(clone.Errors, job.Errors)
	}
	if job.EndTime != nil {
		end := *job.EndTime
		clone.EndTime = &end
	}
	return &clone
}
