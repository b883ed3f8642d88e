// internal/jobstore/redis.go
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

const jobKeyPrefix = "job:"

// RedisStore keeps job snapshots in Redis so they survive process restarts
// and are visible across concurrent server instances.
type RedisStore struct {
	db  *redis.Client
	ttl time.Duration
}

func NewRedisStore(db *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{db: db, ttl: ttl}
}

func (s *RedisStore) Set(ctx context.Context, job *schema.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.db.Set(jobKeyPrefix+job.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*schema.Job, error) {
	data, err := s.db.Get(jobKeyPrefix + id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job schema.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}
