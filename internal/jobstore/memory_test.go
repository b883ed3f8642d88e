// internal/jobstore/memory_test.go
package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	job := &schema.Job{
		ID:           "job_mem_1",
		TargetID:     "school-1",
		Status:       schema.JobStatusProcessing,
		TotalRecords: 10,
		StartTime:    time.Now().UTC(),
		Errors:       []schema.JobError{},
	}
	require.NoError(t, store.Set(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, schema.JobStatusProcessing, got.Status)
	assert.Equal(t, 10, got.TotalRecords)
}

func TestMemoryStoreUnknownID(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	_, err := store.Get(context.Background(), "job_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	job := &schema.Job{ID: "job_short", Status: schema.JobStatusCompleted}
	require.NoError(t, store.Set(ctx, job))

	time.Sleep(30 * time.Millisecond)

	_, err := store.Get(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSetRefreshesExpiry(t *testing.T) {
	store := NewMemoryStore(40 * time.Millisecond)
	ctx := context.Background()

	job := &schema.Job{ID: "job_refresh", Status: schema.JobStatusProcessing}
	require.NoError(t, store.Set(ctx, job))

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, store.Set(ctx, job))
	time.Sleep(25 * time.Millisecond)

	// 50ms after the first write but only 25ms after the rewrite.
	_, err := store.Get(ctx, job.ID)
	assert.NoError(t, err)
}

func TestMemoryStoreReadersDoNotAliasWriter(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	job := &schema.Job{
		ID:     "job_alias",
		Status: schema.JobStatusProcessing,
		Errors: []schema.JobError{{RecordID: "rec1", Error: "boom"}},
	}
	require.NoError(t, store.Set(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	got.Errors[0].RecordID = "mutated"
	got.Status = schema.JobStatusFailed

	again, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "rec1", again.Errors[0].RecordID)
	assert.Equal(t, schema.JobStatusProcessing, again.Status)
}
