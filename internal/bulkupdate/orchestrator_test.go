// internal/bulkupdate/orchestrator_test.go
package bulkupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespa-academy/homepage-backend/internal/bus"
	"github.com/vespa-academy/homepage-backend/internal/jobstore"
	"github.com/vespa-academy/homepage-backend/internal/knack"
	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

type fakeRecords struct {
	mu          sync.Mutex
	records     []knack.Record
	fetchErr    error
	failing     map[string]error
	updateDelay time.Duration

	updated     []string
	inFlight    int
	maxInFlight int
}

func (f *fakeRecords) FetchAllRecords(ctx context.Context, creds knack.Credentials, object string, filter knack.Filter, rowsPerPage int) ([]knack.Record, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

func (f *fakeRecords) UpdateRecord(ctx context.Context, creds knack.Credentials, object, recordID string, fields map[string]any) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.updateDelay)

	f.mu.Lock()
	f.inFlight--
	f.updated = append(f.updated, recordID)
	err := f.failing[recordID]
	f.mu.Unlock()
	return err
}

func (f *fakeRecords) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updated)
}

// recordingStore wraps a store and keeps every snapshot the orchestrator
// writes, so tests can assert progress invariants across the whole run.
type recordingStore struct {
	jobstore.Store
	mu        sync.Mutex
	snapshots []schema.Job
}

func (s *recordingStore) Set(ctx context.Context, job *schema.Job) error {
	s.mu.Lock()
	snap := *job
	snap.Errors = append([]schema.JobError(nil), job.Errors...)
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
	return s.Store.Set(ctx, job)
}

func makeRecords(n int) []knack.Record {
	records := make([]knack.Record, n)
	for i := range records {
		records[i] = knack.Record{"id": fmt.Sprintf("rec%d", i)}
	}
	return records
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForTerminal(t *testing.T, store jobstore.Store, id string) *schema.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		if job.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestBulkUpdateSixtyRecords(t *testing.T) {
	fake := &fakeRecords{records: makeRecords(60)}
	store := &recordingStore{Store: jobstore.NewMemoryStore(time.Minute)}
	o := New(fake, store, nil, Config{BatchSize: 25, BatchDelay: 10 * time.Millisecond}, testLogger())

	var pauseMu sync.Mutex
	var pauses []time.Duration
	o.sleep = func(d time.Duration) {
		pauseMu.Lock()
		pauses = append(pauses, d)
		pauseMu.Unlock()
	}

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:   "school-1",
		FieldName:  "field_3180",
		Value:      true,
		ToggleType: "productivity",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, schema.JobStatusProcessing, job.Status)

	final := waitForTerminal(t, store, job.ID)

	assert.Equal(t, schema.JobStatusCompleted, final.Status)
	assert.Equal(t, 60, final.TotalRecords)
	assert.Equal(t, 60, final.ProcessedRecords)
	assert.Equal(t, 100, final.Progress)
	assert.Empty(t, final.Errors)
	assert.Equal(t, "Successfully updated 60 of 60 records", final.Message)
	require.NotNil(t, final.EndTime)

	assert.Equal(t, 60, fake.updateCount())
	assert.LessOrEqual(t, fake.maxInFlight, 25)
	// three batches of 25, 25, 10 means exactly two inter-batch pauses
	pauseMu.Lock()
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, pauses)
	pauseMu.Unlock()

	// progress invariants over every persisted snapshot
	store.mu.Lock()
	defer store.mu.Unlock()
	prev := 0
	for _, snap := range store.snapshots {
		assert.GreaterOrEqual(t, snap.ProcessedRecords, prev)
		prev = snap.ProcessedRecords
		if snap.TotalRecords > 0 && snap.Status == schema.JobStatusProcessing {
			assert.LessOrEqual(t, snap.ProcessedRecords, snap.TotalRecords)
			want := int(math.Round(float64(snap.ProcessedRecords) / float64(snap.TotalRecords) * 100))
			assert.Equal(t, want, snap.Progress)
		}
	}
}

func TestBulkUpdateNoMatchingRecords(t *testing.T) {
	fake := &fakeRecords{}
	store := jobstore.NewMemoryStore(time.Minute)
	o := New(fake, store, nil, Config{BatchSize: 25}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-empty",
		FieldName: "field_3180",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, schema.JobStatusCompleted, final.Status)
	assert.Equal(t, 0, final.TotalRecords)
	assert.Equal(t, 0, final.ProcessedRecords)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "No student records found for this target", final.Message)
	assert.Zero(t, fake.updateCount(), "batch loop must not run for an empty result set")
}

func TestBulkUpdateRecordFailureIsContained(t *testing.T) {
	fake := &fakeRecords{
		records: makeRecords(3),
		failing: map[string]error{"rec1": errors.New("knack: 429 Too Many Requests")},
	}
	store := jobstore.NewMemoryStore(time.Minute)
	o := New(fake, store, nil, Config{BatchSize: 25}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-1",
		FieldName: "field_3181",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, schema.JobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.ProcessedRecords, "failed attempts still count as processed")
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "rec1", final.Errors[0].RecordID)
	assert.Equal(t, "knack: 429 Too Many Requests", final.Errors[0].Error)
	assert.Equal(t, "Successfully updated 2 of 3 records", final.Message)
}

func TestBulkUpdateFetchFailureFailsJob(t *testing.T) {
	fake := &fakeRecords{fetchErr: errors.New("knack: 403 Forbidden")}
	store := jobstore.NewMemoryStore(time.Minute)
	o := New(fake, store, nil, Config{}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-1",
		FieldName: "field_3180",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, schema.JobStatusFailed, final.Status)
	assert.Equal(t, "knack: 403 Forbidden", final.Error)
	require.NotNil(t, final.EndTime)
	assert.Zero(t, fake.updateCount())
}

func TestBulkUpdateFetchFailureSanitized(t *testing.T) {
	fake := &fakeRecords{fetchErr: errors.New("knack: 403 Forbidden")}
	store := jobstore.NewMemoryStore(time.Minute)
	o := New(fake, store, nil, Config{SanitizeErrors: true}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-1",
		FieldName: "field_3180",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, schema.JobStatusFailed, final.Status)
	assert.Equal(t, "bulk update failed due to an upstream error", final.Error)
	assert.NotContains(t, final.Error, "403")
}

func TestBulkUpdateConcurrencyCappedAtBatchSize(t *testing.T) {
	fake := &fakeRecords{records: makeRecords(40), updateDelay: 5 * time.Millisecond}
	store := jobstore.NewMemoryStore(time.Minute)
	o := New(fake, store, nil, Config{BatchSize: 10}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-1",
		FieldName: "field_3182",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	waitForTerminal(t, store, job.ID)
	assert.LessOrEqual(t, fake.maxInFlight, 10)
	assert.Equal(t, 40, fake.updateCount())
}

type failingConn struct {
	mu        sync.Mutex
	publishes int
}

func (f *failingConn) PublishJSON(subject string, v any) error {
	f.mu.Lock()
	f.publishes++
	f.mu.Unlock()
	return errors.New("nats: connection closed")
}

func TestBulkUpdatePublishFailureDoesNotFailJob(t *testing.T) {
	fake := &fakeRecords{records: makeRecords(3)}
	store := jobstore.NewMemoryStore(time.Minute)
	conn := &failingConn{}
	events := bus.NewPublisher(conn, "portal.bulkupdate.events", testLogger())
	o := New(fake, store, events, Config{BatchSize: 25}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-1",
		FieldName: "field_3180",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, schema.JobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.ProcessedRecords)
	assert.Equal(t, 100, final.Progress)
	assert.Empty(t, final.Errors)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	// started, one batch, completed: every publish errored, none mattered
	assert.GreaterOrEqual(t, conn.publishes, 3)
}

func TestSubmitRejectsMissingParameters(t *testing.T) {
	o := New(&fakeRecords{}, jobstore.NewMemoryStore(time.Minute), nil, Config{}, testLogger())

	_, err := o.Submit(context.Background(), schema.BulkUpdateRequest{FieldName: "field_3180"}, knack.Credentials{})
	assert.Error(t, err)

	_, err = o.Submit(context.Background(), schema.BulkUpdateRequest{TargetID: "school-1"}, knack.Credentials{})
	assert.Error(t, err)
}

func TestSubmitReturnsBeforeRunFinishes(t *testing.T) {
	fake := &fakeRecords{records: makeRecords(5), updateDelay: 100 * time.Millisecond}
	store := jobstore.NewMemoryStore(time.Minute)
	o := New(fake, store, nil, Config{BatchSize: 5}, testLogger())

	job, err := o.Submit(context.Background(), schema.BulkUpdateRequest{
		TargetID:  "school-1",
		FieldName: "field_3180",
	}, knack.Credentials{ApplicationID: "app", APIKey: "key"})
	require.NoError(t, err)

	snapshot, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobStatusProcessing, snapshot.Status)
	assert.Zero(t, snapshot.ProcessedRecords)

	waitForTerminal(t, store, job.ID)
}
