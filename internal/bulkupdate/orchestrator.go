// internal/bulkupdate/orchestrator.go
package bulkupdate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vespa-academy/homepage-backend/internal/bus"
	"github.com/vespa-academy/homepage-backend/internal/jobstore"
	"github.com/vespa-academy/homepage-backend/internal/knack"
	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

// RecordAPI is the slice of the Knack client the orchestrator needs.
type RecordAPI interface {
	FetchAllRecords(ctx context.Context, creds knack.Credentials, object string, filter knack.Filter, rowsPerPage int) ([]knack.Record, error)
	UpdateRecord(ctx context.Context, creds knack.Credentials, object, recordID string, fields map[string]any) error
}

type Config struct {
	// Object is the Knack object holding the student records.
	Object string
	// TargetFilterField is the field connecting a student to its target
	// (the school connection field).
	TargetFilterField string
	// BatchSize caps how many record updates are in flight at once.
	BatchSize int
	// PageSize is the rows_per_page used while fetching.
	PageSize int
	// BatchDelay is the pause between batches, the backpressure control
	// against upstream rate limits.
	BatchDelay time.Duration
	// SanitizeErrors replaces upstream error text in the stored job with a
	// generic message. The verbatim error still goes to the log.
	SanitizeErrors bool
}

func (c Config) withDefaults() Config {
	if c.Object == "" {
		c.Object = "object_3"
	}
	if c.TargetFilterField == "" {
		c.TargetFilterField = "field_122"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	return c
}

// Orchestrator runs bulk field updates as detached jobs: fetch every matching
// record, update them in fixed-size concurrent batches, and stream progress
// into the job store for the status endpoint to read.
type Orchestrator struct {
	records RecordAPI
	store   jobstore.Store
	events  *bus.Publisher
	cfg     Config
	logger  *slog.Logger

	// sleep implements the inter-batch pause; replaced in tests
	sleep func(time.Duration)
}

func New(records RecordAPI, store jobstore.Store, events *bus.Publisher, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		records: records,
		store:   store,
		events:  events,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Submit creates the job in processing state and launches the run on its own
// goroutine. It returns as soon as the job is persisted; the caller's
// connection lifetime has no bearing on the run.
func (o *Orchestrator) Submit(ctx context.Context, req schema.BulkUpdateRequest, creds knack.Credentials) (*schema.Job, error) {
	if req.TargetID == "" || req.FieldName == "" {
		return nil, fmt.Errorf("targetId and fieldName are required")
	}

	job := &schema.Job{
		ID:         "job_" + uuid.NewString(),
		TargetID:   req.TargetID,
		FieldName:  req.FieldName,
		Value:      req.Value,
		ToggleType: req.ToggleType,
		Status:     schema.JobStatusProcessing,
		StartTime:  time.Now().UTC(),
		Errors:     []schema.JobError{},
	}
	if err := o.store.Set(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	go o.run(context.Background(), job.ID, req, creds)

	return job, nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string, req schema.BulkUpdateRequest, creds knack.Credentials) {
	logger := o.logger.With("job_id", jobID, "target_id", req.TargetID)
	logger.Info("bulk update started", "field", req.FieldName)

	filter := knack.EqualityFilter(o.cfg.TargetFilterField, req.TargetID)
	records, err := o.records.FetchAllRecords(ctx, creds, o.cfg.Object, filter, o.cfg.PageSize)
	if err != nil {
		logger.Error("fetch records failed", "err", err)
		o.fail(ctx, jobID, req.TargetID, err, logger)
		return
	}

	total := len(records)
	if _, err := o.update(ctx, jobID, func(job *schema.Job) {
		job.TotalRecords = total
	}); err != nil {
		logger.Error("persist record count failed", "err", err)
		o.fail(ctx, jobID, req.TargetID, err, logger)
		return
	}

	o.events.Publish(schema.JobLifecycleEvent{
		JobID:        jobID,
		TargetID:     req.TargetID,
		Stage:        schema.StageStarted,
		TotalRecords: total,
		HappenedAt:   time.Now().Unix(),
	})

	if total == 0 {
		now := time.Now().UTC()
		if _, err := o.update(ctx, jobID, func(job *schema.Job) {
			job.Status = schema.JobStatusCompleted
			job.Progress = 100
			job.Message = "No student records found for this target"
			job.EndTime = &now
		}); err != nil {
			logger.Error("persist completion failed", "err", err)
		}
		o.events.Publish(schema.JobLifecycleEvent{
			JobID:      jobID,
			TargetID:   req.TargetID,
			Stage:      schema.StageCompleted,
			Progress:   100,
			HappenedAt: now.Unix(),
		})
		logger.Info("bulk update completed", "total", 0)
		return
	}

	logger.Info("records fetched", "total", total, "batches", (total+o.cfg.BatchSize-1)/o.cfg.BatchSize)

	fields := map[string]any{req.FieldName: req.Value}
	processed := 0
	var jobErrors []schema.JobError

	for start := 0; start < total; start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > total {
			end = total
		}
		batch := records[start:end]

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, rec := range batch {
			wg.Add(1)
			go func(rec knack.Record) {
				defer wg.Done()
				if err := o.records.UpdateRecord(ctx, creds, o.cfg.Object, rec.ID(), fields); err != nil {
					mu.Lock()
					jobErrors = append(jobErrors, schema.JobError{RecordID: rec.ID(), Error: err.Error()})
					mu.Unlock()
				}
			}(rec)
		}
		wg.Wait()

		processed += len(batch)
		progress := progressPercent(processed, total)
		errs := make([]schema.JobError, len(jobErrors))
		copy(errs, jobErrors)

		if _, err := o.update(ctx, jobID, func(job *schema.Job) {
			job.ProcessedRecords = processed
			job.Progress = progress
			job.Errors = errs
		}); err != nil {
			logger.Error("persist progress failed", "err", err)
			o.fail(ctx, jobID, req.TargetID, err, logger)
			return
		}

		o.events.Publish(schema.JobLifecycleEvent{
			JobID:            jobID,
			TargetID:         req.TargetID,
			Stage:            schema.StageProgress,
			TotalRecords:     total,
			ProcessedRecords: processed,
			Progress:         progress,
			FailedRecords:    len(jobErrors),
			HappenedAt:       time.Now().Unix(),
		})
		logger.Info("batch settled", "processed", processed, "total", total, "failed", len(jobErrors))

		if end < total {
			o.sleep(o.cfg.BatchDelay)
		}
	}

	now := time.Now().UTC()
	if _, err := o.update(ctx, jobID, func(job *schema.Job) {
		job.Status = schema.JobStatusCompleted
		job.Progress = 100
		job.ProcessedRecords = processed
		job.Message = fmt.Sprintf("Successfully updated %d of %d records", processed-len(jobErrors), total)
		job.EndTime = &now
	}); err != nil {
		logger.Error("persist completion failed", "err", err)
	}

	o.events.Publish(schema.JobLifecycleEvent{
		JobID:            jobID,
		TargetID:         req.TargetID,
		Stage:            schema.StageCompleted,
		TotalRecords:     total,
		ProcessedRecords: processed,
		Progress:         100,
		FailedRecords:    len(jobErrors),
		HappenedAt:       now.Unix(),
	})
	logger.Info("bulk update completed", "total", total, "failed", len(jobErrors))
}

// fail moves the job to its failed terminal state. Per-record failures never
// come through here; this is for fetch or store errors that sink the run.
func (o *Orchestrator) fail(ctx context.Context, jobID, targetID string, cause error, logger *slog.Logger) {
	msg := cause.Error()
	if o.cfg.SanitizeErrors {
		msg = "bulk update failed due to an upstream error"
	}
	now := time.Now().UTC()
	if _, err := o.update(ctx, jobID, func(job *schema.Job) {
		job.Status = schema.JobStatusFailed
		job.Error = msg
		job.EndTime = &now
	}); err != nil {
		logger.Error("persist failure state failed", "err", err)
	}
	o.events.Publish(schema.JobLifecycleEvent{
		JobID:      jobID,
		TargetID:   targetID,
		Stage:      schema.StageFailed,
		Error:      msg,
		HappenedAt: now.Unix(),
	})
}

// update is a read-modify-write merge of the stored snapshot. Safe because
// each job has exactly one writer during its lifetime.
func (o *Orchestrator) update(ctx context.Context, id string, mutate func(*schema.Job)) (*schema.Job, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(job)
	if err := o.store.Set(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func progressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}
