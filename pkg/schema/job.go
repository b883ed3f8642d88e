// pkg/schema/job.go
package schema

import "time"

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobError records a single record update that failed during a bulk run.
// Failed records are never retried within the same job.
type JobError struct {
	RecordID string `json:"recordId"`
	Error    string `json:"error"`
}

// Job is the stored snapshot of one bulk-update run. It has exactly one
// writer (the orchestrator goroutine that owns it) and any number of
// readers polling the status endpoint.
type Job struct {
	ID               string     `json:"id"`
	TargetID         string     `json:"targetId"`
	FieldName        string     `json:"fieldName"`
	Value            any        `json:"value"`
	ToggleType       string     `json:"toggleType,omitempty"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	TotalRecords     int        `json:"totalRecords"`
	ProcessedRecords int        `json:"processedRecords"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	Errors           []JobError `json:"errors"`
	Message          string     `json:"message,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Terminal reports whether the job can no longer change.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
