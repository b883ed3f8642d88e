// pkg/schema/events.go
package schema

type LifecycleStage string

const (
	StageStarted   LifecycleStage = "started"
	StageProgress  LifecycleStage = "progress"
	StageCompleted LifecycleStage = "completed"
	StageFailed    LifecycleStage = "failed"
)

// JobLifecycleEvent is published to the event bus as a bulk-update job moves
// through its lifecycle. Consumers that want push notifications subscribe to
// these instead of polling the status endpoint.
type JobLifecycleEvent struct {
	JobID            string         `json:"job_id"`
	TargetID         string         `json:"target_id"`
	Stage            LifecycleStage `json:"stage"`
	TotalRecords     int            `json:"total_records"`
	ProcessedRecords int            `json:"processed_records"`
	Progress         int            `json:"progress"`
	FailedRecords    int            `json:"failed_records"`
	Error            string         `json:"error,omitempty"`
	HappenedAt       int64          `json:"happened_at"`
}
