// internal/bulkupdate/eta.go
package bulkupdate

import (
	"fmt"
	"math"
	"time"

	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

// EstimateTimeRemaining derives a coarse time-to-completion from the observed
// processing rate. It returns "" when the job is terminal, has no records, or
// has made no measurable progress yet; callers omit the field in that case.
func EstimateTimeRemaining(job *schema.Job, now time.Time) string {
	if job.Status != schema.JobStatusProcessing || job.TotalRecords <= 0 {
		return ""
	}
	elapsed := now.Sub(job.StartTime).Seconds()
	if elapsed <= 0 {
		return ""
	}
	rate := float64(job.ProcessedRecords) / elapsed
	if rate <= 0 {
		return ""
	}
	remaining := float64(job.TotalRecords - job.ProcessedRecords)
	return formatSeconds(int(math.Ceil(remaining / rate)))
}

func formatSeconds(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
