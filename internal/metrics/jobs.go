package metrics

import "time"

// JobOutcome is how one job attempt ended.
type JobOutcome string

const (
	JobOutcomeCompleted JobOutcome = "completed"
	JobOutcomeRetried   JobOutcome = "retried" // failed, another attempt is scheduled
	JobOutcomeFailed    JobOutcome = "failed"  // failed for good
)

// ObserveJob records one job attempt of jobType.
func ObserveJob(jobType string, outcome JobOutcome, d time.Duration) {
	JobsTotal.WithLabelValues(jobType, string(outcome)).Inc()
	JobDuration.WithLabelValues(jobType).Observe(d.Seconds())
	if outcome == JobOutcomeRetried {
		JobRetriesTotal.WithLabelValues(jobType).Inc()
	}
}
