package sdk

import "time"

// JobResult aggregates the outcome of a single scheduler run over one
// cadence.
type JobResult struct {
	Cadence CheckFrequency

	SourcesProcessed int
	SourcesSucceeded int
	SourcesFailed    int
	ChangesDetected  int
	AlertsSent       int

	// Errors holds one entry per source that failed, formatted as
	// "<source name>: <cause>". Worker panics are captured here as well.
	Errors []string

	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the wall time of the run.
func (j *JobResult) Duration() time.Duration {
	return j.CompletedAt.Sub(j.StartedAt)
}

// AlertResult accounts for a single alert fan-out of one policy change.
type AlertResult struct {
	RoutesNotified int
	EmailsSent     int
	EmailsFailed   int
	Errors         []string
}
