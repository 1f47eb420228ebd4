package metrics

import "time"

// ResultLabel enumerates per-artifact outcomes.
type ResultLabel string

const (
	ResultExtracted ResultLabel = "extracted"
	ResultSkipped   ResultLabel = "skipped"
)

// OutcomeLabel enumerates run outcomes.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomePartial  OutcomeLabel = "partial" // committed, some artifacts skipped
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for backup runs. Implementations must be
// safe for concurrent use by download workers.
type Recorder interface {
	IncArtifact(kind string, result ResultLabel)
	ObserveDownloadDuration(kind string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome OutcomeLabel)
	IncSites()
	SetLastSuccess(t time.Time)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncArtifact(string, ResultLabel)               {}
func (NoopRecorder) ObserveDownloadDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)              {}
func (NoopRecorder) IncRunOutcome(OutcomeLabel)                    {}
func (NoopRecorder) IncSites()                                     {}
func (NoopRecorder) SetLastSuccess(time.Time)                      {}
