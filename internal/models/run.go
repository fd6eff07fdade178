package models

import "time"

// RunMode selects which notes an analysis run processes.
type RunMode string

const (
	// ModeFull processes every note.
	ModeFull RunMode = "full"
	// ModeIncremental processes notes changed since the last successful run and their neighbors.
	ModeIncremental RunMode = "incremental"
)

// ParseRunMode parses a mode string; empty means full.
func ParseRunMode(s string) (RunMode, bool) {
	switch RunMode(s) {
	case ModeFull, "":
		return ModeFull, true
	case ModeIncremental:
		return ModeIncremental, true
	}
	return "", false
}

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunRunning               RunStatus = "running"
	RunCompleted             RunStatus = "completed"
	RunCompletedWithDegraded RunStatus = "completed-with-degradation"
	RunFailed                RunStatus = "failed"
)

// Successful reports whether the run committed its results.
func (s RunStatus) Successful() bool {
	return s == RunCompleted || s == RunCompletedWithDegraded
}

// Skip reasons recorded on runs.
const (
	ReasonNoFeatures = "no-features"
)

// AnalysisRun records one execution of the extraction, scoring, and commit pipeline.
type AnalysisRun struct {
	ID            string            `json:"id"`
	Workspace     string            `json:"workspace"`
	Mode          RunMode           `json:"mode"`
	Status        RunStatus         `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at,omitempty"`
	Processed     []string          `json:"processed"`
	Skipped       map[string]string `json:"skipped"`
	Failed        map[string]string `json:"failed"`
	Error         string            `json:"error,omitempty"`
	EdgesUpserted int               `json:"edges_upserted"`
	EdgesDeleted  int               `json:"edges_deleted"`
}

// RunSummary is returned to callers after a run finishes.
type RunSummary struct {
	*AnalysisRun
	ProcessedCount int `json:"processed_count"`
	SkippedCount   int `json:"skipped_count"`
	FailedCount    int `json:"failed_count"`
}

// Summary returns the counts view of the run.
func (r *AnalysisRun) Summary() *RunSummary {
	return &RunSummary{
		AnalysisRun:    r,
		ProcessedCount: len(r.Processed),
		SkippedCount:   len(r.Skipped),
		FailedCount:    len(r.Failed),
	}
}
