// Package metrics provides the instrumentation surface of the analysis engine with a
// no-op default and a Prometheus-backed implementation.
package metrics

import (
	"net/http"
	"time"
)

// Recorder defines the metrics recorded by analysis runs.
type Recorder interface {
	IncRun(workspace, status string)
	ObserveRunSeconds(workspace, status string, seconds float64)
	AddNotes(workspace, outcome string, n int)
	AddEdges(workspace, op string, n int)
}

// Note outcomes and edge operations used as label values.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"

	EdgesUpserted = "upserted"
	EdgesDeleted  = "deleted"
)

// Exporter is a Recorder that can serve its metrics over HTTP.
type Exporter interface {
	Recorder
	Handler() http.Handler
}

type noopRecorder struct{}

func (noopRecorder) IncRun(string, string)                     {}
func (noopRecorder) ObserveRunSeconds(string, string, float64) {}
func (noopRecorder) AddNotes(string, string, int)              {}
func (noopRecorder) AddEdges(string, string, int)              {}

// Noop returns a Recorder that discards everything.
func Noop() Recorder {
	return noopRecorder{}
}

// TimeRun starts timing a run. The returned function records the run under its final status.
func TimeRun(r Recorder, workspace string) func(status string) {
	start := time.Now()
	return func(status string) {
		r.IncRun(workspace, status)
		r.ObserveRunSeconds(workspace, status, time.Since(start).Seconds())
	}
}
