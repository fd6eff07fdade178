package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	registry   *prom.Registry
	runs       *prom.CounterVec
	runSeconds *prom.HistogramVec
	notes      *prom.CounterVec
	edges      *prom.CounterVec
}

// NewPrometheus creates a recorder backed by its own Prometheus registry.
func NewPrometheus() Exporter {
	p := &promRecorder{
		registry: prom.NewRegistry(),
		runs: prom.NewCounterVec(prom.CounterOpts{
			Name: "tsunagu_analysis_runs_total",
			Help: "Total number of finished analysis runs",
		}, []string{"workspace", "status"}),
		runSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tsunagu_analysis_run_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"workspace", "status"}),
		notes: prom.NewCounterVec(prom.CounterOpts{
			Name: "tsunagu_analysis_notes_total",
			Help: "Notes handled by analysis runs, by outcome",
		}, []string{"workspace", "outcome"}),
		edges: prom.NewCounterVec(prom.CounterOpts{
			Name: "tsunagu_graph_edges_total",
			Help: "Relationship edges written by graph commits, by operation",
		}, []string{"workspace", "op"}),
	}
	p.registry.MustRegister(p.runs, p.runSeconds, p.notes, p.edges)
	return p
}

func (p *promRecorder) IncRun(workspace, status string) {
	p.runs.WithLabelValues(workspace, status).Inc()
}

func (p *promRecorder) ObserveRunSeconds(workspace, status string, seconds float64) {
	p.runSeconds.WithLabelValues(workspace, status).Observe(seconds)
}

func (p *promRecorder) AddNotes(workspace, outcome string, n int) {
	if n > 0 {
		p.notes.WithLabelValues(workspace, outcome).Add(float64(n))
	}
}

func (p *promRecorder) AddEdges(workspace, op string, n int) {
	if n > 0 {
		p.edges.WithLabelValues(workspace, op).Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *promRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
