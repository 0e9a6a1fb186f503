package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ocmplus"

const (
	ResultChanged   = "changed"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
)

// Recorder collects the metrics of a single command run. The registry is written once the
// command finishes, for the node_exporter textfile collector.
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of an operation against the hub cluster.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_results_total",
			Help:      "Number of operations by result.",
		}, []string{"operation", "result"}),
	}
	r.registry.MustRegister(r.duration, r.results)
	return r
}

// Observe records an operation that started at start.
func (r *Recorder) Observe(operation string, start time.Time, changed bool, err error) {
	r.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	result := ResultUnchanged
	switch {
	case err != nil:
		result = ResultFailed
	case changed:
		result = ResultChanged
	}
	r.results.WithLabelValues(operation, result).Inc()
}

func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
