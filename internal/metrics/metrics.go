// Package metrics exports attempt and submission counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements app.Metrics on a Prometheus registry.
type Recorder struct {
	starts      *prometheus.CounterVec
	submissions *prometheus.CounterVec
	completion  prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		starts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizzr_attempt_starts_total",
				Help: "RegisterStart calls, split by whether a new attempt was recorded",
			},
			[]string{"kind"}, // new | repeat
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizzr_submissions_total",
				Help: "Submissions by outcome",
			},
			[]string{"outcome"},
		),
		completion: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quizzr_completion_seconds",
				Help:    "Time between start and accepted submission",
				Buckets: []float64{30, 60, 120, 300, 600, 900, 1800, 3600, 7200},
			},
		),
	}
}

func (r *Recorder) AttemptStarted(created bool) {
	kind := "repeat"
	if created {
		kind = "new"
	}
	r.starts.WithLabelValues(kind).Inc()
}

func (r *Recorder) Submission(outcome string) {
	r.submissions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Completed(seconds int64) {
	r.completion.Observe(float64(seconds))
}
