// Package metrics exposes Prometheus metrics for submissions and sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

// No session ids in labels.
var (
	// SubmissionsTotal counts settled submissions by final state and failure category.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvproc_submissions_total",
		Help: "Total number of settled submissions, by final state and failure category.",
	}, []string{"state", "category"})

	// SubmissionDuration observes the round trip to the processing endpoint.
	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csvproc_submission_duration_seconds",
		Help:    "Time from dispatch to settlement of a submission.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// ActiveSessions tracks live browser sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csvproc_active_sessions",
		Help: "Current number of live sessions.",
	})
)

// Recorder feeds workflow outcomes into the package metrics.
type Recorder struct{}

func (Recorder) ObserveSubmission(state workflow.State, category fault.Category, elapsed time.Duration) {
	label := string(category)
	if label == "" {
		label = "none"
	}
	SubmissionsTotal.WithLabelValues(string(state), label).Inc()
	SubmissionDuration.Observe(elapsed.Seconds())
}
