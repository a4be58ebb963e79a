package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks form submissions and document image uploads.
type Metrics struct {
	SubmitTotal     *prometheus.CounterVec
	SubmitDuration  prometheus.Histogram
	UploadTotal     *prometheus.CounterVec
	SessionsStarted *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubmitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_submissions_total",
			Help: "Client form submissions by mode and result",
		}, []string{"mode", "result"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboard_submit_duration_seconds",
			Help:    "Duration of the submit path including staged uploads and the batch commit",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		UploadTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_image_uploads_total",
			Help: "Document image uploads by result",
		}, []string{"result"}),
		SessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_sessions_started_total",
			Help: "Wizard sessions started by mode",
		}, []string{"mode"}),
	}
}

// ObserveSubmit records one submit attempt. Call with time.Now() at the start.
// A nil receiver is a no-op.
func (m *Metrics) ObserveSubmit(mode, result string, start time.Time) {
	if m == nil {
		return
	}
	m.SubmitTotal.WithLabelValues(mode, result).Inc()
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// IncrementUpload records an image upload outcome.
func (m *Metrics) IncrementUpload(result string) {
	if m == nil {
		return
	}
	m.UploadTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementSessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(mode).Inc()
}
