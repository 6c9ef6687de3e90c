// Package metrics exposes Prometheus collectors for the upload pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "videoreview"

// Result labels.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultNotFound  = "not_found"
	ResultCancelled = "cancelled"
)

// Rejection reasons for submitted files.
const (
	ReasonInvalidType  = "invalid_type"
	ReasonTooLarge     = "too_large"
	ReasonInvalidForm  = "invalid_form"
	ReasonStagingError = "staging_error"
)

// Metrics holds all Prometheus collectors for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	StagedTotal    prometheus.Counter     // videoreview_staged_uploads_total
	RejectedTotal  *prometheus.CounterVec // videoreview_rejected_uploads_total{reason}
	RemoteTotal    *prometheus.CounterVec // videoreview_remote_uploads_total{result}
	RemoteDuration prometheus.Histogram   // videoreview_remote_upload_duration_seconds
	DownloadsTotal *prometheus.CounterVec // videoreview_downloads_total{result}
	QueueDepth     prometheus.Gauge       // videoreview_upload_queue_depth
}

// New registers every collector on registry.
// A nil registry falls back to prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		StagedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staged_uploads_total",
			Help:      "Total uploads written to the staging area",
		}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_uploads_total",
			Help:      "Total submissions rejected before staging completed, by reason",
		}, []string{"reason"}),
		RemoteTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_uploads_total",
			Help:      "Total object store uploads by result",
		}, []string{"result"}),
		RemoteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_upload_duration_seconds",
			Help:      "Object store upload duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total download requests by result",
		}, []string{"result"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_queue_depth",
			Help:      "Uploads waiting for a worker",
		}),
	}
}

// RecordStaged counts a staged upload.
func (m *Metrics) RecordStaged() {
	if m == nil {
		return
	}
	m.StagedTotal.Inc()
}

// RecordRejected counts a rejected submission.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// RecordRemoteUpload counts a finished remote upload and observes its duration.
func (m *Metrics) RecordRemoteUpload(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteTotal.WithLabelValues(result).Inc()
	m.RemoteDuration.Observe(d.Seconds())
}

// RecordDownload counts a download request.
func (m *Metrics) RecordDownload(result string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth records the number of queued uploads.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
