// Package prometheus provides the Prometheus-backed implementations of
// every pkg/metrics interface, registered into pkg/metrics via the
// constructor-indirection pattern so pkg/metrics never imports this
// package directly (avoiding an import cycle).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/foundrysync/mimic/pkg/metrics"
)

func init() {
	metrics.RegisterDocumentMetricsConstructor(newDocumentMetrics)
	metrics.RegisterRegistryMetricsConstructor(newRegistryMetrics)
	metrics.RegisterPresenceMetricsConstructor(newPresenceMetrics)
	metrics.RegisterShardingMetricsConstructor(newShardingMetrics)
}

type documentMetrics struct {
	submitTotal        *prometheus.CounterVec
	submitDuration      *prometheus.HistogramVec
	restoreTotal        *prometheus.CounterVec
	restoreDuration     *prometheus.HistogramVec
	snapshotSaveTotal   *prometheus.CounterVec
	snapshotSaveLatency prometheus.Histogram
	versionGaps         *prometheus.CounterVec
	broadcastDrops      *prometheus.CounterVec
}

func newDocumentMetrics() metrics.DocumentMetrics {
	reg := metrics.GetRegistry()
	return &documentMetrics{
		submitTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_document_submit_total",
			Help: "Total submit calls by result.",
		}, []string{"result"}),
		submitDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mimic_document_submit_duration_milliseconds",
			Help:    "Submit pipeline latency in milliseconds.",
			Buckets: []float64{0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"}),
		restoreTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_document_restore_total",
			Help: "Total restore calls by source.",
		}, []string{"source"}),
		restoreDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mimic_document_restore_duration_milliseconds",
			Help:    "Restore pipeline latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"source"}),
		snapshotSaveTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_document_snapshot_save_total",
			Help: "Total snapshot save attempts by outcome.",
		}, []string{"outcome"}),
		snapshotSaveLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mimic_document_snapshot_save_duration_milliseconds",
			Help:    "Snapshot save latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		versionGaps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_document_version_gap_total",
			Help: "Total detected WAL version gaps by document.",
		}, []string{"document_id"}),
		broadcastDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_document_broadcast_drop_total",
			Help: "Total dropped broadcast messages by document and overflow policy.",
		}, []string{"document_id", "policy"}),
	}
}

func (m *documentMetrics) ObserveSubmit(result string, d time.Duration) {
	m.submitTotal.WithLabelValues(result).Inc()
	m.submitDuration.WithLabelValues(result).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *documentMetrics) ObserveRestore(source string, d time.Duration) {
	m.restoreTotal.WithLabelValues(source).Inc()
	m.restoreDuration.WithLabelValues(source).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *documentMetrics) ObserveSnapshotSave(ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.snapshotSaveTotal.WithLabelValues(outcome).Inc()
	m.snapshotSaveLatency.Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *documentMetrics) RecordVersionGap(documentID string) {
	m.versionGaps.WithLabelValues(documentID).Inc()
}

func (m *documentMetrics) RecordBroadcastDrop(documentID, policy string) {
	m.broadcastDrops.WithLabelValues(documentID, policy).Inc()
}
