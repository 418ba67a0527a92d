package metrics

import "time"

// DocumentMetrics observes submit/restore/snapshot activity for one
// document runtime.
type DocumentMetrics interface {
	ObserveSubmit(result string, duration time.Duration) // result: "ok", "rejected", "storage_error"
	ObserveRestore(source string, duration time.Duration) // source: "snapshot", "fresh"
	ObserveSnapshotSave(ok bool, duration time.Duration)
	RecordVersionGap(documentID string)
	RecordBroadcastDrop(documentID string, policy string)
}

// NewDocumentMetrics returns a Prometheus-backed DocumentMetrics, or nil
// when metrics are disabled.
func NewDocumentMetrics() DocumentMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusDocumentMetrics()
}

var newPrometheusDocumentMetrics func() DocumentMetrics

// RegisterDocumentMetricsConstructor is called by
// pkg/metrics/prometheus/document.go during package initialization.
func RegisterDocumentMetricsConstructor(ctor func() DocumentMetrics) {
	newPrometheusDocumentMetrics = ctor
}

// ObserveSubmit is a nil-safe helper for callers that don't want to check
// for a nil DocumentMetrics themselves.
func ObserveSubmit(m DocumentMetrics, result string, d time.Duration) {
	if m != nil {
		m.ObserveSubmit(result, d)
	}
}

func ObserveRestore(m DocumentMetrics, source string, d time.Duration) {
	if m != nil {
		m.ObserveRestore(source, d)
	}
}

func ObserveSnapshotSave(m DocumentMetrics, ok bool, d time.Duration) {
	if m != nil {
		m.ObserveSnapshotSave(ok, d)
	}
}

func RecordVersionGap(m DocumentMetrics, documentID string) {
	if m != nil {
		m.RecordVersionGap(documentID)
	}
}

func RecordBroadcastDrop(m DocumentMetrics, documentID, policy string) {
	if m != nil {
		m.RecordBroadcastDrop(documentID, policy)
	}
}
