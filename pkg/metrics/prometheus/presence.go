package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/foundrysync/mimic/pkg/metrics"
)

type presenceMetrics struct {
	setTotal    *prometheus.CounterVec
	removeTotal *prometheus.CounterVec
	active      *prometheus.GaugeVec
}

func newPresenceMetrics() metrics.PresenceMetrics {
	reg := metrics.GetRegistry()
	return &presenceMetrics{
		setTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_presence_set_total",
			Help: "Total presence_set operations by document.",
		}, []string{"document_id"}),
		removeTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_presence_remove_total",
			Help: "Total presence_clear/disconnect removals by document.",
		}, []string{"document_id"}),
		active: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "mimic_presence_active_entries",
			Help: "Current number of live presence entries by document.",
		}, []string{"document_id"}),
	}
}

func (m *presenceMetrics) SetPresence(documentID string)    { m.setTotal.WithLabelValues(documentID).Inc() }
func (m *presenceMetrics) RemovePresence(documentID string) { m.removeTotal.WithLabelValues(documentID).Inc() }
func (m *presenceMetrics) SetActiveEntries(documentID string, n int) {
	m.active.WithLabelValues(documentID).Set(float64(n))
}
