package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/foundrysync/mimic/pkg/metrics"
)

type registryMetrics struct {
	created  prometheus.Counter
	restored prometheus.Counter
	evicted  prometheus.Counter
	active   prometheus.Gauge
}

func newRegistryMetrics() metrics.RegistryMetrics {
	reg := metrics.GetRegistry()
	return &registryMetrics{
		created: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mimic_registry_documents_created_total",
			Help: "Total fresh documents materialized.",
		}),
		restored: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mimic_registry_documents_restored_total",
			Help: "Total documents restored from a snapshot.",
		}),
		evicted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mimic_registry_documents_evicted_total",
			Help: "Total documents evicted for idleness.",
		}),
		active: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mimic_registry_documents_active",
			Help: "Current number of live document runtimes.",
		}),
	}
}

func (m *registryMetrics) DocumentsCreated()  { m.created.Inc() }
func (m *registryMetrics) DocumentsRestored() { m.restored.Inc() }
func (m *registryMetrics) DocumentsEvicted()  { m.evicted.Inc() }
func (m *registryMetrics) SetDocumentsActive(n int) { m.active.Set(float64(n)) }
