package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/foundrysync/mimic/pkg/metrics"
)

type shardingMetrics struct {
	forwardTotal    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	mailboxFull     *prometheus.CounterVec
	ownedEntities   prometheus.Gauge
}

func newShardingMetrics() metrics.ShardingMetrics {
	reg := metrics.GetRegistry()
	return &shardingMetrics{
		forwardTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_shard_forward_total",
			Help: "Total RPC forwards by procedure and outcome.",
		}, []string{"procedure", "outcome"}),
		forwardDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mimic_shard_forward_duration_milliseconds",
			Help:    "RPC forward latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"procedure"}),
		mailboxFull: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mimic_shard_mailbox_full_total",
			Help: "Total times an entity mailbox rejected a message for being full.",
		}, []string{"node"}),
		ownedEntities: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mimic_shard_owned_entities",
			Help: "Current number of entities (documents) owned by this node.",
		}),
	}
}

func (m *shardingMetrics) ObserveForward(procedure string, d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.forwardTotal.WithLabelValues(procedure, outcome).Inc()
	m.forwardDuration.WithLabelValues(procedure).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *shardingMetrics) RecordMailboxFull(node string) { m.mailboxFull.WithLabelValues(node).Inc() }
func (m *shardingMetrics) SetOwnedEntities(n int)        { m.ownedEntities.Set(float64(n)) }
