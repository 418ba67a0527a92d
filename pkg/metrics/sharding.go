package metrics

import "time"

// ShardingMetrics tracks routing and RPC activity in the sharded variant.
type ShardingMetrics interface {
	ObserveForward(procedure string, duration time.Duration, ok bool)
	RecordMailboxFull(node string)
	SetOwnedEntities(n int)
}

func NewShardingMetrics() ShardingMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusShardingMetrics()
}

var newPrometheusShardingMetrics func() ShardingMetrics

func RegisterShardingMetricsConstructor(ctor func() ShardingMetrics) {
	newPrometheusShardingMetrics = ctor
}

func ObserveForward(m ShardingMetrics, procedure string, d time.Duration, ok bool) {
	if m != nil {
		m.ObserveForward(procedure, d, ok)
	}
}

func RecordMailboxFull(m ShardingMetrics, node string) {
	if m != nil {
		m.RecordMailboxFull(node)
	}
}

func SetOwnedEntities(m ShardingMetrics, n int) {
	if m != nil {
		m.SetOwnedEntities(n)
	}
}
