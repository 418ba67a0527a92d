package metrics

// PresenceMetrics tracks presence registry activity.
type PresenceMetrics interface {
	SetPresence(documentID string)
	RemovePresence(documentID string)
	SetActiveEntries(documentID string, n int)
}

func NewPresenceMetrics() PresenceMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusPresenceMetrics()
}

var newPrometheusPresenceMetrics func() PresenceMetrics

func RegisterPresenceMetricsConstructor(ctor func() PresenceMetrics) {
	newPrometheusPresenceMetrics = ctor
}

func RecordPresenceSet(m PresenceMetrics, documentID string) {
	if m != nil {
		m.SetPresence(documentID)
	}
}

func RecordPresenceRemove(m PresenceMetrics, documentID string) {
	if m != nil {
		m.RemovePresence(documentID)
	}
}

func SetPresenceActiveEntries(m PresenceMetrics, documentID string, n int) {
	if m != nil {
		m.SetActiveEntries(documentID, n)
	}
}
