package metrics

// RegistryMetrics tracks the population of live document runtimes.
type RegistryMetrics interface {
	DocumentsCreated()
	DocumentsRestored()
	DocumentsEvicted()
	SetDocumentsActive(n int)
}

func NewRegistryMetrics() RegistryMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusRegistryMetrics()
}

var newPrometheusRegistryMetrics func() RegistryMetrics

func RegisterRegistryMetricsConstructor(ctor func() RegistryMetrics) {
	newPrometheusRegistryMetrics = ctor
}

func DocumentsCreated(m RegistryMetrics) {
	if m != nil {
		m.DocumentsCreated()
	}
}

func DocumentsRestored(m RegistryMetrics) {
	if m != nil {
		m.DocumentsRestored()
	}
}

func DocumentsEvicted(m RegistryMetrics) {
	if m != nil {
		m.DocumentsEvicted()
	}
}

func SetDocumentsActive(m RegistryMetrics, n int) {
	if m != nil {
		m.SetDocumentsActive(n)
	}
}
