package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrysync/mimic/pkg/metrics"
)

// These tests share the package-level metrics registry enabled by
// InitRegistry, so they do not run in parallel with each other.

func setUp(t *testing.T) {
	t.Helper()
	metrics.InitRegistry()
}

func TestNewDocumentMetrics_RegistersAndRecordsWithoutPanicking(t *testing.T) {
	setUp(t)

	m := metrics.NewDocumentMetrics()
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.ObserveSubmit("ok", time.Millisecond)
		m.ObserveRestore("snapshot", time.Millisecond)
		m.ObserveSnapshotSave(true, time.Millisecond)
		m.RecordVersionGap("doc-1")
		m.RecordBroadcastDrop("doc-1", "dropOldest")
	})
}

func TestNewRegistryMetrics_RecordsWithoutPanicking(t *testing.T) {
	setUp(t)

	m := metrics.NewRegistryMetrics()
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.DocumentsCreated()
		m.DocumentsRestored()
		m.DocumentsEvicted()
		m.SetDocumentsActive(3)
	})
}

func TestNewPresenceMetrics_RecordsWithoutPanicking(t *testing.T) {
	setUp(t)

	m := metrics.NewPresenceMetrics()
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.SetPresence("doc-1")
		m.RemovePresence("doc-1")
		m.SetActiveEntries("doc-1", 2)
	})
}

func TestNewShardingMetrics_RecordsWithoutPanicking(t *testing.T) {
	setUp(t)

	m := metrics.NewShardingMetrics()
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.ObserveForward("submit", time.Millisecond, true)
		m.ObserveForward("submit", time.Millisecond, false)
		m.RecordMailboxFull("node-a")
		m.SetOwnedEntities(5)
	})
}

func TestMetrics_AreGatherableFromTheRegistry(t *testing.T) {
	setUp(t)

	m := metrics.NewRegistryMetrics()
	require.NotNil(t, m)
	m.DocumentsCreated()

	reg := metrics.GetRegistry()
	require.NotNil(t, reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "mimic_registry_documents_created_total" {
			found = true
		}
	}
	assert.True(t, found, "expected the created-documents counter to be registered and gatherable")
}
