package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrysync/mimic/pkg/hotstorage"
	"github.com/foundrysync/mimic/pkg/model"
)

func entry(version uint64) model.WALEntry {
	return model.WALEntry{Version: version, Transaction: model.Transaction{ID: "tx"}}
}

// ============================================================================
// Append / GetEntries / Truncate
// ============================================================================

func TestStore_AppendAndGetEntries(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "doc-1", entry(1)))
	require.NoError(t, s.Append(ctx, "doc-1", entry(2)))
	require.NoError(t, s.Append(ctx, "doc-1", entry(3)))

	out, err := s.GetEntries(ctx, "doc-1", 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].Version)
	assert.Equal(t, uint64(3), out[1].Version)
}

func TestStore_GetEntriesUnknownDocumentReturnsEmpty(t *testing.T) {
	t.Parallel()

	s := New()
	out, err := s.GetEntries(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStore_GetEntriesIsolatedPerDocument(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "doc-1", entry(1)))
	require.NoError(t, s.Append(ctx, "doc-2", entry(1)))

	out, err := s.GetEntries(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStore_TruncateRemovesUpToVersion(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for v := uint64(1); v <= 5; v++ {
		require.NoError(t, s.Append(ctx, "doc-1", entry(v)))
	}

	require.NoError(t, s.Truncate(ctx, "doc-1", 3))

	out, err := s.GetEntries(ctx, "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(4), out[0].Version)
	assert.Equal(t, uint64(5), out[1].Version)
}

// ============================================================================
// AppendWithCheck: optimistic version gap detection
// ============================================================================

func TestStore_AppendWithCheckFirstEntryMustBeVersionOne(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.AppendWithCheck(ctx, "doc-1", entry(1), 1))

	var gapErr *hotstorage.WalVersionGapError
	err := s.AppendWithCheck(ctx, "doc-2", entry(5), 5)
	require.ErrorAs(t, err, &gapErr)
	assert.False(t, gapErr.HadAny)
}

func TestStore_AppendWithCheckDetectsGap(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.AppendWithCheck(ctx, "doc-1", entry(1), 1))

	var gapErr *hotstorage.WalVersionGapError
	err := s.AppendWithCheck(ctx, "doc-1", entry(3), 3)
	require.ErrorAs(t, err, &gapErr)
	assert.True(t, gapErr.HadAny)
	assert.Equal(t, uint64(1), gapErr.ActualPrevious)
}

func TestStore_AppendWithCheckAcceptsContiguousSequence(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.AppendWithCheck(ctx, "doc-1", entry(1), 1))
	require.NoError(t, s.AppendWithCheck(ctx, "doc-1", entry(2), 2))
	require.NoError(t, s.AppendWithCheck(ctx, "doc-1", entry(3), 3))

	out, err := s.GetEntries(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}
