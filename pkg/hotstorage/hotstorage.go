// Package hotstorage defines the write-ahead log contract: an append-only,
// per-document ordered log of transactions with optional optimistic
// version checking and truncation.
package hotstorage

import (
	"context"

	"github.com/foundrysync/mimic/pkg/model"
)

// Store is the write-ahead log backing a document's durability. Ordering
// by version is the driver's responsibility. Implementations MUST be safe
// for concurrent use across different document ids.
type Store interface {
	// Append writes entry to id's log.
	Append(ctx context.Context, id string, entry model.WALEntry) error

	// AppendWithCheck writes entry to id's log only if the log's current
	// last version equals expectedVersion-1. It fails with
	// *WalVersionGapError otherwise, detecting split-brain writers.
	AppendWithCheck(ctx context.Context, id string, entry model.WALEntry, expectedVersion uint64) error

	// GetEntries returns id's entries with version strictly greater than
	// sinceVersion, in increasing version order.
	GetEntries(ctx context.Context, id string, sinceVersion uint64) ([]model.WALEntry, error)

	// Truncate removes all entries for id with version <= upToVersion.
	Truncate(ctx context.Context, id string, upToVersion uint64) error
}
