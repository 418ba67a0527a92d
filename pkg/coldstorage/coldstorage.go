// Package coldstorage defines the snapshot persistence contract: whole
// documument state keyed by document id, last-write-wins.
package coldstorage

import (
	"context"

	"github.com/foundrysync/mimic/pkg/model"
)

// Store persists and retrieves whole-document snapshots.
//
// load MUST be strongly consistent with a prior save from the same
// caller. Implementations MUST be safe for concurrent use across
// different document ids.
type Store interface {
	// Load returns the snapshot for id, or (nil, nil) if none exists.
	Load(ctx context.Context, id string) (*model.Snapshot, error)

	// Save writes snap for id, overwriting any prior snapshot.
	Save(ctx context.Context, id string, snap model.Snapshot) error

	// Delete removes the snapshot for id, if any.
	Delete(ctx context.Context, id string) error
}
