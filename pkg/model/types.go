// Package model holds the data types shared across the document engine:
// storage backends, the codec, and the runtime all speak these types so
// none of them need to import each other just to agree on a wire shape.
package model

// Transaction is a client-submitted batch of opaque operations.
type Transaction struct {
	ID        string          `json:"id"`
	Ops       []RawOp         `json:"ops"`
	Timestamp int64           `json:"timestamp"`
}

// RawOp is an opaque operation value interpreted only by the schema
// applier in use for a given document.
type RawOp = []byte

// Snapshot is the persisted whole-document state at a given version.
type Snapshot struct {
	State         []byte `json:"state"`
	Version       uint64 `json:"version"`
	SchemaVersion int    `json:"schemaVersion"`
	SavedAt       int64  `json:"savedAt"`
}

// WALEntry is one durable record in a document's hot-storage log. Version
// is the document version that results from applying Transaction.
type WALEntry struct {
	Transaction Transaction `json:"transaction"`
	Version     uint64      `json:"version"`
	Timestamp   int64       `json:"timestamp"`
}

// Permission is the coarse read/write bit a connection is granted by auth.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// PresenceEntry is ephemeral per-connection data shared with other
// subscribers of the same document.
type PresenceEntry struct {
	Data   []byte `json:"data"`
	UserID string `json:"userId,omitempty"`
}

// CurrentSchemaVersion is the schema version written into every fresh
// snapshot. Bumping it is a forward-migration concern outside this engine.
const CurrentSchemaVersion = 1
