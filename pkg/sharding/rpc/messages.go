package rpc

import "github.com/foundrysync/mimic/pkg/model"

// SubmitRequest forwards a client transaction to the owning node.
type SubmitRequest struct {
	DocumentID  string            `json:"documentId"`
	Transaction model.Transaction `json:"transaction"`
}

// SubmitResponse carries the resulting version or a rejection reason.
type SubmitResponse struct {
	Version uint64 `json:"version"`
	Ok      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
}

// GetSnapshotRequest asks the owning node for its current in-memory state.
type GetSnapshotRequest struct {
	DocumentID string `json:"documentId"`
}

// GetSnapshotResponse carries the state and version returned.
type GetSnapshotResponse struct {
	State   []byte `json:"state"`
	Version uint64 `json:"version"`
}

// TouchRequest marks a document as recently active on the owning node,
// resetting its idle-eviction timer from a forwarding node's perspective.
type TouchRequest struct {
	DocumentID string `json:"documentId"`
}

// TouchResponse is empty; its presence keeps the RPC shape uniform.
type TouchResponse struct{}

// SetPresenceRequest forwards a presence update to the owning node.
type SetPresenceRequest struct {
	DocumentID   string `json:"documentId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	Data         []byte `json:"data"`
}

// SetPresenceResponse is empty; its presence keeps the RPC shape uniform.
type SetPresenceResponse struct{}

// RemovePresenceRequest forwards a presence teardown to the owning node.
type RemovePresenceRequest struct {
	DocumentID   string `json:"documentId"`
	ConnectionID string `json:"connectionId"`
}

// RemovePresenceResponse is empty; its presence keeps the RPC shape uniform.
type RemovePresenceResponse struct{}

// GetPresenceSnapshotRequest asks the owning node for the current presence
// entries of a document.
type GetPresenceSnapshotRequest struct {
	DocumentID string `json:"documentId"`
}

// PresenceEntryWire is one entry in a presence snapshot response.
type PresenceEntryWire struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	Data         []byte `json:"data"`
}

// GetPresenceSnapshotResponse carries every live presence entry.
type GetPresenceSnapshotResponse struct {
	Entries []PresenceEntryWire `json:"entries"`
}
