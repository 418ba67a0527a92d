package sharding

import (
	"context"
	"fmt"

	"github.com/foundrysync/mimic/pkg/document"
	"github.com/foundrysync/mimic/pkg/metrics"
	"github.com/foundrysync/mimic/pkg/model"
	"github.com/foundrysync/mimic/pkg/registry"
	"github.com/foundrysync/mimic/pkg/sharding/rpc"
)

// LocalHandler implements rpc.Handler on the node that owns an entity: it
// resolves the runtime through the registry and runs Submit inside that
// entity's mailbox, so forwarded submits from every peer queue behind the
// same single writer. The other operations call the runtime directly.
type LocalHandler struct {
	nodeID   string
	registry *registry.Registry
	boxes    *Mailboxes
	metrics  metrics.ShardingMetrics
}

// NewLocalHandler wires a LocalHandler over reg, creating one mailbox per
// entity on demand with the given capacity (0 uses DefaultMailboxCapacity).
func NewLocalHandler(nodeID string, reg *registry.Registry, mailboxCapacity int, m metrics.ShardingMetrics) *LocalHandler {
	return &LocalHandler{nodeID: nodeID, registry: reg, boxes: NewMailboxes(mailboxCapacity), metrics: m}
}

// Close stops every per-entity mailbox.
func (h *LocalHandler) Close() {
	h.boxes.CloseAll()
}

func (h *LocalHandler) runtime(ctx context.Context, documentID string) (*document.Runtime, error) {
	return h.registry.GetOrCreate(ctx, documentID)
}

func (h *LocalHandler) Submit(ctx context.Context, req *rpc.SubmitRequest) (*rpc.SubmitResponse, error) {
	rt, err := h.runtime(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	res, err := h.boxes.Get(req.DocumentID).Submit(ctx, func(ctx context.Context) (any, error) {
		version, err := rt.Submit(ctx, req.Transaction)
		if err != nil {
			if se, ok := err.(*document.SubmitError); ok {
				return &rpc.SubmitResponse{Ok: false, Reason: se.Reason}, nil
			}
			return nil, err
		}
		return &rpc.SubmitResponse{Ok: true, Version: version}, nil
	})
	if err != nil {
		if err == ErrMailboxFull {
			metrics.RecordMailboxFull(h.metrics, h.nodeID)
		}
		return nil, err
	}
	return res.(*rpc.SubmitResponse), nil
}

func (h *LocalHandler) GetSnapshot(ctx context.Context, req *rpc.GetSnapshotRequest) (*rpc.GetSnapshotResponse, error) {
	rt, err := h.runtime(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	state, version := rt.GetSnapshot()
	return &rpc.GetSnapshotResponse{State: state, Version: version}, nil
}

func (h *LocalHandler) Touch(ctx context.Context, req *rpc.TouchRequest) (*rpc.TouchResponse, error) {
	rt, err := h.runtime(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	rt.Touch()
	return &rpc.TouchResponse{}, nil
}

func (h *LocalHandler) SetPresence(ctx context.Context, req *rpc.SetPresenceRequest) (*rpc.SetPresenceResponse, error) {
	rt, err := h.runtime(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	rt.Presence().SetPresence(req.ConnectionID, model.PresenceEntry{Data: req.Data, UserID: req.UserID})
	return &rpc.SetPresenceResponse{}, nil
}

func (h *LocalHandler) RemovePresence(ctx context.Context, req *rpc.RemovePresenceRequest) (*rpc.RemovePresenceResponse, error) {
	rt, err := h.runtime(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	rt.Presence().RemovePresence(req.ConnectionID)
	return &rpc.RemovePresenceResponse{}, nil
}

func (h *LocalHandler) GetPresenceSnapshot(ctx context.Context, req *rpc.GetPresenceSnapshotRequest) (*rpc.GetPresenceSnapshotResponse, error) {
	rt, err := h.runtime(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	entries := rt.Presence().Snapshot()
	out := make([]rpc.PresenceEntryWire, 0, len(entries))
	for connID, e := range entries {
		out = append(out, rpc.PresenceEntryWire{ConnectionID: connID, UserID: e.UserID, Data: e.Data})
	}
	return &rpc.GetPresenceSnapshotResponse{Entries: out}, nil
}

var _ rpc.Handler = (*LocalHandler)(nil)

// errUnreachable is returned by a MemberList implementation that cannot
// resolve a node id to a live address.
func errUnreachable(nodeID string) error {
	return fmt.Errorf("sharding: node %q unreachable", nodeID)
}
