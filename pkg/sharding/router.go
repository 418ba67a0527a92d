package sharding

import (
	"context"
	"sync"
	"time"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/pkg/metrics"
	"github.com/foundrysync/mimic/pkg/sharding/rpc"
)

// Router dispatches entity operations either to the local handler (when
// this node owns the entity per the hash ring) or to a forwarding client
// dialed lazily to the owning peer.
type Router struct {
	self    string
	ring    *Ring
	members MemberList
	local   rpc.Handler
	metrics metrics.ShardingMetrics

	mu      sync.Mutex
	clients map[string]*rpc.Client

	dial func(addr string) (*rpc.Client, error)
}

// NewRouter builds a Router. dial defaults to rpc.Dial; tests may override
// it to avoid a real network connection.
func NewRouter(self string, ring *Ring, members MemberList, local rpc.Handler, m metrics.ShardingMetrics) *Router {
	return &Router{
		self:    self,
		ring:    ring,
		members: members,
		local:   local,
		metrics: m,
		clients: make(map[string]*rpc.Client),
		dial:    rpc.Dial,
	}
}

// Owner returns the node id responsible for documentID per the ring.
func (r *Router) Owner(documentID string) string {
	return r.ring.Lookup(documentID)
}

// IsLocal reports whether this node owns documentID.
func (r *Router) IsLocal(documentID string) bool {
	owner := r.Owner(documentID)
	return owner == "" || owner == r.self
}

func (r *Router) handlerFor(documentID string) (rpc.Handler, error) {
	owner := r.Owner(documentID)
	if owner == "" || owner == r.self {
		return r.local, nil
	}
	return r.clientFor(owner)
}

func (r *Router) clientFor(nodeID string) (*rpc.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[nodeID]; ok {
		return c, nil
	}
	addr := r.members.Addr(nodeID)
	if addr == "" {
		return nil, errUnreachable(nodeID)
	}
	c, err := r.dial(addr)
	if err != nil {
		return nil, err
	}
	r.clients[nodeID] = c
	return c, nil
}

func (r *Router) Submit(ctx context.Context, req *rpc.SubmitRequest) (*rpc.SubmitResponse, error) {
	return dispatch(r, ctx, "submit", req.DocumentID, func(h rpc.Handler) (*rpc.SubmitResponse, error) { return h.Submit(ctx, req) })
}

func (r *Router) GetSnapshot(ctx context.Context, req *rpc.GetSnapshotRequest) (*rpc.GetSnapshotResponse, error) {
	return dispatch(r, ctx, "get_snapshot", req.DocumentID, func(h rpc.Handler) (*rpc.GetSnapshotResponse, error) { return h.GetSnapshot(ctx, req) })
}

func (r *Router) Touch(ctx context.Context, req *rpc.TouchRequest) (*rpc.TouchResponse, error) {
	return dispatch(r, ctx, "touch", req.DocumentID, func(h rpc.Handler) (*rpc.TouchResponse, error) { return h.Touch(ctx, req) })
}

func (r *Router) SetPresence(ctx context.Context, req *rpc.SetPresenceRequest) (*rpc.SetPresenceResponse, error) {
	return dispatch(r, ctx, "set_presence", req.DocumentID, func(h rpc.Handler) (*rpc.SetPresenceResponse, error) { return h.SetPresence(ctx, req) })
}

func (r *Router) RemovePresence(ctx context.Context, req *rpc.RemovePresenceRequest) (*rpc.RemovePresenceResponse, error) {
	return dispatch(r, ctx, "remove_presence", req.DocumentID, func(h rpc.Handler) (*rpc.RemovePresenceResponse, error) {
		return h.RemovePresence(ctx, req)
	})
}

func (r *Router) GetPresenceSnapshot(ctx context.Context, req *rpc.GetPresenceSnapshotRequest) (*rpc.GetPresenceSnapshotResponse, error) {
	return dispatch(r, ctx, "get_presence_snapshot", req.DocumentID, func(h rpc.Handler) (*rpc.GetPresenceSnapshotResponse, error) {
		return h.GetPresenceSnapshot(ctx, req)
	})
}

// dispatch resolves the owning handler for documentID and runs fn against
// it, recording a forward observation when the call left this node.
func dispatch[T any](r *Router, ctx context.Context, procedure, documentID string, fn func(rpc.Handler) (T, error)) (T, error) {
	var zero T
	h, err := r.handlerFor(documentID)
	if err != nil {
		return zero, err
	}
	local := r.IsLocal(documentID)
	if !local {
		logger.L(ctx).Debug("forwarding entity operation", logger.KeyDocumentID, documentID, "owner", r.Owner(documentID))
	}
	start := time.Now()
	res, err := fn(h)
	if !local {
		metrics.ObserveForward(r.metrics, procedure, time.Since(start), err == nil)
	}
	return res, err
}

var _ rpc.Handler = (*Router)(nil)
