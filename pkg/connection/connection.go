// Package connection implements the per-socket protocol state machine:
// authenticate, dispatch incoming codec messages, and fan document/
// presence broadcasts back out to the socket.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/internal/telemetry"
	"github.com/foundrysync/mimic/pkg/auth"
	"github.com/foundrysync/mimic/pkg/codec"
	"github.com/foundrysync/mimic/pkg/document"
	"github.com/foundrysync/mimic/pkg/model"
	"github.com/foundrysync/mimic/pkg/presence"
	"github.com/foundrysync/mimic/pkg/registry"
	"github.com/foundrysync/mimic/pkg/schema"
)

// State is one of the three connection-handler states.
type State int

const (
	StateNew State = iota
	StateAuthenticatedRead
	StateAuthenticatedWrite
	StateClosed
)

// Socket is the narrow interface the handler needs from a transport. A
// gorilla/websocket connection satisfies it via a thin adapter in
// pkg/transport/ws; tests can supply an in-memory fake.
type Socket interface {
	WriteMessage(data []byte) error
	RemoteAddr() string
}

// PresenceConfig records whether this deployment has opted into the
// presence feature for the document being served (a document-wide
// config, not a per-connection choice).
type PresenceConfig struct {
	Enabled bool
	Validate func(data json.RawMessage) string // returns a rejection reason, or "" if valid
}

// Handler is the per-socket state machine. One Handler exists per
// WebSocket connection for the lifetime of that socket.
type Handler struct {
	ID         string
	socket     Socket
	auth       auth.Provider
	registry   *registry.Registry
	applier    schema.Applier
	documentID string
	presenceCfg PresenceConfig

	mu         sync.Mutex
	state      State
	userID     string
	permission model.Permission

	runtime              *document.Runtime
	unsubscribeBroadcast func()
	unsubscribePresence  func()
	stopPump             chan struct{}
	pumpWG               sync.WaitGroup
}

// New creates a Handler bound to documentID, not yet authenticated.
func New(socket Socket, authProvider auth.Provider, reg *registry.Registry, applier schema.Applier, documentID string, presenceCfg PresenceConfig) *Handler {
	return &Handler{
		ID:          uuid.NewString(),
		socket:      socket,
		auth:        authProvider,
		registry:    reg,
		applier:     applier,
		documentID:  documentID,
		presenceCfg: presenceCfg,
		state:       StateNew,
		stopPump:    make(chan struct{}),
	}
}

func (h *Handler) logContext() *logger.LogContext {
	lc := logger.New(h.ID).WithDocument(h.documentID)
	h.mu.Lock()
	userID := h.userID
	h.mu.Unlock()
	if userID != "" {
		lc = lc.WithUser(userID)
	}
	return lc
}

// HandleFrame decodes and dispatches a single inbound WebSocket text
// frame. A decode failure is a protocol error: logged and dropped, the
// socket stays open.
func (h *Handler) HandleFrame(ctx context.Context, frame []byte) {
	env, err := codec.Decode(frame)
	if err != nil {
		logger.L(ctx).Warn("dropping unparseable frame", logger.KeyConnectionID, h.ID, logger.KeyError, err)
		return
	}

	ctx = logger.WithContext(ctx, h.logContext().WithProcedure(env.Type).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))
	ctx, span := telemetry.StartConnectionSpan(ctx, telemetry.SpanSocketMessage, h.ID, telemetry.Procedure(env.Type))
	defer span.End()

	h.touchRuntime()

	switch env.Type {
	case codec.TypePing:
		h.handlePing(ctx)
	case codec.TypeAuth:
		h.handleAuth(ctx, env)
	case codec.TypeSubmit:
		h.handleSubmit(ctx, env)
	case codec.TypeRequestSnapshot:
		h.handleRequestSnapshot(ctx)
	case codec.TypePresenceSet:
		h.handlePresenceSet(ctx, env)
	case codec.TypePresenceClear:
		h.handlePresenceClear(ctx)
	default:
		logger.L(ctx).Warn("unknown message type", logger.KeyConnectionID, h.ID, "type", env.Type)
	}
}

func (h *Handler) touchRuntime() {
	h.mu.Lock()
	rt := h.runtime
	h.mu.Unlock()
	if rt != nil {
		rt.Touch()
	}
}

func (h *Handler) currentState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) handlePing(ctx context.Context) {
	h.send(ctx, codec.TypePong, struct{}{})
}

func (h *Handler) handleAuth(ctx context.Context, env codec.Envelope) {
	var payload codec.AuthPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		logger.L(ctx).Warn("malformed auth payload", logger.KeyConnectionID, h.ID, logger.KeyError, err)
		return
	}

	verdict, err := h.auth.Authenticate(ctx, payload.Token)
	if err != nil {
		h.send(ctx, codec.TypeAuthResult, codec.AuthResultPayload{Success: false, Error: "authentication provider error"})
		return
	}
	if !verdict.OK {
		h.send(ctx, codec.TypeAuthResult, codec.AuthResultPayload{Success: false, Error: verdict.Reason})
		return
	}

	rt, err := h.registry.GetOrCreate(ctx, h.documentID)
	if err != nil {
		h.send(ctx, codec.TypeAuthResult, codec.AuthResultPayload{Success: false, Error: "document unavailable"})
		return
	}

	h.mu.Lock()
	if h.state != StateNew {
		// Re-auth: tear down the previous subscriptions before rewiring.
		h.teardownSubscriptionsLocked()
	}
	h.userID = verdict.UserID
	h.permission = verdict.Permission
	if verdict.Permission == model.PermissionWrite {
		h.state = StateAuthenticatedWrite
	} else {
		h.state = StateAuthenticatedRead
	}
	h.runtime = rt
	h.mu.Unlock()

	h.send(ctx, codec.TypeAuthResult, codec.AuthResultPayload{Success: true, UserID: verdict.UserID, Permission: verdict.Permission})

	state, version := rt.GetSnapshot()
	h.send(ctx, codec.TypeSnapshot, codec.SnapshotPayload{State: state, Version: version})

	h.subscribeBroadcasts(rt)

	if h.presenceCfg.Enabled {
		h.subscribePresence(rt.Presence())
		h.sendPresenceSnapshot(ctx, rt.Presence())
	}
}

func (h *Handler) sendPresenceSnapshot(ctx context.Context, reg *presence.Registry) {
	snap := reg.Snapshot()
	wire := make(map[string]codec.PresenceEntryWire, len(snap))
	for id, entry := range snap {
		wire[id] = codec.PresenceEntryWire{Data: entry.Data, UserID: entry.UserID}
	}
	h.send(ctx, codec.TypePresenceSnap, codec.PresenceSnapshotPayload{SelfID: h.ID, Presences: wire})
}

func (h *Handler) handleSubmit(ctx context.Context, env codec.Envelope) {
	state := h.currentState()
	if state == StateNew {
		h.send(ctx, codec.TypeError, codec.ErrorPayload{Reason: "not authenticated"})
		return
	}
	if state != StateAuthenticatedWrite {
		h.send(ctx, codec.TypeError, codec.ErrorPayload{Reason: "write permission required"})
		return
	}

	var payload codec.SubmitPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		logger.L(ctx).Warn("malformed submit payload", logger.KeyConnectionID, h.ID, logger.KeyError, err)
		return
	}

	tx, err := h.applier.Decode(payload.Transaction)
	if err != nil {
		logger.L(ctx).Warn("undecodable transaction", logger.KeyConnectionID, h.ID, logger.KeyError, err)
		h.send(ctx, codec.TypeError, codec.ErrorPayload{Reason: "malformed transaction"})
		return
	}

	h.mu.Lock()
	rt := h.runtime
	h.mu.Unlock()

	version, err := rt.Submit(ctx, tx)
	if err != nil {
		reason := err.Error()
		h.send(ctx, codec.TypeError, codec.ErrorPayload{TransactionID: tx.ID, Reason: reason})
		return
	}
	_ = version // the submitter also sees its own transaction via the broadcast subscription, per spec (no self-echo suppression for transactions)
}

func (h *Handler) handleRequestSnapshot(ctx context.Context) {
	state := h.currentState()
	if state == StateNew {
		return
	}
	h.mu.Lock()
	rt := h.runtime
	h.mu.Unlock()

	snapState, version := rt.GetSnapshot()
	h.send(ctx, codec.TypeSnapshot, codec.SnapshotPayload{State: snapState, Version: version})
}

func (h *Handler) handlePresenceSet(ctx context.Context, env codec.Envelope) {
	state := h.currentState()
	if state == StateNew {
		return
	}
	if state != StateAuthenticatedWrite {
		logger.L(ctx).Debug("ignoring presence_set from read-only connection", logger.KeyConnectionID, h.ID)
		return
	}
	if !h.presenceCfg.Enabled {
		return
	}

	var payload codec.PresenceSetPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		logger.L(ctx).Warn("malformed presence_set payload", logger.KeyConnectionID, h.ID, logger.KeyError, err)
		return
	}
	if h.presenceCfg.Validate != nil {
		if reason := h.presenceCfg.Validate(payload.Data); reason != "" {
			logger.L(ctx).Debug("presence_set rejected by schema", logger.KeyConnectionID, h.ID, logger.KeyReason, reason)
			return
		}
	}

	h.mu.Lock()
	rt, userID := h.runtime, h.userID
	h.mu.Unlock()
	rt.Presence().SetPresence(h.ID, model.PresenceEntry{Data: payload.Data, UserID: userID})
}

func (h *Handler) handlePresenceClear(ctx context.Context) {
	if h.currentState() == StateNew {
		return
	}
	h.mu.Lock()
	rt := h.runtime
	h.mu.Unlock()
	if rt != nil {
		rt.Presence().RemovePresence(h.ID)
	}
}

func (h *Handler) subscribeBroadcasts(rt *document.Runtime) {
	stream, unsubscribe := rt.Subscribe()
	h.mu.Lock()
	h.unsubscribeBroadcast = unsubscribe
	h.mu.Unlock()

	h.pumpWG.Add(1)
	go func() {
		defer h.pumpWG.Done()
		ctx := logger.WithContext(context.Background(), h.logContext())
		for {
			select {
			case b, ok := <-stream:
				if !ok {
					return
				}
				wire, err := h.applier.Encode(b.Transaction)
				if err != nil {
					logger.L(ctx).Error("failed to encode broadcast transaction", logger.KeyConnectionID, h.ID, logger.KeyError, err)
					continue
				}
				h.send(ctx, codec.TypeTransaction, codec.TransactionPayload{Transaction: wire, Version: b.Version})
			case <-h.stopPump:
				return
			}
		}
	}()
}

func (h *Handler) subscribePresence(reg *presence.Registry) {
	stream, unsubscribe := reg.Subscribe()
	h.mu.Lock()
	h.unsubscribePresence = unsubscribe
	h.mu.Unlock()

	h.pumpWG.Add(1)
	go func() {
		defer h.pumpWG.Done()
		ctx := logger.WithContext(context.Background(), h.logContext())
		for {
			select {
			case ev, ok := <-stream:
				if !ok {
					return
				}
				if ev.ID == h.ID {
					// no self-echo for presence events
					continue
				}
				h.deliverPresenceEvent(ctx, ev)
			case <-h.stopPump:
				return
			}
		}
	}()
}

func (h *Handler) deliverPresenceEvent(ctx context.Context, ev presence.Event) {
	switch ev.Kind {
	case presence.EventUpdate:
		h.send(ctx, codec.TypePresenceUpdate, codec.PresenceUpdatePayload{ID: ev.ID, Data: ev.Data, UserID: ev.UserID})
	case presence.EventRemove:
		h.send(ctx, codec.TypePresenceRemove, codec.PresenceRemovePayload{ID: ev.ID})
	}
}

func (h *Handler) send(ctx context.Context, msgType string, payload any) {
	frame, err := codec.Encode(msgType, payload)
	if err != nil {
		logger.L(ctx).Error("failed to encode outgoing message", logger.KeyConnectionID, h.ID, "type", msgType, logger.KeyError, err)
		return
	}
	if err := h.socket.WriteMessage(frame); err != nil {
		logger.L(ctx).Debug("failed to write to socket", logger.KeyConnectionID, h.ID, logger.KeyError, err)
	}
}

// teardownSubscriptionsLocked cancels the active broadcast/presence
// subscriptions. Caller must hold mu.
func (h *Handler) teardownSubscriptionsLocked() {
	if h.unsubscribeBroadcast != nil {
		h.unsubscribeBroadcast()
		h.unsubscribeBroadcast = nil
	}
	if h.unsubscribePresence != nil {
		h.unsubscribePresence()
		h.unsubscribePresence = nil
	}
}

// Close tears down the connection: cancels subscriptions, removes this
// connection's presence entry, and stops the fan-out pumps. Safe to call
// more than once. Failures are logged and swallowed, per spec.
func (h *Handler) Close() {
	ctx := logger.WithContext(context.Background(), h.logContext().WithProcedure("teardown"))

	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return
	}
	rt := h.runtime
	h.state = StateClosed
	h.teardownSubscriptionsLocked()
	h.mu.Unlock()

	close(h.stopPump)
	h.pumpWG.Wait()

	if rt != nil {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logger.L(ctx).Error("panic during presence teardown", logger.KeyConnectionID, h.ID, logger.KeyError, fmt.Errorf("%v", p))
				}
			}()
			rt.Presence().RemovePresence(h.ID)
		}()
	}
	logger.L(ctx).Debug("connection closed", logger.KeyConnectionID, h.ID)
}
