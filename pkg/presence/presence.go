// Package presence implements the ephemeral per-document presence
// registry: a connection-id -> entry map plus a pubsub of update/remove
// events, entirely in-memory and non-durable.
package presence

import (
	"sync"

	"github.com/foundrysync/mimic/pkg/metrics"
	"github.com/foundrysync/mimic/pkg/model"
)

// EventKind discriminates a presence pubsub event.
type EventKind string

const (
	EventUpdate EventKind = "update"
	EventRemove EventKind = "remove"
)

// Event is published whenever an entry is set or removed.
type Event struct {
	Kind   EventKind
	ID     string
	Data   []byte
	UserID string
}

// Registry holds the live presence entries for one document and fans out
// update/remove events to subscribers. The zero value is not usable; use
// New.
type Registry struct {
	documentID string
	metrics    metrics.PresenceMetrics

	mu      sync.RWMutex
	entries map[string]model.PresenceEntry

	subMu sync.Mutex
	subs  map[int]chan Event
	nextSub int
}

// New creates an empty Registry for documentID. m may be nil.
func New(documentID string, m metrics.PresenceMetrics) *Registry {
	return &Registry{
		documentID: documentID,
		metrics:    m,
		entries:    make(map[string]model.PresenceEntry),
		subs:       make(map[int]chan Event),
	}
}

// SetPresence upserts connectionID's entry and publishes an update event.
func (r *Registry) SetPresence(connectionID string, entry model.PresenceEntry) {
	r.mu.Lock()
	r.entries[connectionID] = entry
	n := len(r.entries)
	r.mu.Unlock()

	metrics.RecordPresenceSet(r.metrics, r.documentID)
	metrics.SetPresenceActiveEntries(r.metrics, r.documentID, n)
	r.publish(Event{Kind: EventUpdate, ID: connectionID, Data: entry.Data, UserID: entry.UserID})
}

// RemovePresence deletes connectionID's entry, if present, and publishes a
// remove event. It is a no-op if the entry is already absent.
func (r *Registry) RemovePresence(connectionID string) {
	r.mu.Lock()
	_, existed := r.entries[connectionID]
	delete(r.entries, connectionID)
	n := len(r.entries)
	r.mu.Unlock()

	if !existed {
		return
	}
	metrics.RecordPresenceRemove(r.metrics, r.documentID)
	metrics.SetPresenceActiveEntries(r.metrics, r.documentID, n)
	r.publish(Event{Kind: EventRemove, ID: connectionID})
}

// Snapshot returns a copy of the current connection-id -> entry map, sent
// to a newly authenticated subscriber as presence_snapshot.
func (r *Registry) Snapshot() map[string]model.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.PresenceEntry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Subscribe returns a channel of presence events and an unsubscribe func.
// The channel is buffered; a slow subscriber simply misses events rather
// than blocking other subscribers, since presence data is inherently
// stale-tolerant (a fresh presence_snapshot is sent on every re-auth).
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	unsubscribe := func() {
		r.subMu.Lock()
		if existing, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(existing)
		}
		r.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber drops the event; the next presence_snapshot
			// (sent on re-auth) reconciles state.
		}
	}
}
