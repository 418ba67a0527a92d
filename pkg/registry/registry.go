// Package registry maps document ids to live document.Runtime instances:
// materializing on demand, evicting idle runtimes, and orchestrating
// orderly shutdown.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/pkg/document"
	"github.com/foundrysync/mimic/pkg/metrics"
)

// Factory builds the per-document Config handed to document.New. Callers
// supply documentID-specific pieces (storage drivers, applier, initial
// state fn) already resolved; Registry only owns lifecycle.
type Factory func(documentID string) document.Config

// Registry owns every live document.Runtime in this process. At most one
// runtime per document id exists at a time.
type Registry struct {
	factory         Factory
	maxIdleTime     time.Duration
	gcInterval      time.Duration
	presenceMetrics metrics.PresenceMetrics
	registryMetrics metrics.RegistryMetrics

	mu        sync.Mutex
	runtimes  map[string]*document.Runtime
	// creating guards the "two creators" race: a document id present here
	// has a materialization in flight; other callers wait on its channel.
	creating map[string]chan struct{}

	stopGC chan struct{}
	gcDone chan struct{}
}

// New creates a Registry. factory must return a fully-populated
// document.Config for any document id it is asked to resolve.
func New(factory Factory, maxIdleTime, gcInterval time.Duration, presenceMetrics metrics.PresenceMetrics, registryMetrics metrics.RegistryMetrics) *Registry {
	if maxIdleTime <= 0 {
		maxIdleTime = 5 * time.Minute
	}
	if gcInterval <= 0 {
		gcInterval = time.Minute
	}
	r := &Registry{
		factory:         factory,
		maxIdleTime:     maxIdleTime,
		gcInterval:      gcInterval,
		presenceMetrics: presenceMetrics,
		registryMetrics: registryMetrics,
		runtimes:        make(map[string]*document.Runtime),
		creating:        make(map[string]chan struct{}),
		stopGC:          make(chan struct{}),
		gcDone:          make(chan struct{}),
	}
	go r.runGC()
	return r
}

// GetOrCreate returns the live runtime for documentID, materializing it
// via the restore pipeline on first access. Concurrent callers for the
// same fresh document id block on a single materialization.
func (r *Registry) GetOrCreate(ctx context.Context, documentID string) (*document.Runtime, error) {
	for {
		r.mu.Lock()
		if rt, ok := r.runtimes[documentID]; ok {
			r.mu.Unlock()
			return rt, nil
		}
		if wait, inFlight := r.creating[documentID]; inFlight {
			r.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		r.creating[documentID] = done
		r.mu.Unlock()

		rt, err := document.New(ctx, r.factory(documentID), r.presenceMetrics)

		r.mu.Lock()
		delete(r.creating, documentID)
		close(done)
		if err == nil {
			r.runtimes[documentID] = rt
		}
		activeCount := len(r.runtimes)
		r.mu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("materialize document %q: %w", documentID, err)
		}
		if rt.RestoredFromSnapshot() {
			metrics.DocumentsRestored(r.registryMetrics)
		} else {
			metrics.DocumentsCreated(r.registryMetrics)
		}
		metrics.SetDocumentsActive(r.registryMetrics, activeCount)
		return rt, nil
	}
}

// runGC evicts idle runtimes every gcInterval. One bad document never
// stops the loop: panics and errors from an individual eviction are
// caught and logged.
func (r *Registry) runGC() {
	defer close(r.gcDone)
	ticker := time.NewTicker(r.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopGC:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	r.mu.Lock()
	var stale []string
	for id, rt := range r.runtimes {
		if rt.IdleSince() >= r.maxIdleTime {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.evictOne(id, "idle")
	}
}

func (r *Registry) evictOne(documentID, reason string) {
	r.mu.Lock()
	rt, ok := r.runtimes[documentID]
	if ok {
		delete(r.runtimes, documentID)
	}
	activeCount := len(r.runtimes)
	r.mu.Unlock()
	if !ok {
		return
	}

	ctx := logger.WithContext(context.Background(), logger.New("").WithDocument(documentID).WithProcedure("evict"))
	if err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic during eviction snapshot: %v", p)
			}
		}()
		return rt.SaveSnapshot(ctx)
	}(); err != nil {
		logger.L(ctx).Warn("best-effort eviction snapshot failed", logger.KeyDocumentID, documentID, logger.KeyReason, reason, logger.KeyError, err)
	}
	rt.Close()

	metrics.DocumentsEvicted(r.registryMetrics)
	metrics.SetDocumentsActive(r.registryMetrics, activeCount)
	logger.L(ctx).Info("document evicted", logger.KeyDocumentID, documentID, logger.KeyReason, reason)
}

// Shutdown stops the idle-GC loop and attempts a final best-effort
// snapshot of every live runtime. It always completes, even if some
// snapshots fail.
func (r *Registry) Shutdown(ctx context.Context) {
	close(r.stopGC)
	<-r.gcDone

	r.mu.Lock()
	ids := make([]string, 0, len(r.runtimes))
	for id := range r.runtimes {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		rt, ok := r.runtimes[id]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if err := rt.SaveSnapshot(ctx); err != nil {
			logger.L(ctx).Warn("best-effort shutdown snapshot failed", logger.KeyDocumentID, id, logger.KeyError, err)
		}
		rt.Close()
	}
}
