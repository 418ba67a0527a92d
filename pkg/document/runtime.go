// Package document implements the per-document state machine: load,
// accept or reject transactions, broadcast, snapshot, and evict. Exactly
// one Runtime exists per live document id within a registry (or, in the
// sharded variant, within a shard group).
package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/internal/telemetry"
	"github.com/foundrysync/mimic/pkg/coldstorage"
	"github.com/foundrysync/mimic/pkg/hotstorage"
	"github.com/foundrysync/mimic/pkg/metrics"
	"github.com/foundrysync/mimic/pkg/model"
	"github.com/foundrysync/mimic/pkg/presence"
	"github.com/foundrysync/mimic/pkg/schema"
)

// Rejection reasons, surfaced verbatim in the error server message.
const (
	ReasonEmptyTransaction  = "Transaction is empty"
	ReasonAlreadyProcessed  = "Transaction has already been processed"
	ReasonStorageUnavailable = "Storage unavailable. Please retry."
)

// SubmitError is returned by Submit for any non-fatal rejection. The
// connection stays open; the caller sends a single error server message.
type SubmitError struct {
	TransactionID string
	Reason        string
}

func (e *SubmitError) Error() string { return e.Reason }

// Config wires a Runtime's collaborators and tunables. All fields except
// DocumentID, ColdStore, HotStore, and Applier have sane defaults.
type Config struct {
	DocumentID string

	ColdStore coldstorage.Store
	HotStore  hotstorage.Store
	Applier   schema.Applier

	// Initial overrides Applier.Initial for a fresh document, e.g. to
	// depend on an external service. Optional.
	Initial func(documentID string) ([]byte, error)

	MaxIdleTime                 time.Duration
	MaxTransactionHistory       int
	SnapshotInterval             time.Duration
	SnapshotTransactionThreshold int
	BroadcastBufferSize          int
	OverflowPolicy               OverflowPolicy
	StorageCallTimeout           time.Duration

	// Sharded selects AppendWithCheck (optimistic version check) instead
	// of plain Append for the durable-append phase of submit.
	Sharded bool

	Metrics metrics.DocumentMetrics
}

func (c *Config) setDefaults() {
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 5 * time.Minute
	}
	if c.MaxTransactionHistory <= 0 {
		c.MaxTransactionHistory = 1000
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 5 * time.Minute
	}
	if c.SnapshotTransactionThreshold <= 0 {
		c.SnapshotTransactionThreshold = 100
	}
	if c.BroadcastBufferSize <= 0 {
		c.BroadcastBufferSize = 256
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = OverflowDropOldest
	}
	if c.StorageCallTimeout <= 0 {
		c.StorageCallTimeout = 5 * time.Second
	}
}

// Runtime owns the authoritative in-memory state of one document and
// serializes every mutation through a single goroutine-unsafe critical
// section guarded by mu. Reads of the latest committed snapshot are safe
// to serve concurrently with an in-flight submit because state is only
// ever replaced atomically at the end of the apply phase.
type Runtime struct {
	cfg Config

	mu                        sync.Mutex
	state                     []byte
	currentVersion            uint64
	dedup                     *dedupRing
	lastSnapshotVersion       uint64
	lastSnapshotTime          time.Time
	transactionsSinceSnapshot int
	lastActivity              time.Time

	broadcaster *broadcaster
	presence    *presence.Registry

	restoredFromSnapshot bool
}

// RestoredFromSnapshot reports whether this runtime was materialized from
// an existing cold-storage snapshot (true) or created fresh (false).
func (r *Runtime) RestoredFromSnapshot() bool {
	return r.restoredFromSnapshot
}

// New materializes a Runtime for cfg.DocumentID by running the restore
// pipeline: load the cold-storage snapshot, load the hot-storage tail
// since that snapshot's version, check continuity, and replay.
func New(ctx context.Context, cfg Config, presenceMetrics metrics.PresenceMetrics) (*Runtime, error) {
	cfg.setDefaults()

	ctx, span := telemetry.StartDocumentSpan(ctx, telemetry.SpanRestore, cfg.DocumentID)
	defer span.End()
	start := time.Now()

	r := &Runtime{
		cfg:         cfg,
		dedup:       newDedupRing(cfg.MaxTransactionHistory),
		broadcaster: newBroadcaster(cfg.BroadcastBufferSize, cfg.OverflowPolicy, func(policy string) {
			metrics.RecordBroadcastDrop(cfg.Metrics, cfg.DocumentID, policy)
		}),
		presence:         presence.New(cfg.DocumentID, presenceMetrics),
		lastActivity:     time.Now(),
		lastSnapshotTime: time.Now(),
	}

	source := "fresh"
	storeCtx, cancel := context.WithTimeout(ctx, cfg.StorageCallTimeout)
	snap, err := cfg.ColdStore.Load(storeCtx, cfg.DocumentID)
	cancel()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var initialVersion uint64
	if snap != nil {
		source = "snapshot"
		r.state = snap.State
		initialVersion = snap.Version
		r.restoredFromSnapshot = true
	} else {
		initial, err := r.computeInitial(cfg.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("compute initial state: %w", err)
		}
		r.state = initial
		initialVersion = 0
	}

	storeCtx, cancel = context.WithTimeout(ctx, cfg.StorageCallTimeout)
	entries, err := cfg.HotStore.GetEntries(storeCtx, cfg.DocumentID, initialVersion)
	cancel()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("load WAL tail: %w", err)
	}

	r.checkContinuity(ctx, initialVersion, entries)

	currentVersion := initialVersion
	for _, entry := range entries {
		newState, err := cfg.Applier.Apply(r.state, entry.Transaction.Ops)
		if err != nil {
			logger.L(ctx).Warn("skipping WAL entry the applier rejected during replay",
				logger.KeyDocumentID, cfg.DocumentID, logger.KeyVersion, entry.Version, logger.KeyError, err)
			continue
		}
		r.state = newState
		currentVersion = entry.Version
		r.dedup.insert(entry.Transaction.ID)
	}
	r.currentVersion = currentVersion
	r.lastSnapshotVersion = initialVersion

	metrics.ObserveRestore(cfg.Metrics, source, time.Since(start))
	if source == "snapshot" {
		logger.L(ctx).Info("document restored from snapshot", logger.KeyDocumentID, cfg.DocumentID, logger.KeyVersion, r.currentVersion)
	} else {
		logger.L(ctx).Info("document created fresh", logger.KeyDocumentID, cfg.DocumentID)
	}
	return r, nil
}

func (r *Runtime) computeInitial(documentID string) ([]byte, error) {
	if r.cfg.Initial != nil {
		return r.cfg.Initial(documentID)
	}
	return r.cfg.Applier.Initial(documentID)
}

// checkContinuity logs (non-fatally) any gap between the snapshot's
// version and the first WAL entry, or between consecutive WAL entries.
func (r *Runtime) checkContinuity(ctx context.Context, initialVersion uint64, entries []model.WALEntry) {
	if len(entries) == 0 {
		return
	}
	if entries[0].Version != initialVersion+1 {
		metrics.RecordVersionGap(r.cfg.Metrics, r.cfg.DocumentID)
		logger.L(ctx).Warn("WAL does not continue from snapshot version",
			logger.KeyDocumentID, r.cfg.DocumentID, "snapshot_version", initialVersion, "first_wal_version", entries[0].Version)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Version != entries[i-1].Version+1 {
			metrics.RecordVersionGap(r.cfg.Metrics, r.cfg.DocumentID)
			logger.L(ctx).Warn("internal WAL version gap",
				logger.KeyDocumentID, r.cfg.DocumentID, "previous_version", entries[i-1].Version, "next_version", entries[i].Version)
		}
	}
}

// Touch bumps the runtime's last-activity timestamp, used by the idle GC.
func (r *Runtime) Touch() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// IdleSince reports how long it has been since the last activity.
func (r *Runtime) IdleSince() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastActivity)
}

// GetSnapshot returns the current committed state and version. Safe to
// call concurrently with Submit.
func (r *Runtime) GetSnapshot() ([]byte, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.currentVersion
}

// Subscribe returns a stream of transaction broadcasts in submit order,
// and an unsubscribe func bound to the caller's lifetime.
func (r *Runtime) Subscribe() (<-chan Broadcast, func()) {
	return r.broadcaster.subscribe()
}

// Presence returns this document's presence registry.
func (r *Runtime) Presence() *presence.Registry {
	return r.presence
}

// Submit runs the three-phase submit pipeline: validate, durable append,
// apply & broadcast. It is strictly serialized per document: phases 2 and
// 3 of two submits never interleave, so subscribers observe broadcasts in
// the same order as successful submits.
func (r *Runtime) Submit(ctx context.Context, tx model.Transaction) (version uint64, err error) {
	r.Touch()

	ctx, span := telemetry.StartDocumentSpan(ctx, telemetry.SpanSubmit, r.cfg.DocumentID, telemetry.TransactionID(tx.ID))
	defer span.End()
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Phase 1: validate.
	if len(tx.Ops) == 0 {
		metrics.ObserveSubmit(r.cfg.Metrics, "rejected", time.Since(start))
		return 0, &SubmitError{TransactionID: tx.ID, Reason: ReasonEmptyTransaction}
	}
	if r.dedup.contains(tx.ID) {
		metrics.ObserveSubmit(r.cfg.Metrics, "rejected", time.Since(start))
		return 0, &SubmitError{TransactionID: tx.ID, Reason: ReasonAlreadyProcessed}
	}
	if reason := r.cfg.Applier.Validate(r.state, tx); reason != "" {
		metrics.ObserveSubmit(r.cfg.Metrics, "rejected", time.Since(start))
		return 0, &SubmitError{TransactionID: tx.ID, Reason: reason}
	}

	nextVersion := r.currentVersion + 1
	entry := model.WALEntry{Transaction: tx, Version: nextVersion, Timestamp: time.Now().UnixMilli()}

	// Phase 2: durable append.
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StorageCallTimeout)
	var appendErr error
	if r.cfg.Sharded {
		appendErr = r.cfg.HotStore.AppendWithCheck(storeCtx, r.cfg.DocumentID, entry, nextVersion)
	} else {
		appendErr = r.cfg.HotStore.Append(storeCtx, r.cfg.DocumentID, entry)
	}
	cancel()
	if appendErr != nil {
		telemetry.RecordError(ctx, appendErr)
		metrics.ObserveSubmit(r.cfg.Metrics, "storage_error", time.Since(start))
		return 0, &SubmitError{TransactionID: tx.ID, Reason: ReasonStorageUnavailable}
	}

	// Phase 3: apply & broadcast.
	newState, err := r.cfg.Applier.Apply(r.state, tx.Ops)
	if err != nil {
		// The applier accepted Validate but failed Apply: treat as a
		// storage-adjacent failure, since the WAL already durably holds
		// the entry and state must not silently diverge from it.
		metrics.ObserveSubmit(r.cfg.Metrics, "storage_error", time.Since(start))
		return 0, &SubmitError{TransactionID: tx.ID, Reason: ReasonStorageUnavailable}
	}
	r.state = newState
	r.currentVersion = nextVersion
	r.dedup.insert(tx.ID)
	r.transactionsSinceSnapshot++

	r.broadcaster.publish(Broadcast{Transaction: tx, Version: nextVersion})
	metrics.ObserveSubmit(r.cfg.Metrics, "ok", time.Since(start))

	r.maybeSnapshotLocked(ctx)
	return nextVersion, nil
}

// maybeSnapshotLocked evaluates the snapshot triggers and, if tripped,
// runs the save pipeline. Called with mu already held, from inside
// Submit's single-writer section.
func (r *Runtime) maybeSnapshotLocked(ctx context.Context) {
	tripped := r.transactionsSinceSnapshot >= r.cfg.SnapshotTransactionThreshold ||
		time.Since(r.lastSnapshotTime) >= r.cfg.SnapshotInterval
	if !tripped {
		return
	}
	if err := r.saveSnapshotLocked(ctx); err != nil {
		logger.L(ctx).Warn("snapshot save failed, will retry on next trigger",
			logger.KeyDocumentID, r.cfg.DocumentID, logger.KeyError, err)
	}
}

// saveSnapshotLocked runs the idempotent save pipeline. Caller must hold
// mu (or otherwise guarantee exclusive access, as Shutdown does).
func (r *Runtime) saveSnapshotLocked(ctx context.Context) error {
	ctx, span := telemetry.StartDocumentSpan(ctx, telemetry.SpanSaveSnapshot, r.cfg.DocumentID)
	defer span.End()
	start := time.Now()

	if r.currentVersion <= r.lastSnapshotVersion {
		return nil
	}
	version := r.currentVersion
	state := r.state

	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StorageCallTimeout)
	err := r.cfg.ColdStore.Save(storeCtx, r.cfg.DocumentID, model.Snapshot{
		State:         state,
		Version:       version,
		SchemaVersion: model.CurrentSchemaVersion,
		SavedAt:       time.Now().UnixMilli(),
	})
	cancel()
	metrics.ObserveSnapshotSave(r.cfg.Metrics, err == nil, time.Since(start))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Counters update before truncation: a failed truncate must never
	// cause a repeated re-save of the same version.
	r.lastSnapshotVersion = version
	r.lastSnapshotTime = time.Now()
	r.transactionsSinceSnapshot = 0

	truncCtx, cancel := context.WithTimeout(ctx, r.cfg.StorageCallTimeout)
	if err := r.cfg.HotStore.Truncate(truncCtx, r.cfg.DocumentID, version); err != nil {
		cancel()
		logger.L(ctx).Warn("WAL truncate failed, retrying at next snapshot",
			logger.KeyDocumentID, r.cfg.DocumentID, logger.KeyVersion, version, logger.KeyError, err)
		return nil
	}
	cancel()
	return nil
}

// SaveSnapshot runs the save pipeline outside of a submit, e.g. for the
// registry's idle-eviction or shutdown paths.
func (r *Runtime) SaveSnapshot(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveSnapshotLocked(ctx)
}

// Close releases resources held by the runtime (subscriber channels).
// Called by the registry after a final snapshot, on eviction or shutdown.
func (r *Runtime) Close() {
	r.broadcaster.closeAll()
}
