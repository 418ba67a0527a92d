package config

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/foundrysync/mimic/internal/logger"
)

// Live holds the bounded subset of configuration safe to change in a
// running process: log level/format, document idle/history/snapshot
// tunables, and broadcast buffer/overflow policy. Everything else
// (listen address, base path, storage driver selection, auth driver,
// shard group membership) is load-once and a change to it on disk is
// logged and ignored.
type Live struct {
	v atomic.Pointer[liveValues]
}

type liveValues struct {
	logging   LoggingConfig
	document  DocumentConfig
	broadcast BroadcastConfig
}

// NewLive snapshots the hot-reloadable fields of cfg.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.store(cfg)
	return l
}

func (l *Live) store(cfg *Config) {
	l.v.Store(&liveValues{logging: cfg.Logging, document: cfg.Document, broadcast: cfg.Broadcast})
}

// Logging returns the current hot-reloadable logging config.
func (l *Live) Logging() LoggingConfig { return l.v.Load().logging }

// Document returns the current hot-reloadable document tunables.
func (l *Live) Document() DocumentConfig { return l.v.Load().document }

// Broadcast returns the current hot-reloadable broadcast tunables.
func (l *Live) Broadcast() BroadcastConfig { return l.v.Load().broadcast }

// Watcher reloads configPath on write events and updates a Live in place,
// rejecting changes to load-once fields with a logged warning rather than
// applying them.
type Watcher struct {
	configPath string
	live       *Live
	baseline   *Config

	mu sync.Mutex
}

// NewWatcher builds a Watcher bound to configPath and live. baseline is
// the fully-loaded Config at startup, used to detect load-once field
// drift.
func NewWatcher(configPath string, live *Live, baseline *Config) *Watcher {
	return &Watcher{configPath: configPath, live: live, baseline: baseline}
}

// Run watches configPath until ctx is cancelled. It never returns an
// error for a watch failure after startup: a broken watcher just stops
// reloading, it does not crash the server.
func (w *Watcher) Run(ctx context.Context) error {
	if w.configPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		return err
	}

	log := logger.L(ctx)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logger.KeyError, err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := logger.L(ctx)
	next, err := Load(w.configPath)
	if err != nil {
		log.Warn("config reload failed, keeping previous values", logger.KeyError, err)
		return
	}

	if driftsOnLoadOnceFields(w.baseline, next) {
		log.Warn("ignoring change to load-once configuration fields; restart to apply")
	}

	w.live.store(next)
	w.baseline.Logging = next.Logging
	w.baseline.Document = next.Document
	w.baseline.Broadcast = next.Broadcast
	log.Info("configuration reloaded")
}

func driftsOnLoadOnceFields(baseline, next *Config) bool {
	return baseline.Server.BasePath != next.Server.BasePath ||
		baseline.Server.ListenAddr != next.Server.ListenAddr ||
		baseline.Storage.ColdStorage.Driver != next.Storage.ColdStorage.Driver ||
		baseline.Storage.HotStorage.Driver != next.Storage.HotStorage.Driver ||
		baseline.Auth.Driver != next.Auth.Driver ||
		baseline.Sharding.NodeID != next.Sharding.NodeID
}
