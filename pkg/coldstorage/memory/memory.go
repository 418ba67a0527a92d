// Package memory is an in-process, non-durable Store used for tests and
// local development.
package memory

import (
	"context"
	"sync"

	"github.com/foundrysync/mimic/pkg/coldstorage"
	"github.com/foundrysync/mimic/pkg/model"
)

// Store is a mutex-guarded map of document id to snapshot.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]model.Snapshot
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{snapshots: make(map[string]model.Snapshot)}
}

func (s *Store) Load(_ context.Context, id string) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, nil
	}
	clone := snap
	clone.State = append([]byte(nil), snap.State...)
	return &clone, nil
}

func (s *Store) Save(_ context.Context, id string, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := snap
	clone.State = append([]byte(nil), snap.State...)
	s.snapshots[id] = clone
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}

var _ coldstorage.Store = (*Store)(nil)
