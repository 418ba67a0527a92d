// Package memory is an in-process, non-durable Store used for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/foundrysync/mimic/pkg/hotstorage"
	"github.com/foundrysync/mimic/pkg/model"
)

// Store is a mutex-guarded map of document id to its ordered entry slice.
type Store struct {
	mu      sync.Mutex
	entries map[string][]model.WALEntry
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{entries: make(map[string][]model.WALEntry)}
}

func (s *Store) Append(_ context.Context, id string, entry model.WALEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = append(s.entries[id], entry)
	return nil
}

func (s *Store) AppendWithCheck(_ context.Context, id string, entry model.WALEntry, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.entries[id]
	var lastVersion uint64
	hadAny := len(existing) > 0
	if hadAny {
		lastVersion = existing[len(existing)-1].Version
	}
	if hadAny && lastVersion != expectedVersion-1 {
		return &hotstorage.WalVersionGapError{DocumentID: id, Expected: expectedVersion, ActualPrevious: lastVersion, HadAny: true}
	}
	if !hadAny && expectedVersion != 1 {
		return &hotstorage.WalVersionGapError{DocumentID: id, Expected: expectedVersion, HadAny: false}
	}
	s.entries[id] = append(existing, entry)
	return nil
}

func (s *Store) GetEntries(_ context.Context, id string, sinceVersion uint64) ([]model.WALEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[id]
	out := make([]model.WALEntry, 0, len(all))
	for _, e := range all {
		if e.Version > sinceVersion {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *Store) Truncate(_ context.Context, id string, upToVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[id]
	kept := all[:0:0]
	for _, e := range all {
		if e.Version > upToVersion {
			kept = append(kept, e)
		}
	}
	s.entries[id] = kept
	return nil
}

var _ hotstorage.Store = (*Store)(nil)
