// Package badger is an embedded-KV-backed hotstorage.Store using
// dgraph-io/badger, the teacher's own choice for a durable local WAL.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/foundrysync/mimic/pkg/hotstorage"
	"github.com/foundrysync/mimic/pkg/model"
)

// Store persists WAL entries as Badger key-value pairs. Keys are
// "wal/<documentID>/<version zero-padded to 20 digits>" so that Badger's
// lexicographic iteration order is also version order.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if absent) a Badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, hotstorage.NewError("", "open", hotstorage.ErrUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func walKey(id string, version uint64) []byte {
	return []byte(fmt.Sprintf("wal/%s/%020d", id, version))
}

func walPrefix(id string) []byte {
	return []byte(fmt.Sprintf("wal/%s/", id))
}

func (s *Store) Append(_ context.Context, id string, entry model.WALEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return hotstorage.NewError(id, "append", hotstorage.ErrInvalidArgument, err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(walKey(id, entry.Version), data)
	})
	if err != nil {
		return hotstorage.NewError(id, "append", hotstorage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) lastVersion(txn *badgerdb.Txn, id string) (version uint64, hadAny bool, err error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = walPrefix(id)
	it := txn.NewIterator(opts)
	defer it.Close()

	seekKey := append(append([]byte{}, walPrefix(id)...), 0xFF)
	it.Seek(seekKey)
	if !it.ValidForPrefix(walPrefix(id)) {
		return 0, false, nil
	}
	var entry model.WALEntry
	item := it.Item()
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return 0, false, err
	}
	return entry.Version, true, nil
}

func (s *Store) AppendWithCheck(_ context.Context, id string, entry model.WALEntry, expectedVersion uint64) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		last, hadAny, err := s.lastVersion(txn, id)
		if err != nil {
			return err
		}
		if hadAny && last != expectedVersion-1 {
			return &hotstorage.WalVersionGapError{DocumentID: id, Expected: expectedVersion, ActualPrevious: last, HadAny: true}
		}
		if !hadAny && expectedVersion != 1 {
			return &hotstorage.WalVersionGapError{DocumentID: id, Expected: expectedVersion, HadAny: false}
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(walKey(id, entry.Version), data)
	})
	if err == nil {
		return nil
	}
	if gapErr, ok := err.(*hotstorage.WalVersionGapError); ok {
		return gapErr
	}
	return hotstorage.NewError(id, "appendWithCheck", hotstorage.ErrUnavailable, err)
}

func (s *Store) GetEntries(_ context.Context, id string, sinceVersion uint64) ([]model.WALEntry, error) {
	var out []model.WALEntry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = walPrefix(id)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(walPrefix(id)); it.ValidForPrefix(walPrefix(id)); it.Next() {
			var entry model.WALEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if entry.Version > sinceVersion {
				out = append(out, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, hotstorage.NewError(id, "getEntries", hotstorage.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) Truncate(_ context.Context, id string, upToVersion uint64) error {
	var keysToDelete [][]byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = walPrefix(id)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(walPrefix(id)); it.ValidForPrefix(walPrefix(id)); it.Next() {
			var entry model.WALEntry
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if entry.Version <= upToVersion {
				keysToDelete = append(keysToDelete, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return hotstorage.NewError(id, "truncate", hotstorage.ErrUnavailable, err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		for _, k := range keysToDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return hotstorage.NewError(id, "truncate", hotstorage.ErrUnavailable, err)
	}
	return nil
}

var _ hotstorage.Store = (*Store)(nil)
