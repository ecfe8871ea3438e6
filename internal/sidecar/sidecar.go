// Package sidecar is a thin key→JSON store layered over an embedded
// buntdb database, used to attach arbitrary metadata to generated output
// files without touching the filesystem layout (spec §4.G, §4.L).
package sidecar

import (
	"encoding/json"

	"github.com/tidwall/buntdb"

	"github.com/amd-agi/genforge/internal/logger/log"
)

// Store wraps a single buntdb database file.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if absent) the buntdb file at path. A corrupt or
// unreadable file is reported as an error; callers in the history reader
// treat this as "no sidecar available" rather than a fatal condition.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the raw JSON metadata stored under key, and whether it was
// found. Any error (including "key not found") is treated as not-found;
// the caller degrades to a nil metadata value rather than failing.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}

	var value string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if err != buntdb.ErrNotFound {
			log.Warnf("sidecar: get %q: %v", key, err)
		}
		return nil, false
	}
	return json.RawMessage(value), true
}

// Put stores metadata (already-marshaled JSON) under key, overwriting any
// previous value.
func (s *Store) Put(key string, metadata json.RawMessage) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(metadata), nil)
		return err
	})
}
