// Package storage keeps the local upload ledger inside the .mgost
// directory. Every successful upload is recorded so status reporting
// can show what drifted since the last sync without asking the
// service.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/asdine/storm/v3"
	bolt "go.etcd.io/bbolt"

	"github.com/mgost/mgost/logging"
)

// UploadRecord remembers one successfully uploaded file.
type UploadRecord struct {
	Path        string `storm:"id"`
	UploadedAt  time.Time
	Size        int64
	Fingerprint string
}

// Store wraps the ledger database.
type Store struct {
	db *storm.DB
}

// Open opens (or creates) the ledger at path.
func Open(path string) (*Store, error) {
	log := logging.Sub("storage")
	log.Debug("opening upload ledger", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db, err := storm.Open(path, storm.BoltOptions(0640, &bolt.Options{Timeout: time.Second}))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts the ledger entry for rec.Path.
func (s *Store) Record(rec UploadRecord) error {
	return s.db.Save(&rec)
}

// Get returns the entry for path, or nil when the path was never
// recorded.
func (s *Store) Get(path string) (*UploadRecord, error) {
	var rec UploadRecord
	err := s.db.One("Path", path, &rec)
	if errors.Is(err, storm.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// All returns every ledger entry.
func (s *Store) All() ([]UploadRecord, error) {
	var recs []UploadRecord
	if err := s.db.All(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Forget drops the entry for path. Dropping an unknown path is not an
// error.
func (s *Store) Forget(path string) error {
	err := s.db.DeleteStruct(&UploadRecord{Path: path})
	if errors.Is(err, storm.ErrNotFound) {
		return nil
	}
	return err
}
