// Package boltstore is an embedded, single-file implementation of the user and
// task stores on top of bbolt. It backs local development and the test suite;
// production deployments use the MySQL repositories.
package boltstore

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers  = []byte("users")
	bucketEmails = []byte("emails")
	bucketTasks  = []byte("tasks")
)

// DB wraps an open bbolt database.
type DB struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &DB{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database file.
func (s *DB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Users returns the user store view of the database.
func (s *DB) Users() *UserRepository {
	return &UserRepository{db: s.db}
}

// Tasks returns the task store view of the database.
func (s *DB) Tasks() *TaskRepository {
	return &TaskRepository{db: s.db}
}

func (s *DB) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketEmails, bucketTasks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}
