// Package builddb records build runs and their attempts in a bbolt
// database so past results survive the process.
package builddb

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for bbolt database
const (
	BucketRuns     = "runs"
	BucketAttempts = "attempts"
)

// lockTimeout bounds the wait for another mkimg holding the file lock.
const lockTimeout = 5 * time.Second

// DB wraps a bbolt database holding run and attempt records.
type DB struct {
	db   *bolt.DB
	path string
}

// OpenDB opens or creates a bbolt database at the given path, creating the
// parent directory and the runs and attempts buckets as needed. The file is
// created with 0600 permissions.
//
// Example:
//
//	db, err := OpenDB("/var/log/mkimg/mkimg.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
func OpenDB(path string) (*DB, error) {
	if path == "" {
		return nil, &ValidationError{Field: "path", Err: ErrEmptyPath}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &DatabaseError{Op: "create directory", Err: err}
	}

	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketAttempts} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return &DatabaseError{Op: "create bucket", Bucket: name, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &DB{db: bdb, path: path}, nil
}

// Close closes the database. It is safe to call Close more than once.
func (db *DB) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	err := db.db.Close()
	db.db = nil
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, &DatabaseError{Op: "get bucket", Bucket: name, Err: ErrBucketNotFound}
	}
	return b, nil
}

func (db *DB) view(fn func(tx *bolt.Tx) error) error {
	if db == nil || db.db == nil {
		return &DatabaseError{Op: "view", Err: ErrDatabaseNotOpen}
	}
	return db.db.View(fn)
}

func (db *DB) update(fn func(tx *bolt.Tx) error) error {
	if db == nil || db.db == nil {
		return &DatabaseError{Op: "update", Err: ErrDatabaseNotOpen}
	}
	return db.db.Update(fn)
}
