// Package storage provides the key-value store behind the vault, the
// passcode verifier and the session cache.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together on Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// Purger is implemented by databases that can erase a key range together
// with any superseded copies they still hold.
type Purger interface {
	Purge(prefix []byte) error
}

// Purge erases every key under prefix. Databases without a Purger have
// their keys deleted one by one.
func Purge(db DB, prefix []byte) error {
	if p, ok := db.(Purger); ok {
		return p.Purge(prefix)
	}
	var keys [][]byte
	err := db.ForEach(prefix, func(key, _ []byte) error {
		keys = append(keys, cloneBytes(key))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := db.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
