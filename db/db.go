// Package db defines the key-value database interface used by the faucet
// storage layer, with implementations backed by Pebble and LevelDB.
package db

import "errors"

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Available database types for metadb.New.
const (
	TypePebble  = "pebble"
	TypeLevelDB = "leveldb"
)

// Options defines generic parameters for creating a database.
type Options struct {
	Path string
}

// Database wraps the common methods of a key-value database. Writes go
// through a WriteTx so that multi-key updates commit atomically.
type Database interface {
	// Get retrieves the value for the given key. Returns ErrKeyNotFound
	// if the key does not exist.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback with all key-value pairs in the database
	// whose key starts with prefix. The prefix is stripped from the keys
	// passed to the callback. Iteration stops when callback returns false.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
	// WriteTx returns a new write transaction.
	WriteTx() WriteTx
	// Close closes the database, releasing the underlying resources.
	Close() error
}

// WriteTx is a write transaction. It is not safe for concurrent use. Either
// Commit or Discard must be called; Discard after Commit is a no-op.
type WriteTx interface {
	// Get retrieves the value for the given key, observing the writes
	// already buffered in the transaction.
	Get(key []byte) ([]byte, error)
	// Set adds a key-value pair to the transaction.
	Set(key, value []byte) error
	// Delete removes a key from the transaction.
	Delete(key []byte) error
	// Commit atomically applies all the pending writes.
	Commit() error
	// Discard drops the pending writes.
	Discard()
}
