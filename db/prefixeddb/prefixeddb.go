// Package prefixeddb wraps a db.Database so that all keys are transparently
// namespaced under a fixed prefix. It allows several logical databases to
// share a single underlying key-value store.
package prefixeddb

import (
	"github.com/cw-faucet/faucetd/db"
)

// PrefixedDatabase wraps a db.Database prepending a prefix to all keys.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

// check that PrefixedDatabase implements the db.Database interface
var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase returns a PrefixedDatabase over the given database
// using the given prefix.
func NewPrefixedDatabase(d db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{
		db:     d,
		prefix: prefix,
	}
}

func (d *PrefixedDatabase) key(k []byte) []byte {
	return append(append([]byte{}, d.prefix...), k...)
}

// Get implements the db.Database.Get interface method
func (d *PrefixedDatabase) Get(k []byte) ([]byte, error) {
	return d.db.Get(d.key(k))
}

// Iterate implements the db.Database.Iterate interface method
func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return d.db.Iterate(d.key(prefix), callback)
}

// WriteTx returns a db.WriteTx with all keys prefixed
func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return &WriteTx{
		tx:     d.db.WriteTx(),
		prefix: d.prefix,
	}
}

// Close closes the underlying database.
func (d *PrefixedDatabase) Close() error {
	return d.db.Close()
}

// WriteTx wraps a db.WriteTx prepending a prefix to all keys.
type WriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

// check that WriteTx implements the db.WriteTx interface
var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) key(k []byte) []byte {
	return append(append([]byte{}, tx.prefix...), k...)
}

// Get implements the db.WriteTx.Get interface method
func (tx *WriteTx) Get(k []byte) ([]byte, error) {
	return tx.tx.Get(tx.key(k))
}

// Set implements the db.WriteTx.Set interface method
func (tx *WriteTx) Set(k, v []byte) error {
	return tx.tx.Set(tx.key(k), v)
}

// Delete implements the db.WriteTx.Delete interface method
func (tx *WriteTx) Delete(k []byte) error {
	return tx.tx.Delete(tx.key(k))
}

// Commit implements the db.WriteTx.Commit interface method
func (tx *WriteTx) Commit() error {
	return tx.tx.Commit()
}

// Discard implements the db.WriteTx.Discard interface method
func (tx *WriteTx) Discard() {
	tx.tx.Discard()
}
