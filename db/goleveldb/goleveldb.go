package goleveldb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/cw-faucet/faucetd/db"
)

// GoLevelDB implements db.Database using syndtr/goleveldb.
type GoLevelDB struct {
	db *leveldb.DB
}

// check that GoLevelDB implements the db.Database interface
var _ db.Database = (*GoLevelDB)(nil)

// New returns a GoLevelDB using the given Options.
func New(opts db.Options) (*GoLevelDB, error) {
	o := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	ldb, err := leveldb.OpenFile(opts.Path, o)
	if err != nil {
		return nil, err
	}
	return &GoLevelDB{db: ldb}, nil
}

// Get implements the db.Database.Get interface method
func (d *GoLevelDB) Get(k []byte) ([]byte, error) {
	v, err := d.db.Get(k, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

// Iterate implements the db.Database.Iterate interface method
func (d *GoLevelDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		localKey := iter.Key()[len(prefix):]
		if cont := callback(localKey, iter.Value()); !cont {
			break
		}
	}
	return iter.Error()
}

// WriteTx returns a db.WriteTx
func (d *GoLevelDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:      d.db,
		batch:   new(leveldb.Batch),
		pending: make(map[string][]byte),
	}
}

// Close closes the GoLevelDB
func (d *GoLevelDB) Close() error {
	return d.db.Close()
}

// WriteTx implements db.WriteTx over a leveldb.Batch. goleveldb batches are
// write-only, so pending writes are mirrored in a map to serve Get.
type WriteTx struct {
	db      *leveldb.DB
	batch   *leveldb.Batch
	pending map[string][]byte // nil value means deleted
	done    bool
}

// check that WriteTx implements the db.WriteTx interface
var _ db.WriteTx = (*WriteTx)(nil)

// Get implements the db.WriteTx.Get interface method
func (tx *WriteTx) Get(k []byte) ([]byte, error) {
	if v, ok := tx.pending[string(k)]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(v), nil
	}
	v, err := tx.db.Get(k, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

// Set implements the db.WriteTx.Set interface method
func (tx *WriteTx) Set(k, v []byte) error {
	tx.batch.Put(k, v)
	tx.pending[string(k)] = bytes.Clone(v)
	return nil
}

// Delete implements the db.WriteTx.Delete interface method
func (tx *WriteTx) Delete(k []byte) error {
	tx.batch.Delete(k)
	tx.pending[string(k)] = nil
	return nil
}

// Commit implements the db.WriteTx.Commit interface method
func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("cannot commit leveldb tx: already committed or discarded")
	}
	tx.done = true
	return tx.db.Write(tx.batch, nil)
}

// Discard implements the db.WriteTx.Discard interface method
func (tx *WriteTx) Discard() {
	if tx.done {
		return
	}
	tx.done = true
	tx.batch.Reset()
}
