// Package metadb selects a concrete db.Database implementation by name.
package metadb

import (
	"cmp"
	"fmt"
	"os"
	"testing"

	"github.com/cw-faucet/faucetd/db"
	"github.com/cw-faucet/faucetd/db/goleveldb"
	"github.com/cw-faucet/faucetd/db/pebbledb"
)

// New creates a database of the given type at the given directory.
func New(typ, dir string) (db.Database, error) {
	var database db.Database
	var err error
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		database, err = pebbledb.New(opts)
		if err != nil {
			return nil, err
		}
	case db.TypeLevelDB:
		database, err = goleveldb.New(opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid dbType: %q. Available types: %q %q",
			typ, db.TypePebble, db.TypeLevelDB)
	}
	return database, nil
}

// ForTest returns the database type used by tests, overridable via
// $FAUCET_DB_TYPE.
func ForTest() (typ string) {
	return cmp.Or(os.Getenv("FAUCET_DB_TYPE"), db.TypePebble)
}

// NewTest returns a temporary database that is closed and removed when the
// test finishes.
func NewTest(tb testing.TB) db.Database {
	database, err := New(ForTest(), tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}
