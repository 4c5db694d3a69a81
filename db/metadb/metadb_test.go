package metadb

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/cw-faucet/faucetd/db"
	"github.com/cw-faucet/faucetd/db/prefixeddb"
)

func TestBackends(t *testing.T) {
	for _, typ := range []string{db.TypePebble, db.TypeLevelDB} {
		t.Run(typ, func(t *testing.T) {
			c := qt.New(t)
			database, err := New(typ, t.TempDir())
			c.Assert(err, qt.IsNil)
			defer func() {
				c.Assert(database.Close(), qt.IsNil)
			}()
			exerciseDatabase(c, database)
		})
	}
}

func TestUnknownType(t *testing.T) {
	c := qt.New(t)
	_, err := New("bogus", t.TempDir())
	c.Assert(err, qt.IsNotNil)
}

func TestPrefixedDatabase(t *testing.T) {
	c := qt.New(t)
	base, err := New(db.TypePebble, t.TempDir())
	c.Assert(err, qt.IsNil)
	defer func() { _ = base.Close() }()

	a := prefixeddb.NewPrefixedDatabase(base, []byte("a/"))
	b := prefixeddb.NewPrefixedDatabase(base, []byte("b/"))

	wtx := a.WriteTx()
	c.Assert(wtx.Set([]byte("k"), []byte("va")), qt.IsNil)
	c.Assert(wtx.Commit(), qt.IsNil)
	wtx = b.WriteTx()
	c.Assert(wtx.Set([]byte("k"), []byte("vb")), qt.IsNil)
	c.Assert(wtx.Commit(), qt.IsNil)

	va, err := a.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(va), qt.Equals, "va")
	vb, err := b.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(vb), qt.Equals, "vb")

	// iteration stays inside the namespace
	var seen int
	c.Assert(a.Iterate(nil, func(k, v []byte) bool {
		seen++
		c.Assert(string(k), qt.Equals, "k")
		c.Assert(string(v), qt.Equals, "va")
		return true
	}), qt.IsNil)
	c.Assert(seen, qt.Equals, 1)
}

func exerciseDatabase(c *qt.C, database db.Database) {
	// missing keys
	_, err := database.Get([]byte("missing"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	// set and get through a write tx
	wtx := database.WriteTx()
	for i := range 5 {
		c.Assert(wtx.Set(fmt.Appendf(nil, "p/key%d", i), fmt.Appendf(nil, "value%d", i)), qt.IsNil)
	}
	// reads observe buffered writes
	v, err := wtx.Get([]byte("p/key3"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(v), qt.Equals, "value3")
	c.Assert(wtx.Commit(), qt.IsNil)

	v, err = database.Get([]byte("p/key0"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(v), qt.Equals, "value0")

	// prefix iteration strips the prefix
	var keys []string
	c.Assert(database.Iterate([]byte("p/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 5)
	c.Assert(keys[0], qt.Equals, "key0")

	// early iteration stop
	var count int
	c.Assert(database.Iterate([]byte("p/"), func(_, _ []byte) bool {
		count++
		return count < 2
	}), qt.IsNil)
	c.Assert(count, qt.Equals, 2)

	// delete
	wtx = database.WriteTx()
	c.Assert(wtx.Delete([]byte("p/key0")), qt.IsNil)
	c.Assert(wtx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("p/key0"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	// discarded writes are dropped
	wtx = database.WriteTx()
	c.Assert(wtx.Set([]byte("p/ghost"), []byte("x")), qt.IsNil)
	wtx.Discard()
	_, err = database.Get([]byte("p/ghost"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}
