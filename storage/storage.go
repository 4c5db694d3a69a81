/*
Package storage provides the persistent layer of the faucet daemon.

The storage uses a key-value database with prefixed namespaces:

  - s/  : sessionID → Session (status, target address, drop amount, claim)
  - si/ : status byte + sessionID → nil (secondary index for status scans)
  - st/ : stats keys → aggregate faucet statistics

Sessions are the unit of persistence: the claim record of a claiming session
is embedded in the session artifact, so the claim pipeline can be rebuilt
after a crash from the session table alone.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cw-faucet/faucetd/db"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("not found")

	// Prefixes
	sessionPrefix      = []byte("s/")
	sessionIndexPrefix = []byte("si/")
	statsPrefix        = []byte("st/")
)

const sessionCacheSize = 1000

// Storage manages the persisted faucet sessions and statistics.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	cache      *lru.Cache[string, *types.Session]
}

// New creates a new Storage instance over the given database.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, *types.Session](sessionCacheSize)
	if err != nil {
		log.Fatalf("failed to create session cache: %v", err)
	}
	return &Storage{
		db:    database,
		cache: cache,
	}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	s.cache.Purge()
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close database", "error", err)
	}
}

// setArtifact encodes and stores an artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(append(prefix, key...), data); err != nil {
		return err
	}
	return wtx.Commit()
}

// getArtifact loads and decodes the artifact stored under prefix+key.
// Returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := s.db.Get(append(prefix, key...))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}
