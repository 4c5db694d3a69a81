package storage

import (
	"fmt"
	"sort"

	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// sessionIndexKey builds the secondary index key for a session status.
func sessionIndexKey(status types.SessionStatus, id string) []byte {
	key := make([]byte, 0, len(id)+1)
	key = append(key, byte(status))
	return append(key, []byte(id)...)
}

// Session returns the session with the given id. Returns ErrNotFound if it
// does not exist.
func (s *Storage) Session(id string) (*types.Session, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.sessionUnsafe(id)
}

func (s *Storage) sessionUnsafe(id string) (*types.Session, error) {
	if sess, ok := s.cache.Get(id); ok {
		return sess, nil
	}
	sess := new(types.Session)
	if err := s.getArtifact(sessionPrefix, []byte(id), sess); err != nil {
		return nil, err
	}
	s.cache.Add(id, sess)
	return sess, nil
}

// SetSession persists the full session record, maintaining the status index.
func (s *Storage) SetSession(sess *types.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("invalid session")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setSessionUnsafe(sess)
}

func (s *Storage) setSessionUnsafe(sess *types.Session) error {
	data, err := EncodeArtifact(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	wtx := s.db.WriteTx()
	defer wtx.Discard()

	// Drop the stale index entry if the status changed.
	prev := new(types.Session)
	if err := s.getArtifact(sessionPrefix, []byte(sess.ID), prev); err == nil {
		if prev.Status != sess.Status {
			if err := wtx.Delete(append(sessionIndexPrefix, sessionIndexKey(prev.Status, sess.ID)...)); err != nil {
				return err
			}
		}
	}

	if err := wtx.Set(append(sessionPrefix, []byte(sess.ID)...), data); err != nil {
		return err
	}
	if err := wtx.Set(append(sessionIndexPrefix, sessionIndexKey(sess.Status, sess.ID)...), nil); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	s.cache.Add(sess.ID, sess)
	return nil
}

// UpdateSessionClaim stores the claim record of the given session without
// touching the rest of the session fields. Returns ErrNotFound if the
// session does not exist.
func (s *Storage) UpdateSessionClaim(id string, claim *types.Claim) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	sess, err := s.sessionUnsafe(id)
	if err != nil {
		return err
	}
	sess.Claim = claim
	return s.setSessionUnsafe(sess)
}

// SessionsByStatus returns every session currently in the given status,
// ordered by session id.
func (s *Storage) SessionsByStatus(status types.SessionStatus) ([]*types.Session, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var ids []string
	prefix := append([]byte{}, sessionIndexPrefix...)
	prefix = append(prefix, byte(status))
	if err := s.db.Iterate(prefix, func(k, _ []byte) bool {
		ids = append(ids, string(k))
		return true
	}); err != nil {
		return nil, err
	}
	sort.Strings(ids)

	sessions := make([]*types.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.sessionUnsafe(id)
		if err != nil {
			// A dangling index entry is not fatal for a scan.
			log.Warnw("dangling session index entry", "session", id, "error", err)
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// UnclaimedBalance returns the sum of drop amounts committed to live
// sessions that have not entered the claim pipeline yet.
func (s *Storage) UnclaimedBalance() (*types.BigInt, error) {
	total := types.NewBigInt(0)
	for _, status := range []types.SessionStatus{types.SessionStatusRunning, types.SessionStatusClaimable} {
		sessions, err := s.SessionsByStatus(status)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if sess.DropAmount != nil {
				total.Add(total, sess.DropAmount)
			}
		}
	}
	return total, nil
}
