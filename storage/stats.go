package storage

import (
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// totalStatsKey is the key used to store aggregate faucet statistics.
var totalStatsKey = []byte("totals")

// Stats holds aggregate dispensing statistics across all sessions.
type Stats struct {
	ClaimCount     int64         `json:"claimCount" cbor:"1,keyasint"`
	TotalDispensed *types.BigInt `json:"totalDispensed" cbor:"2,keyasint"`
	LastClaimTime  int64         `json:"lastClaimTime" cbor:"3,keyasint"`
}

// Stats returns the aggregate dispensing statistics. A missing record is
// returned as zero stats.
func (s *Storage) Stats() (*Stats, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.statsUnsafe()
}

func (s *Storage) statsUnsafe() (*Stats, error) {
	stats := new(Stats)
	if err := s.getArtifact(statsPrefix, totalStatsKey, stats); err != nil {
		if err != ErrNotFound {
			return nil, err
		}
		log.Debugw("initializing to zero faucet stats")
	}
	if stats.TotalDispensed == nil {
		stats.TotalDispensed = types.NewBigInt(0)
	}
	return stats, nil
}

// AddClaimed accounts a confirmed claim of the given amount at the given
// unix time into the aggregate statistics.
func (s *Storage) AddClaimed(amount *types.BigInt, claimTime int64) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	stats, err := s.statsUnsafe()
	if err != nil {
		return err
	}
	stats.ClaimCount++
	stats.TotalDispensed.Add(stats.TotalDispensed, amount)
	if claimTime > stats.LastClaimTime {
		stats.LastClaimTime = claimTime
	}
	return s.setArtifact(statsPrefix, totalStatsKey, stats)
}
