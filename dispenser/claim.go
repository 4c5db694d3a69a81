package dispenser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// Domain errors surfaced to the API layer. PreClaimHook errors wrapping one
// of these are re-raised verbatim; anything else becomes ErrInternal.
var (
	ErrNotClaimable   = errors.New("session is not claimable")
	ErrAmountTooLow   = errors.New("drop amount is below the minimum")
	ErrAmountTooHigh  = errors.New("drop amount is above the maximum")
	ErrInvalidAddress = errors.New("invalid target address")
	ErrRaceClaiming   = errors.New("session is already claiming")
	ErrInternal       = errors.New("internal error")
)

// domainErrors are the claim rejections a module hook may raise verbatim.
var domainErrors = []error{
	ErrNotClaimable, ErrAmountTooLow, ErrAmountTooHigh,
	ErrInvalidAddress, ErrRaceClaiming,
}

// CreateClaim validates the session, commits it into the claim pipeline and
// persists it in claiming status. The returned ClaimInfo carries the
// assigned claim index.
func (p *Pipeline) CreateClaim(sess *types.Session) (*types.ClaimInfo, error) {
	if sess == nil {
		return nil, ErrNotClaimable
	}
	if sess.Status != types.SessionStatusClaimable {
		return nil, ErrNotClaimable
	}
	if sess.DropAmount == nil || (p.cfg.MinAmount != nil && sess.DropAmount.Cmp(p.cfg.MinAmount) < 0) {
		return nil, ErrAmountTooLow
	}
	if p.cfg.MaxAmount != nil && sess.DropAmount.Cmp(p.cfg.MaxAmount) > 0 {
		return nil, ErrAmountTooHigh
	}
	if p.cfg.AddressPrefix != "" && !strings.HasPrefix(sess.TargetAddr, p.cfg.AddressPrefix) {
		return nil, ErrInvalidAddress
	}

	// Reserve the session slot and allocate the claim index atomically so
	// two concurrent claims for the same session cannot both pass.
	p.mu.Lock()
	if _, exists := p.bySession[sess.ID]; exists {
		p.mu.Unlock()
		return nil, ErrRaceClaiming
	}
	claimIdx := p.nextClaimIdx
	p.nextClaimIdx++
	info := &types.ClaimInfo{
		SessionID:  sess.ID,
		TargetAddr: sess.TargetAddr,
		Amount:     sess.DropAmount,
		Claim: &types.Claim{
			ClaimIdx:  claimIdx,
			Status:    types.ClaimStatusQueue,
			ClaimTime: time.Now().Unix(),
		},
	}
	p.bySession[sess.ID] = info
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		delete(p.bySession, sess.ID)
		p.mu.Unlock()
	}

	if p.cfg.PreClaimHook != nil {
		if err := p.cfg.PreClaimHook(sess); err != nil {
			release()
			for _, domain := range domainErrors {
				if errors.Is(err, domain) {
					return nil, err
				}
			}
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}

	sess.Status = types.SessionStatusClaiming
	sess.Claim = info.Claim
	if err := p.store.SetSession(sess); err != nil {
		release()
		return nil, fmt.Errorf("%w: persist claiming session: %v", ErrInternal, err)
	}

	// Insert into the queue keeping claimIdx order; a concurrent creation
	// with a lower index may persist after us.
	p.mu.Lock()
	at := sort.Search(len(p.queue), func(i int) bool {
		return p.queue[i].Claim.ClaimIdx > claimIdx
	})
	p.queue = append(p.queue, nil)
	copy(p.queue[at+1:], p.queue[at:])
	p.queue[at] = info
	p.mu.Unlock()

	log.Infow("claim created",
		"session", sess.ID,
		"claimIdx", claimIdx,
		"target", sess.TargetAddr,
		"amount", sess.DropAmount.String(),
	)
	return info, nil
}
