package dispenser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// Failure messages recorded on claims. They are user visible through the
// session status endpoint.
const (
	failMsgUnreachable = "Network RPC is currently unreachable."
	failMsgOutOfGas    = "Faucet wallet is out of gas funds."
	failMsgTxFailed    = "Transaction failed"
	failMsgTimeout     = "confirmation timeout"
)

// Tick drains the queue into the pending set. Exported for tests; the Start
// loop calls it every TickInterval. Single-flight: a re-entry while a
// previous tick is still running is skipped.
func (p *Pipeline) Tick(ctx context.Context) {
	p.tick(ctx)
}

func (p *Pipeline) tick(ctx context.Context) {
	if !p.tickRunning.CompareAndSwap(false, true) {
		return
	}
	defer p.tickRunning.Store(false)

	before := p.Progress()
	for {
		p.mu.Lock()
		if len(p.pending) >= p.cfg.MaxPending || len(p.queue) == 0 {
			p.mu.Unlock()
			break
		}
		ws := p.wallet.State()
		if !ws.Ready || ws.NativeBalance.Cmp(p.cfg.MinGasAmount) <= 0 {
			p.mu.Unlock()
			break
		}
		info := p.queue[0]
		p.queue = p.queue[1:]
		p.lastProcessedIdx = info.Claim.ClaimIdx
		info.Claim.Status = types.ClaimStatusProcessing
		p.mu.Unlock()

		if err := p.processClaim(ctx, info); err != nil {
			p.settleFailed(info, err.Error())
		}
	}

	if after := p.Progress(); after != before {
		p.bus.Broadcast(after)
	}
}

// processClaim broadcasts the transfer for a dequeued claim. On success the
// claim moves to pending and a confirmation watcher is spawned; the returned
// error, if any, is the terminal failure message for the claim.
func (p *Pipeline) processClaim(ctx context.Context, info *types.ClaimInfo) error {
	if err := p.store.UpdateSessionClaim(info.SessionID, info.Claim); err != nil {
		log.Warnw("failed to persist processing claim", "session", info.SessionID, "error", err)
	}

	ws := p.wallet.State()
	switch {
	case !ws.Ready:
		return errors.New(failMsgUnreachable)
	case ws.NativeBalance.Cmp(p.cfg.MinGasAmount) <= 0:
		return errors.New(failMsgOutOfGas)
	}

	txHash, err := p.wallet.SendTokens(ctx, info.TargetAddr, info.Amount)
	if err != nil {
		return fmt.Errorf("Processing Exception: %v", err)
	}

	p.mu.Lock()
	info.Claim.TxHash = txHash
	info.Claim.Status = types.ClaimStatusPending
	p.pending[txHash] = info
	p.mu.Unlock()

	if err := p.store.UpdateSessionClaim(info.SessionID, info.Claim); err != nil {
		log.Warnw("failed to persist pending claim", "session", info.SessionID, "error", err)
	}

	p.wg.Add(1)
	go p.watchConfirmation(info)
	return nil
}

// watchConfirmation polls the query client until the claim transaction is
// included, terminally failing the claim after ConfirmMaxWait.
func (p *Pipeline) watchConfirmation(info *types.ClaimInfo) {
	defer p.wg.Done()

	parent := p.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, p.cfg.ConfirmMaxWait)
	defer cancel()

	before := p.Progress()
	ticker := time.NewTicker(p.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		resp, err := p.querier.Tx(ctx, info.Claim.TxHash)
		switch {
		case err == nil:
			p.settleWatched(info, resp)
			if after := p.Progress(); after != before {
				p.bus.Broadcast(after)
			}
			return
		case errors.Is(err, chain.ErrTxNotFound):
			// not included yet, keep polling
		case ctx.Err() != nil:
			// handled below
		default:
			log.Warnw("transaction query failed, retrying",
				"txHash", info.Claim.TxHash, "error", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if parent.Err() != nil {
				// process shutdown: leave the claim pending, recovery
				// will reattach a watcher
				return
			}
			p.settleFailed(info, failMsgTimeout)
			return
		}
	}
}

// settleWatched applies the confirmation outcome of an included transaction.
func (p *Pipeline) settleWatched(info *types.ClaimInfo, resp *chain.TxResponse) {
	if resp == nil || resp.Code != 0 {
		msg := failMsgTxFailed
		if resp != nil && resp.RawLog != "" {
			msg = fmt.Sprintf("%s: %s", failMsgTxFailed, resp.RawLog)
		}
		p.settleFailed(info, msg)
		return
	}
	p.settleConfirmed(info, resp.Height)
}

// settleConfirmed marks a claim confirmed, raises the confirmation
// watermark, evicts the session from the live maps and persists the
// finished session.
func (p *Pipeline) settleConfirmed(info *types.ClaimInfo, height int64) {
	p.mu.Lock()
	if info.Claim.Status.Terminal() {
		p.mu.Unlock()
		return
	}
	info.Claim.Status = types.ClaimStatusConfirmed
	info.Claim.TxHeight = height
	info.Claim.TxFee = p.cfg.GasAmount.String()
	if info.Claim.ClaimIdx > p.lastConfirmedIdx {
		p.lastConfirmedIdx = info.Claim.ClaimIdx
	}
	p.evictLocked(info)
	p.mu.Unlock()

	p.persistTerminal(info, types.SessionStatusFinished)

	if err := p.store.AddClaimed(info.Amount, info.Claim.ClaimTime); err != nil {
		log.Warnw("failed to update claim stats", "session", info.SessionID, "error", err)
	}
	if p.cfg.ClaimedHook != nil {
		if sess, err := p.store.Session(info.SessionID); err == nil {
			p.cfg.ClaimedHook(sess)
		}
	}

	log.Infow("claim confirmed",
		"session", info.SessionID,
		"claimIdx", info.Claim.ClaimIdx,
		"txHash", info.Claim.TxHash,
		"height", height,
	)
}

// settleFailed marks a claim terminally failed, evicts the session from the
// live maps immediately and persists the failed session.
func (p *Pipeline) settleFailed(info *types.ClaimInfo, msg string) {
	p.mu.Lock()
	if info.Claim.Status.Terminal() {
		p.mu.Unlock()
		return
	}
	info.Claim.Status = types.ClaimStatusFailed
	info.Claim.TxError = msg
	p.evictLocked(info)
	p.mu.Unlock()

	p.persistTerminal(info, types.SessionStatusFailed)

	log.Warnw("claim failed",
		"session", info.SessionID,
		"claimIdx", info.Claim.ClaimIdx,
		"error", msg,
	)
}

// evictLocked removes a terminal claim from the live maps and retains it in
// the history for status queries. Claims are keyed by claimIdx, which is
// unique, so concurrent settlements cannot overwrite one another.
func (p *Pipeline) evictLocked(info *types.ClaimInfo) {
	delete(p.bySession, info.SessionID)
	if info.Claim.TxHash != "" {
		delete(p.pending, info.Claim.TxHash)
	}
	p.history[info.Claim.ClaimIdx] = &historyEntry{
		info:      info,
		expiresAt: time.Now().Add(p.cfg.HistoryTTL),
	}
}

// persistTerminal stores the terminal session state.
func (p *Pipeline) persistTerminal(info *types.ClaimInfo, status types.SessionStatus) {
	sess, err := p.store.Session(info.SessionID)
	if err != nil {
		log.Warnw("failed to load session for terminal persist",
			"session", info.SessionID, "error", err)
		return
	}
	sess.Status = status
	sess.Claim = info.Claim
	if err := p.store.SetSession(sess); err != nil {
		log.Warnw("failed to persist terminal session",
			"session", info.SessionID, "error", err)
	}
}
