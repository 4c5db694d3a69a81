// Package dispenser implements the claim-settlement pipeline of the faucet:
// the bounded claim queue, the per-claim state machine, the confirmation
// watchers and the treasury refill controller that keeps the dispensing
// wallet inside its balance band.
package dispenser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
	"github.com/cw-faucet/faucetd/wallet"
)

// SessionStore is the persistence surface the pipeline needs. Implemented by
// *storage.Storage; tests inject fakes.
type SessionStore interface {
	Session(id string) (*types.Session, error)
	SetSession(sess *types.Session) error
	UpdateSessionClaim(id string, claim *types.Claim) error
	SessionsByStatus(status types.SessionStatus) ([]*types.Session, error)
	AddClaimed(amount *types.BigInt, claimTime int64) error
}

// Wallet is the wallet-manager surface the pipeline and the refill
// controller need. Implemented by *wallet.Manager.
type Wallet interface {
	State() wallet.State
	SendTokens(ctx context.Context, recipient string, amount *types.BigInt) (string, error)
	ExecuteContract(ctx context.Context, contractAddr string, msg any, funds []chain.Coin) (string, error)
	LoadWalletState(ctx context.Context) error
}

// TxQuerier awaits transaction inclusion. Implemented by chain.QueryClient.
type TxQuerier interface {
	Tx(ctx context.Context, hash string) (*chain.TxResponse, error)
}

// Broadcaster publishes queue progress to waiting clients. Implemented by
// *hub.Hub.
type Broadcaster interface {
	Broadcast(p types.Progress)
	Reset()
}

// Config carries the pipeline parameters. Zero durations fall back to the
// defaults below.
type Config struct {
	AddressPrefix string
	MinAmount     *types.BigInt
	MaxAmount     *types.BigInt
	MaxPending    int
	MinGasAmount  *types.BigInt
	GasAmount     *types.BigInt // recorded as txFee on confirmed claims

	TickInterval        time.Duration
	ConfirmPollInterval time.Duration
	ConfirmMaxWait      time.Duration
	HistoryTTL          time.Duration

	// PreClaimHook runs before a claim is committed; a returned domain
	// error rejects the claim verbatim, any other error is wrapped as an
	// internal error.
	PreClaimHook func(sess *types.Session) error
	// ClaimedHook runs after a claim confirms on chain.
	ClaimedHook func(sess *types.Session)
}

const (
	defaultTickInterval        = 2 * time.Second
	defaultConfirmPollInterval = 3 * time.Second
	defaultConfirmMaxWait      = 10 * time.Minute
	defaultHistoryTTL          = 30 * time.Minute
	defaultMaxPending          = 10

	historySweepInterval = time.Minute
)

type historyEntry struct {
	info      *types.ClaimInfo
	expiresAt time.Time
}

// Pipeline owns the claim queue and drives claims from creation to their
// terminal state. All live-map access is guarded by a single mutex, never
// held across a chain RPC or a database write.
type Pipeline struct {
	cfg     Config
	store   SessionStore
	wallet  Wallet
	querier TxQuerier
	bus     Broadcaster

	mu        sync.Mutex
	queue     []*types.ClaimInfo          // sorted by claimIdx, head dequeued first
	bySession map[string]*types.ClaimInfo // live (non-terminal) claims
	pending   map[string]*types.ClaimInfo // txHash → claim awaiting confirmation
	history   map[int64]*historyEntry     // claimIdx → terminal claim, TTL bound

	lastProcessedIdx int64
	lastConfirmedIdx int64
	nextClaimIdx     int64

	tickRunning atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Pipeline and restores its state from the session store:
// every persisted claiming session is reinstated into the queue or the
// pending set according to its claim substatus.
func New(store SessionStore, w Wallet, querier TxQuerier, bus Broadcaster, cfg Config) (*Pipeline, error) {
	if store == nil || w == nil || querier == nil || bus == nil {
		return nil, fmt.Errorf("missing pipeline collaborator")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = defaultConfirmPollInterval
	}
	if cfg.ConfirmMaxWait <= 0 {
		cfg.ConfirmMaxWait = defaultConfirmMaxWait
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.MinGasAmount == nil {
		cfg.MinGasAmount = types.NewBigInt(0)
	}
	if cfg.GasAmount == nil {
		cfg.GasAmount = types.NewBigInt(0)
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		wallet:    w,
		querier:   querier,
		bus:       bus,
		bySession: make(map[string]*types.ClaimInfo),
		pending:   make(map[string]*types.ClaimInfo),
		history:   make(map[int64]*historyEntry),
	}
	if err := p.recover(); err != nil {
		return nil, fmt.Errorf("restore claim state: %w", err)
	}
	return p, nil
}

// recover reinstates persisted claiming sessions into the live maps.
func (p *Pipeline) recover() error {
	sessions, err := p.store.SessionsByStatus(types.SessionStatusClaiming)
	if err != nil {
		return err
	}

	var maxIdx int64
	for _, sess := range sessions {
		if sess.Claim == nil {
			log.Errorw(fmt.Errorf("claiming session without claim record"),
				fmt.Sprintf("dropping session %s from recovery", sess.ID))
			continue
		}
		info := &types.ClaimInfo{
			SessionID:  sess.ID,
			TargetAddr: sess.TargetAddr,
			Amount:     sess.DropAmount,
			Claim:      sess.Claim,
		}
		switch sess.Claim.Status {
		case types.ClaimStatusQueue, types.ClaimStatusProcessing:
			info.Claim.Status = types.ClaimStatusQueue
			p.queue = append(p.queue, info)
			p.bySession[sess.ID] = info
		case types.ClaimStatusPending:
			if info.Claim.TxHash == "" {
				log.Errorw(fmt.Errorf("pending claim without txHash"),
					fmt.Sprintf("dropping session %s from recovery", sess.ID))
				continue
			}
			p.pending[info.Claim.TxHash] = info
			p.bySession[sess.ID] = info
		default:
			log.Errorw(fmt.Errorf("unexpected claim substatus %s", types.ClaimStatusName(sess.Claim.Status)),
				fmt.Sprintf("dropping session %s from recovery", sess.ID))
			continue
		}
		if info.Claim.ClaimIdx > maxIdx {
			maxIdx = info.Claim.ClaimIdx
		}
	}

	sort.Slice(p.queue, func(i, j int) bool {
		return p.queue[i].Claim.ClaimIdx < p.queue[j].Claim.ClaimIdx
	})
	p.nextClaimIdx = maxIdx + 1

	if len(p.queue) > 0 || len(p.pending) > 0 {
		log.Infow("claim pipeline state restored",
			"queued", len(p.queue),
			"pending", len(p.pending),
			"nextClaimIdx", p.nextClaimIdx,
		)
	}
	return nil
}

// Start launches the queue tick, the history eviction sweep and a
// confirmation watcher for every recovered pending claim.
func (p *Pipeline) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.mu.Lock()
	recovered := make([]*types.ClaimInfo, 0, len(p.pending))
	for _, info := range p.pending {
		recovered = append(recovered, info)
	}
	p.mu.Unlock()
	for _, info := range recovered {
		p.wg.Add(1)
		go p.watchConfirmation(info)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.tick(p.ctx)
			case <-p.ctx.Done():
				return
			}
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(historySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.evictHistory(time.Now())
			case <-p.ctx.Done():
				return
			}
		}
	}()

	log.Infow("claim pipeline started", "maxPending", p.cfg.MaxPending)
	return nil
}

// Stop cancels the pipeline context, which ends the tick loop, the history
// sweep and the confirmation watchers, waits for them to return and clears
// the last broadcast. A watcher ended this way leaves its claim pending in
// storage, where recovery picks it up on the next start.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.bus.Reset()
	log.Infow("claim pipeline stopped")
}

// Progress returns the current watermark pair.
func (p *Pipeline) Progress() types.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.Progress{
		ProcessedIdx: p.lastProcessedIdx,
		ConfirmedIdx: p.lastConfirmedIdx,
	}
}

// QueuedAmount returns the sum of the drop amounts of all queued claims.
func (p *Pipeline) QueuedAmount() *types.BigInt {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := types.NewBigInt(0)
	for _, info := range p.queue {
		total.Add(total, info.Amount)
	}
	return total
}

// QueueLength returns the number of queued claims.
func (p *Pipeline) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// PendingCount returns the number of claims awaiting confirmation.
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// History returns the terminal claim with the given index, if it is still
// retained.
func (p *Pipeline) History(claimIdx int64) (*types.ClaimInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.history[claimIdx]
	if !ok {
		return nil, false
	}
	return entry.info, true
}

// TransactionQueue returns a snapshot of the live claims: the queue, the
// pending set and, unless queueOnly, the retained terminal claims. The
// result is ordered by claimIdx.
func (p *Pipeline) TransactionQueue(queueOnly bool) []*types.ClaimInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.ClaimInfo, 0, len(p.queue)+len(p.pending)+len(p.history))
	snapshot := func(info *types.ClaimInfo) *types.ClaimInfo {
		claim := *info.Claim
		return &types.ClaimInfo{
			SessionID:  info.SessionID,
			TargetAddr: info.TargetAddr,
			Amount:     info.Amount,
			Claim:      &claim,
		}
	}
	for _, info := range p.queue {
		out = append(out, snapshot(info))
	}
	for _, info := range p.pending {
		out = append(out, snapshot(info))
	}
	if !queueOnly {
		for _, entry := range p.history {
			out = append(out, snapshot(entry.info))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Claim.ClaimIdx < out[j].Claim.ClaimIdx
	})
	return out
}

// evictHistory drops terminal claims past their retention time.
func (p *Pipeline) evictHistory(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, entry := range p.history {
		if now.After(entry.expiresAt) {
			delete(p.history, idx)
		}
	}
}
