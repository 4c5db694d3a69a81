package dispenser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// UnclaimedSource reports the token amount committed to live sessions that
// have not entered the claim pipeline yet. Implemented by *storage.Storage.
type UnclaimedSource interface {
	UnclaimedBalance() (*types.BigInt, error)
}

// QueuedSource reports the token amount committed to queued claims.
// Implemented by *Pipeline.
type QueuedSource interface {
	QueuedAmount() *types.BigInt
}

// RefillConfig carries the balance band parameters of the refill controller.
// All amounts are base-unit integers of the faucet token.
type RefillConfig struct {
	Enabled        bool
	Contract       string
	Denom          string
	Amount         *types.BigInt // withdrawn from the treasury per refill
	Threshold      *types.BigInt // lower band bound
	OverflowAmount *types.BigInt // upper band bound
	Cooldown       time.Duration // between successful refills/overflows

	AttemptCooldown     time.Duration
	ConfirmPollInterval time.Duration
	ConfirmMaxWait      time.Duration
}

const (
	defaultAttemptCooldown = 60 * time.Second
)

// RefillState is a snapshot of the controller bookkeeping.
type RefillState struct {
	LastSuccessTime time.Time
	LastAttemptTime time.Time
	InFlight        bool
}

// RefillController keeps the dispensing wallet's available token balance
// inside the configured band by withdrawing from, or depositing to, the
// treasury contract. Available balance is the wallet token balance minus the
// amounts committed to live sessions and queued claims.
type RefillController struct {
	cfg       RefillConfig
	wallet    Wallet
	querier   TxQuerier
	unclaimed UnclaimedSource
	queued    QueuedSource

	sf    singleflight.Group
	mu    sync.Mutex
	state RefillState
}

// NewRefillController creates a RefillController. With Enabled false or no
// contract configured the controller is a no-op.
func NewRefillController(cfg RefillConfig, w Wallet, querier TxQuerier, unclaimed UnclaimedSource, queued QueuedSource) *RefillController {
	if cfg.AttemptCooldown <= 0 {
		cfg.AttemptCooldown = defaultAttemptCooldown
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = defaultConfirmPollInterval
	}
	if cfg.ConfirmMaxWait <= 0 {
		cfg.ConfirmMaxWait = defaultConfirmMaxWait
	}
	return &RefillController{
		cfg:       cfg,
		wallet:    w,
		querier:   querier,
		unclaimed: unclaimed,
		queued:    queued,
	}
}

// State returns a snapshot of the controller bookkeeping.
func (r *RefillController) State() RefillState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Invoke evaluates the balance band and issues at most one treasury
// transaction. Concurrent invocations collapse onto the in-flight run.
// Errors are logged, never retried here: the next scheduled invocation is
// the retry.
func (r *RefillController) Invoke(ctx context.Context) error {
	if !r.cfg.Enabled || r.cfg.Contract == "" {
		return nil
	}
	_, err, _ := r.sf.Do("refill", func() (any, error) {
		return nil, r.run(ctx)
	})
	if err != nil {
		log.Warnw("refill attempt failed", "error", err)
	}
	return err
}

func (r *RefillController) run(ctx context.Context) error {
	now := time.Now()
	r.mu.Lock()
	if now.Sub(r.state.LastAttemptTime) < r.cfg.AttemptCooldown {
		r.mu.Unlock()
		return nil
	}
	if !r.state.LastSuccessTime.IsZero() && now.Sub(r.state.LastSuccessTime) < r.cfg.Cooldown {
		r.mu.Unlock()
		return nil
	}
	r.state.LastAttemptTime = now
	r.state.InFlight = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.state.InFlight = false
		r.mu.Unlock()
	}()

	available, err := r.availableBalance()
	if err != nil {
		return fmt.Errorf("compute available balance: %w", err)
	}

	var (
		msg   any
		funds []chain.Coin
	)
	switch {
	case r.cfg.OverflowAmount != nil && available.Cmp(r.cfg.OverflowAmount) > 0:
		excess := new(types.BigInt).Sub(available, r.cfg.OverflowAmount)
		msg = chain.TreasuryDepositMsg{}
		funds = []chain.Coin{{Denom: r.cfg.Denom, Amount: excess}}
		log.Infow("depositing faucet overflow to treasury",
			"available", available.String(), "amount", excess.String())
	case r.cfg.Threshold != nil && available.Cmp(r.cfg.Threshold) < 0:
		msg = chain.TreasuryWithdrawMsg{
			Withdraw: chain.TreasuryWithdraw{Amount: r.cfg.Amount.String()},
		}
		log.Infow("withdrawing refill from treasury",
			"available", available.String(), "amount", r.cfg.Amount.String())
	default:
		return nil
	}

	txHash, err := r.wallet.ExecuteContract(ctx, r.cfg.Contract, msg, funds)
	if err != nil {
		return fmt.Errorf("broadcast treasury call: %w", err)
	}

	if err := r.awaitConfirmation(ctx, txHash); err != nil {
		return fmt.Errorf("await treasury call %s: %w", txHash, err)
	}

	r.mu.Lock()
	r.state.LastSuccessTime = time.Now()
	r.mu.Unlock()

	if err := r.wallet.LoadWalletState(ctx); err != nil {
		log.Warnw("wallet state reload after refill failed", "error", err)
	}
	log.Infow("treasury call confirmed", "txHash", txHash)
	return nil
}

// availableBalance computes the wallet token balance minus the committed
// amounts of live sessions and queued claims.
func (r *RefillController) availableBalance() (*types.BigInt, error) {
	ws := r.wallet.State()
	unclaimed, err := r.unclaimed.UnclaimedBalance()
	if err != nil {
		return nil, err
	}
	available := new(types.BigInt).Sub(ws.TokenBalance, unclaimed)
	return available.Sub(available, r.queued.QueuedAmount()), nil
}

// awaitConfirmation polls until the treasury transaction is included with
// code 0 or the bounded wait elapses.
func (r *RefillController) awaitConfirmation(ctx context.Context, txHash string) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmMaxWait)
	defer cancel()

	ticker := time.NewTicker(r.cfg.ConfirmPollInterval)
	defer ticker.Stop()
	for {
		resp, err := r.querier.Tx(waitCtx, txHash)
		switch {
		case err == nil && resp.Code == 0:
			return nil
		case err == nil:
			return fmt.Errorf("treasury transaction failed with code %d: %s", resp.Code, resp.RawLog)
		case errors.Is(err, chain.ErrTxNotFound):
			// not included yet, keep polling
		default:
			log.Debugw("treasury transaction query failed, retrying", "txHash", txHash, "error", err)
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return waitCtx.Err()
		}
	}
}
