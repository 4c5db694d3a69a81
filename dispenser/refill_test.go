package dispenser

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/types"
)

// staticAmount implements UnclaimedSource and QueuedSource with fixed values.
type staticAmount struct {
	amount *types.BigInt
}

func (s staticAmount) UnclaimedBalance() (*types.BigInt, error) {
	return s.amount.Clone(), nil
}

func (s staticAmount) QueuedAmount() *types.BigInt {
	return s.amount.Clone()
}

func testRefillConfig() RefillConfig {
	return RefillConfig{
		Enabled:             true,
		Contract:            "wasm1treasury",
		Denom:               "uwasm",
		Amount:              types.NewBigInt(5000),
		Threshold:           types.NewBigInt(1000),
		OverflowAmount:      types.NewBigInt(10000),
		Cooldown:            time.Hour,
		AttemptCooldown:     50 * time.Millisecond,
		ConfirmPollInterval: 5 * time.Millisecond,
		ConfirmMaxWait:      time.Second,
	}
}

// refillQuerier confirms every transaction immediately with code 0.
type refillQuerier struct{}

func (refillQuerier) Tx(_ context.Context, hash string) (*chain.TxResponse, error) {
	return &chain.TxResponse{Hash: hash, Code: 0, Height: 1}, nil
}

func TestRefillOverflowDeposit(t *testing.T) {
	c := qt.New(t)
	// token balance is 10x the overflow bound, nothing committed
	w := newFakeWallet(false, 100000, 1000000)
	zero := staticAmount{amount: types.NewBigInt(0)}

	r := NewRefillController(testRefillConfig(), w, refillQuerier{}, zero, zero)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)

	// one deposit of the excess above the band
	c.Assert(w.execCount(), qt.Equals, 1)
	_, isDeposit := w.execs[0].(chain.TreasuryDepositMsg)
	c.Assert(isDeposit, qt.IsTrue)

	state := r.State()
	c.Assert(state.LastSuccessTime.IsZero(), qt.IsFalse)
	c.Assert(state.InFlight, qt.IsFalse)
	// the wallet state was reloaded after the confirmed call
	c.Assert(w.loads, qt.Equals, 1)

	// a second invocation within the success cooldown is a no-op
	time.Sleep(60 * time.Millisecond) // let the attempt cooldown pass
	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 1)
}

func TestRefillWithdraw(t *testing.T) {
	c := qt.New(t)
	// available balance under the threshold
	w := newFakeWallet(false, 500, 1000000)
	zero := staticAmount{amount: types.NewBigInt(0)}

	r := NewRefillController(testRefillConfig(), w, refillQuerier{}, zero, zero)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)

	c.Assert(w.execCount(), qt.Equals, 1)
	msg, isWithdraw := w.execs[0].(chain.TreasuryWithdrawMsg)
	c.Assert(isWithdraw, qt.IsTrue)
	c.Assert(msg.Withdraw.Amount, qt.Equals, "5000")
}

func TestRefillCommittedAmountsReduceAvailable(t *testing.T) {
	c := qt.New(t)
	// the raw balance is inside the band, but the committed amounts push
	// the available balance under the threshold
	w := newFakeWallet(false, 5000, 1000000)
	unclaimed := staticAmount{amount: types.NewBigInt(3000)}
	queued := staticAmount{amount: types.NewBigInt(1500)}

	r := NewRefillController(testRefillConfig(), w, refillQuerier{}, unclaimed, queued)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)

	c.Assert(w.execCount(), qt.Equals, 1)
	_, isWithdraw := w.execs[0].(chain.TreasuryWithdrawMsg)
	c.Assert(isWithdraw, qt.IsTrue)
}

func TestRefillInsideBandIsNoop(t *testing.T) {
	c := qt.New(t)
	w := newFakeWallet(false, 5000, 1000000)
	zero := staticAmount{amount: types.NewBigInt(0)}

	r := NewRefillController(testRefillConfig(), w, refillQuerier{}, zero, zero)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 0)
	c.Assert(r.State().LastSuccessTime.IsZero(), qt.IsTrue)
}

func TestRefillAttemptCooldown(t *testing.T) {
	c := qt.New(t)
	w := newFakeWallet(false, 500, 1000000)
	zero := staticAmount{amount: types.NewBigInt(0)}

	cfg := testRefillConfig()
	cfg.Cooldown = 0 // only the attempt cooldown applies
	r := NewRefillController(cfg, w, refillQuerier{}, zero, zero)

	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 1)

	// immediately retrying within the attempt window does nothing
	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 1)

	// exactly one refill per elapsed attempt-cooldown window
	time.Sleep(60 * time.Millisecond)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 2)
}

func TestRefillDisabled(t *testing.T) {
	c := qt.New(t)
	w := newFakeWallet(false, 0, 1000000)
	zero := staticAmount{amount: types.NewBigInt(0)}

	cfg := testRefillConfig()
	cfg.Enabled = false
	r := NewRefillController(cfg, w, refillQuerier{}, zero, zero)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 0)

	cfg = testRefillConfig()
	cfg.Contract = ""
	r = NewRefillController(cfg, w, refillQuerier{}, zero, zero)
	c.Assert(r.Invoke(context.Background()), qt.IsNil)
	c.Assert(w.execCount(), qt.Equals, 0)
}

func TestRefillBroadcastErrorClearsInFlight(t *testing.T) {
	c := qt.New(t)
	w := newFakeWallet(false, 500, 1000000)
	w.execErr = context.DeadlineExceeded
	zero := staticAmount{amount: types.NewBigInt(0)}

	r := NewRefillController(testRefillConfig(), w, refillQuerier{}, zero, zero)
	err := r.Invoke(context.Background())
	c.Assert(err, qt.IsNotNil)

	state := r.State()
	c.Assert(state.InFlight, qt.IsFalse)
	c.Assert(state.LastSuccessTime.IsZero(), qt.IsTrue)
	c.Assert(state.LastAttemptTime.IsZero(), qt.IsFalse)
}
