package dispenser

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/db/metadb"
	"github.com/cw-faucet/faucetd/storage"
	"github.com/cw-faucet/faucetd/types"
	"github.com/cw-faucet/faucetd/wallet"
)

// fakeWallet implements the Wallet interface with optimistic debits applied
// the way the real manager does.
type fakeWallet struct {
	mu      sync.Mutex
	state   wallet.State
	native  bool
	gas     *types.BigInt
	sendErr error
	execErr error
	txCount int
	sends   []string // recipients
	execs   []any    // messages
	loads   int
}

func newFakeWallet(native bool, tokenBalance, nativeBalance int64) *fakeWallet {
	return &fakeWallet{
		state: wallet.State{
			Ready:         true,
			Sequence:      7,
			TokenBalance:  types.NewBigInt(tokenBalance),
			NativeBalance: types.NewBigInt(nativeBalance),
		},
		native: native,
		gas:    types.NewBigInt(200),
	}
}

func (f *fakeWallet) State() wallet.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return wallet.State{
		Ready:         f.state.Ready,
		Sequence:      f.state.Sequence,
		TokenBalance:  f.state.TokenBalance.Clone(),
		NativeBalance: f.state.NativeBalance.Clone(),
	}
}

func (f *fakeWallet) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Ready = ready
}

func (f *fakeWallet) SendTokens(_ context.Context, recipient string, amount *types.BigInt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.txCount++
	f.sends = append(f.sends, recipient)
	f.state.Sequence++
	f.state.TokenBalance = new(types.BigInt).Sub(f.state.TokenBalance, amount)
	f.state.NativeBalance = new(types.BigInt).Sub(f.state.NativeBalance, f.gas)
	if f.native {
		f.state.NativeBalance = new(types.BigInt).Sub(f.state.NativeBalance, amount)
	}
	return fmt.Sprintf("0xTX%04d", f.txCount), nil
}

func (f *fakeWallet) ExecuteContract(_ context.Context, _ string, msg any, _ []chain.Coin) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return "", f.execErr
	}
	f.txCount++
	f.execs = append(f.execs, msg)
	f.state.Sequence++
	f.state.NativeBalance = new(types.BigInt).Sub(f.state.NativeBalance, f.gas)
	return fmt.Sprintf("0xTX%04d", f.txCount), nil
}

func (f *fakeWallet) LoadWalletState(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return nil
}

func (f *fakeWallet) execCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

// fakeQuerier implements TxQuerier over a settable map of results.
type fakeQuerier struct {
	mu  sync.Mutex
	txs map[string]*chain.TxResponse
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{txs: make(map[string]*chain.TxResponse)}
}

func (f *fakeQuerier) Tx(_ context.Context, hash string) (*chain.TxResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.txs[hash]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	out := *resp
	return &out, nil
}

func (f *fakeQuerier) setTx(hash string, code uint32, height int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[hash] = &chain.TxResponse{Hash: hash, Code: code, Height: height}
}

// fakeBus records broadcasts.
type fakeBus struct {
	mu        sync.Mutex
	broadcast []types.Progress
	resets    int
}

func (f *fakeBus) Broadcast(p types.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, p)
}

func (f *fakeBus) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcast)
}

func (f *fakeBus) last() (types.Progress, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.broadcast) == 0 {
		return types.Progress{}, false
	}
	return f.broadcast[len(f.broadcast)-1], true
}

// testConfig returns a pipeline config with intervals short enough for tests.
func testConfig() Config {
	return Config{
		AddressPrefix:       "wasm",
		MinAmount:           types.NewBigInt(100),
		MaxAmount:           types.NewBigInt(10000000),
		MaxPending:          5,
		MinGasAmount:        types.NewBigInt(200),
		GasAmount:           types.NewBigInt(200),
		TickInterval:        10 * time.Millisecond,
		ConfirmPollInterval: 5 * time.Millisecond,
		ConfirmMaxWait:      time.Second,
		HistoryTTL:          30 * time.Minute,
	}
}

// newTestStorage returns a Storage over a temporary database.
func newTestStorage(t *testing.T) *storage.Storage {
	return storage.New(metadb.NewTest(t))
}

// claimableSession stores and returns a claimable session.
func claimableSession(c *qt.C, stg *storage.Storage, id string, amount int64) *types.Session {
	sess := &types.Session{
		ID:         id,
		Status:     types.SessionStatusClaimable,
		StartTime:  time.Now().Unix(),
		TargetAddr: "wasm1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu",
		DropAmount: types.NewBigInt(amount),
	}
	c.Assert(stg.SetSession(sess), qt.IsNil)
	return sess
}

// waitFor polls cond until it holds or the deadline elapses.
func waitFor(c *qt.C, cond func() bool) {
	c.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Fatal("condition not met in time")
}
