package wallet

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/chain/mockchain"
	"github.com/cw-faucet/faucetd/status"
	"github.com/cw-faucet/faucetd/types"
)

func testWalletConfig(native bool) Config {
	return Config{
		Chain: chain.Config{
			RPCHost:       "http://localhost:26657",
			AddressPrefix: "wasm",
			Mnemonic:      "test test test test test test test test test test test junk",
		},
		Denom:               "uwasm",
		Decimals:            6,
		Symbol:              "WASM",
		IsNativeToken:       native,
		ContractAddress:     "wasm1token",
		GasAmount:           types.NewBigInt(200),
		GasLimit:            200000,
		MinGasAmount:        types.NewBigInt(1000),
		MinBalance:          types.NewBigInt(10000),
		LowBalanceThreshold: types.NewBigInt(100000),
	}
}

func newTestManager(c *qt.C, native bool) (*Manager, *mockchain.Factory, *status.Board) {
	factory := mockchain.NewFactory()
	board := status.NewBoard()
	m := New(testWalletConfig(native), factory, board)

	addr, err := factory.DeriveAddress(testWalletConfig(native).Chain)
	c.Assert(err, qt.IsNil)
	factory.Chain().SetBalance(addr, "uwasm", types.NewBigInt(1000000000))
	factory.Chain().SetSequence(addr, 5)
	if !native {
		factory.Chain().SetContractBalance("wasm1token", addr, types.NewBigInt(500000000))
	}
	return m, factory, board
}

func TestInitializeAndLoadState(t *testing.T) {
	c := qt.New(t)
	m, _, board := newTestManager(c, true)

	c.Assert(m.Initialized(), qt.IsFalse)
	c.Assert(m.Initialize(), qt.IsNil)
	c.Assert(m.Initialized(), qt.IsTrue)
	c.Assert(m.Address(), qt.Not(qt.Equals), "")
	c.Assert(m.LastRefresh().IsZero(), qt.IsFalse)

	st := m.State()
	c.Assert(st.Ready, qt.IsTrue)
	c.Assert(st.Sequence, qt.Equals, uint64(5))
	c.Assert(st.NativeBalance.String(), qt.Equals, "1000000000")
	// for a native token the token balance mirrors the native balance
	c.Assert(st.TokenBalance.String(), qt.Equals, "1000000000")

	entry, ok := board.Get(StatusProducer)
	c.Assert(ok, qt.IsTrue)
	c.Assert(entry.Level, qt.Equals, status.LevelInfo)

	// Initialize is idempotent
	c.Assert(m.Initialize(), qt.IsNil)
}

func TestLoadStateContractToken(t *testing.T) {
	c := qt.New(t)
	m, _, _ := newTestManager(c, false)
	c.Assert(m.Initialize(), qt.IsNil)

	st := m.State()
	c.Assert(st.Ready, qt.IsTrue)
	c.Assert(st.TokenBalance.String(), qt.Equals, "500000000")
	c.Assert(st.NativeBalance.String(), qt.Equals, "1000000000")
}

func TestSendTokensOptimisticDebits(t *testing.T) {
	c := qt.New(t)
	m, _, _ := newTestManager(c, true)
	c.Assert(m.Initialize(), qt.IsNil)

	initial := m.State()

	const sends = 3
	for range sends {
		txHash, err := m.SendTokens(context.Background(), "wasm1recipient", types.NewBigInt(1000000))
		c.Assert(err, qt.IsNil)
		c.Assert(txHash, qt.Not(qt.Equals), "")
	}

	st := m.State()
	// sequence advanced once per successful broadcast
	c.Assert(st.Sequence, qt.Equals, initial.Sequence+sends)
	// token balance dropped by the sent amounts
	wantToken := new(types.BigInt).Sub(initial.TokenBalance, types.NewBigInt(sends*1000000))
	c.Assert(st.TokenBalance.String(), qt.Equals, wantToken.String())
	// native balance dropped by amounts plus gas
	wantNative := new(types.BigInt).Sub(initial.NativeBalance, types.NewBigInt(sends*(1000000+200)))
	c.Assert(st.NativeBalance.String(), qt.Equals, wantNative.String())
}

func TestSendTokensContractDebits(t *testing.T) {
	c := qt.New(t)
	m, _, _ := newTestManager(c, false)
	c.Assert(m.Initialize(), qt.IsNil)

	initial := m.State()
	_, err := m.SendTokens(context.Background(), "wasm1recipient", types.NewBigInt(1000000))
	c.Assert(err, qt.IsNil)

	st := m.State()
	c.Assert(st.Sequence, qt.Equals, initial.Sequence+1)
	wantToken := new(types.BigInt).Sub(initial.TokenBalance, types.NewBigInt(1000000))
	c.Assert(st.TokenBalance.String(), qt.Equals, wantToken.String())
	// only gas leaves the native balance for a contract token
	wantNative := new(types.BigInt).Sub(initial.NativeBalance, types.NewBigInt(200))
	c.Assert(st.NativeBalance.String(), qt.Equals, wantNative.String())
}

func TestExecuteContractDebits(t *testing.T) {
	c := qt.New(t)
	m, _, _ := newTestManager(c, true)
	c.Assert(m.Initialize(), qt.IsNil)

	initial := m.State()
	_, err := m.ExecuteContract(context.Background(), "wasm1treasury",
		chain.TreasuryDepositMsg{}, []chain.Coin{{Denom: "uwasm", Amount: types.NewBigInt(5)}})
	c.Assert(err, qt.IsNil)

	st := m.State()
	c.Assert(st.Sequence, qt.Equals, initial.Sequence+1)
	// token balance untouched
	c.Assert(st.TokenBalance.String(), qt.Equals, initial.TokenBalance.String())
	wantNative := new(types.BigInt).Sub(initial.NativeBalance, types.NewBigInt(200))
	c.Assert(st.NativeBalance.String(), qt.Equals, wantNative.String())
}

func TestNotReadyErrors(t *testing.T) {
	c := qt.New(t)
	m, _, _ := newTestManager(c, true)

	_, err := m.SendTokens(context.Background(), "wasm1recipient", types.NewBigInt(1))
	c.Assert(err, qt.ErrorIs, ErrNotReady)
	_, err = m.ExecuteContract(context.Background(), "wasm1treasury", chain.TreasuryDepositMsg{}, nil)
	c.Assert(err, qt.ErrorIs, ErrNotReady)
	_, err = m.WalletBalance(context.Background(), "wasm1other")
	c.Assert(err, qt.ErrorIs, ErrNotReady)
	c.Assert(m.LoadWalletState(context.Background()), qt.ErrorIs, ErrNotReady)
}

func TestStatusBoardLevels(t *testing.T) {
	c := qt.New(t)
	m, factory, board := newTestManager(c, true)
	addr, err := factory.DeriveAddress(testWalletConfig(true).Chain)
	c.Assert(err, qt.IsNil)

	// healthy balance
	c.Assert(m.Initialize(), qt.IsNil)
	entry, _ := board.Get(StatusProducer)
	c.Assert(entry.Level, qt.Equals, status.LevelInfo)

	// low balance warns
	factory.Chain().SetBalance(addr, "uwasm", types.NewBigInt(50000))
	c.Assert(m.LoadWalletState(context.Background()), qt.IsNil)
	entry, _ = board.Get(StatusProducer)
	c.Assert(entry.Level, qt.Equals, status.LevelWarning)
	c.Assert(entry.Message, qt.Contains, "running low on funds")

	// below the minimum the faucet reports out of funds
	factory.Chain().SetBalance(addr, "uwasm", types.NewBigInt(5000))
	c.Assert(m.LoadWalletState(context.Background()), qt.IsNil)
	entry, _ = board.Get(StatusProducer)
	c.Assert(entry.Level, qt.Equals, status.LevelError)
	c.Assert(entry.Message, qt.Equals, "The faucet is out of funds!")
}

func TestWalletBalanceReadThrough(t *testing.T) {
	c := qt.New(t)
	m, factory, _ := newTestManager(c, true)
	c.Assert(m.Initialize(), qt.IsNil)

	factory.Chain().SetBalance("wasm1other", "uwasm", types.NewBigInt(777))
	balance, err := m.WalletBalance(context.Background(), "wasm1other")
	c.Assert(err, qt.IsNil)
	c.Assert(balance.String(), qt.Equals, "777")

	// balances change on chain are observed immediately, nothing cached
	factory.Chain().SetBalance("wasm1other", "uwasm", types.NewBigInt(778))
	balance, err = m.WalletBalance(context.Background(), "wasm1other")
	c.Assert(err, qt.IsNil)
	c.Assert(balance.String(), qt.Equals, "778")
}
