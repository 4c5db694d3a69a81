// Package wallet implements the faucet hot wallet manager: it owns the
// signing identity, keeps a periodically refreshed snapshot of the on-chain
// balances and account sequence, and executes the transfers and contract
// calls of the settlement pipeline.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/status"
	"github.com/cw-faucet/faucetd/types"
)

var (
	// ErrNotReady is returned by operations that require an initialized
	// wallet with a fresh state snapshot.
	ErrNotReady = errors.New("wallet not ready")
	// ErrTxBroadcast wraps wallet-side broadcast failures.
	ErrTxBroadcast = errors.New("transaction broadcast failed")
	// ErrChainRPC wraps transient chain RPC failures.
	ErrChainRPC = errors.New("chain rpc error")
)

// StatusProducer is the faucet status slot this manager writes to.
const StatusProducer = "wallet"

// initRetryInterval is how long to wait before retrying a failed
// initialization.
const initRetryInterval = 5 * time.Second

// State is an immutable snapshot of the wallet as last observed on chain,
// plus the optimistic local debits applied since. It is replaced as a whole,
// never mutated in place by observers.
type State struct {
	Ready         bool
	Sequence      uint64
	TokenBalance  *types.BigInt
	NativeBalance *types.BigInt
}

// Config carries the wallet and token parameters of the faucet.
type Config struct {
	Chain               chain.Config
	Denom               string
	Decimals            uint
	Symbol              string
	IsNativeToken       bool
	ContractAddress     string // token contract, empty when IsNativeToken
	GasAmount           *types.BigInt
	GasLimit            uint64
	MinGasAmount        *types.BigInt
	MinBalance          *types.BigInt
	LowBalanceThreshold *types.BigInt
}

// Manager owns the hot wallet and the two chain clients.
type Manager struct {
	cfg     Config
	factory chain.ClientFactory
	board   *status.Board

	mu            sync.RWMutex
	state         State
	address       string
	signer        chain.SigningClient
	querier       chain.QueryClient
	initialized   bool
	lastRefreshAt time.Time
	retryTimer    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a wallet Manager. Initialize must be called before use.
func New(cfg Config, factory chain.ClientFactory, board *status.Board) *Manager {
	if cfg.GasAmount == nil {
		cfg.GasAmount = types.NewBigInt(0)
	}
	if cfg.MinGasAmount == nil {
		cfg.MinGasAmount = types.NewBigInt(0)
	}
	return &Manager{
		cfg:     cfg,
		factory: factory,
		board:   board,
		state: State{
			TokenBalance:  types.NewBigInt(0),
			NativeBalance: types.NewBigInt(0),
		},
	}
}

// Start initializes the wallet and begins the periodic state refresh loop.
func (m *Manager) Start(ctx context.Context, refreshInterval time.Duration) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if err := m.Initialize(); err != nil {
		log.Errorw(err, "wallet initialization failed, will retry")
	}

	if refreshInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if !m.Initialized() {
						continue
					}
					if err := m.LoadWalletState(m.ctx); err != nil {
						log.Warnw("wallet state refresh failed", "error", err)
					}
				case <-m.ctx.Done():
					return
				}
			}
		}()
	}
}

// Stop cancels the refresh loop and closes the chain clients.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	signer, querier := m.signer, m.querier
	m.signer, m.querier = nil, nil
	m.initialized = false
	m.mu.Unlock()

	m.wg.Wait()
	if signer != nil {
		if err := signer.Close(); err != nil {
			log.Warnw("failed to close signing client", "error", err)
		}
	}
	if querier != nil {
		if err := querier.Close(); err != nil {
			log.Warnw("failed to close query client", "error", err)
		}
	}
}

// Initialize derives the wallet address, opens both chain clients and loads
// the initial wallet state. It is idempotent: calling it on an initialized
// manager is a no-op. On any error the wallet stays not-ready and a single
// retry is scheduled.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := m.initialize(ctx); err != nil {
		m.publishNotReady()
		m.scheduleInitRetry()
		return err
	}

	if err := m.LoadWalletState(ctx); err != nil {
		log.Warnw("initial wallet state load failed", "error", err)
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context) error {
	addr, err := m.factory.DeriveAddress(m.cfg.Chain)
	if err != nil {
		return fmt.Errorf("derive wallet address: %w", err)
	}

	signer, err := m.factory.SigningClient(ctx, m.cfg.Chain)
	if err != nil {
		return fmt.Errorf("open signing client: %w", err)
	}
	querier, err := m.factory.QueryClient(ctx, m.cfg.Chain)
	if err != nil {
		_ = signer.Close()
		return fmt.Errorf("open query client: %w", err)
	}

	m.mu.Lock()
	m.address = addr
	m.signer = signer
	m.querier = querier
	m.initialized = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()

	log.Infow("wallet initialized", "address", addr)
	return nil
}

// scheduleInitRetry arms the single-slot retry timer. A pending retry is
// replaced, never accumulated.
func (m *Manager) scheduleInitRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(initRetryInterval, func() {
		if err := m.Initialize(); err != nil {
			log.Warnw("wallet initialization retry failed", "error", err)
		}
	})
}

// ReloadClients closes the chain clients and re-initializes them from
// scratch. The last refresh timestamp is reset to zero first; a successful
// re-initialization reloads the state and sets it again.
func (m *Manager) ReloadClients() {
	m.mu.Lock()
	signer, querier := m.signer, m.querier
	m.signer, m.querier = nil, nil
	m.initialized = false
	m.lastRefreshAt = time.Time{}
	st := m.state
	st.Ready = false
	m.state = st
	m.mu.Unlock()

	if signer != nil {
		_ = signer.Close()
	}
	if querier != nil {
		_ = querier.Close()
	}

	log.Infow("reloading wallet chain clients")
	if err := m.Initialize(); err != nil {
		log.Errorw(err, "wallet re-initialization failed, will retry")
	}
}

// LoadWalletState queries the account sequence, the native denom balance
// and, for contract tokens, the token contract balance, and publishes a new
// state snapshot. On any failure the wallet is published not-ready with
// zeroed balances. The last refresh timestamp is always updated. Not safe
// for concurrent invocation with itself.
func (m *Manager) LoadWalletState(ctx context.Context) error {
	m.mu.RLock()
	signer := m.signer
	addr := m.address
	m.mu.RUnlock()
	if signer == nil {
		m.mu.Lock()
		m.lastRefreshAt = time.Now()
		m.mu.Unlock()
		m.publishNotReady()
		return ErrNotReady
	}

	var (
		sequence uint64
		native   *types.BigInt
		token    *types.BigInt
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		account, err := signer.Account(gctx, addr)
		if err != nil {
			return fmt.Errorf("query account: %w", err)
		}
		sequence = account.Sequence
		return nil
	})
	g.Go(func() error {
		balance, err := signer.Balance(gctx, addr, m.cfg.Denom)
		if err != nil {
			return fmt.Errorf("query native balance: %w", err)
		}
		native = balance
		return nil
	})
	if !m.cfg.IsNativeToken {
		g.Go(func() error {
			var resp chain.CW20BalanceResponse
			query := chain.CW20BalanceQuery{Balance: chain.CW20Balance{Address: addr}}
			if err := signer.SmartQuery(gctx, m.cfg.ContractAddress, query, &resp); err != nil {
				return fmt.Errorf("query token balance: %w", err)
			}
			balance, err := types.BigIntFromString(resp.Balance)
			if err != nil {
				return fmt.Errorf("parse token balance: %w", err)
			}
			token = balance
			return nil
		})
	}

	err := g.Wait()

	m.mu.Lock()
	m.lastRefreshAt = time.Now()
	if err != nil {
		m.state = State{
			TokenBalance:  types.NewBigInt(0),
			NativeBalance: types.NewBigInt(0),
		}
	} else {
		if m.cfg.IsNativeToken {
			token = native.Clone()
		}
		m.state = State{
			Ready:         true,
			Sequence:      sequence,
			TokenBalance:  token,
			NativeBalance: native,
		}
	}
	m.mu.Unlock()

	m.publishStatus()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainRPC, err)
	}
	log.Debugw("wallet state refreshed",
		"sequence", sequence,
		"tokenBalance", token.String(),
		"nativeBalance", native.String(),
	)
	return nil
}

// State returns the current wallet state snapshot. The returned balances are
// copies; mutating them does not affect the manager.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Ready:         m.state.Ready,
		Sequence:      m.state.Sequence,
		TokenBalance:  m.state.TokenBalance.Clone(),
		NativeBalance: m.state.NativeBalance.Clone(),
	}
}

// Address returns the faucet wallet address, empty until initialized.
func (m *Manager) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

// Initialized reports whether the chain clients are open.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// LastRefresh returns the time of the last wallet state refresh attempt.
func (m *Manager) LastRefresh() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRefreshAt
}

// Querier returns the read-only chain client, nil until initialized.
func (m *Manager) Querier() chain.QueryClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.querier
}

// publishNotReady publishes a not-ready snapshot with zeroed balances.
func (m *Manager) publishNotReady() {
	m.mu.Lock()
	m.state = State{
		TokenBalance:  types.NewBigInt(0),
		NativeBalance: types.NewBigInt(0),
	}
	m.mu.Unlock()
	m.publishStatus()
}

// publishStatus writes the wallet health slot: the most severe applicable
// condition wins.
func (m *Manager) publishStatus() {
	if m.board == nil {
		return
	}
	st := m.State()
	switch {
	case !st.Ready:
		m.board.Set(StatusProducer, status.LevelError, "Cannot connect to network")
	case (m.cfg.MinBalance != nil && st.TokenBalance.Cmp(m.cfg.MinBalance) <= 0) ||
		st.NativeBalance.Cmp(m.cfg.MinGasAmount) <= 0:
		m.board.Set(StatusProducer, status.LevelError, "The faucet is out of funds!")
	case m.cfg.LowBalanceThreshold != nil && st.TokenBalance.Cmp(m.cfg.LowBalanceThreshold) <= 0:
		m.board.Set(StatusProducer, status.LevelWarning,
			fmt.Sprintf("The faucet is running low on funds! Balance: %s", m.ReadableAmount(st.TokenBalance)))
	default:
		m.board.Set(StatusProducer, status.LevelInfo, "")
	}
}
