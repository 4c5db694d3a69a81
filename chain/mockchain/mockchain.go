// Package mockchain provides an in-memory chain simulator implementing the
// chain client interfaces. It backs the wallet tests and the daemon's dev
// mode; transactions are included with code 0 on the next query.
package mockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/types"
)

// FactoryName is the name the simulator registers under.
const FactoryName = "mock"

func init() {
	chain.RegisterFactory(FactoryName, NewFactory())
}

// Chain is the shared simulator state behind the clients of one factory.
type Chain struct {
	mu        sync.Mutex
	height    int64
	sequences map[string]uint64
	balances  map[string]*types.BigInt // addr/denom → amount
	contracts map[string]string        // contract addr → token balance owner key
	txs       map[string]*chain.TxResponse
	txCount   uint64

	// FailNextBroadcast makes the next broadcast return an error; used by
	// tests to exercise failure paths.
	FailNextBroadcast error
	// NextTxCode is the execution code recorded for subsequently
	// broadcast transactions.
	NextTxCode uint32
}

// Factory implements chain.ClientFactory over a single simulated chain.
type Factory struct {
	chain *Chain
}

var _ chain.ClientFactory = (*Factory)(nil)

// NewFactory creates a factory over a fresh simulated chain.
func NewFactory() *Factory {
	return &Factory{chain: &Chain{
		height:    1,
		sequences: make(map[string]uint64),
		balances:  make(map[string]*types.BigInt),
		contracts: make(map[string]string),
		txs:       make(map[string]*chain.TxResponse),
	}}
}

// Chain exposes the simulator state for test setup.
func (f *Factory) Chain() *Chain {
	return f.chain
}

// DeriveAddress derives a deterministic bech32-looking address from the
// mnemonic.
func (f *Factory) DeriveAddress(cfg chain.Config) (string, error) {
	if cfg.Mnemonic == "" {
		return "", fmt.Errorf("empty mnemonic")
	}
	sum := sha256.Sum256([]byte(cfg.Mnemonic))
	return cfg.AddressPrefix + "1" + hex.EncodeToString(sum[:16]), nil
}

// SigningClient opens a signing client over the simulated chain.
func (f *Factory) SigningClient(_ context.Context, cfg chain.Config) (chain.SigningClient, error) {
	addr, err := f.DeriveAddress(cfg)
	if err != nil {
		return nil, err
	}
	return &signingClient{chain: f.chain, addr: addr}, nil
}

// QueryClient opens a read-only client over the simulated chain.
func (f *Factory) QueryClient(context.Context, chain.Config) (chain.QueryClient, error) {
	return &queryClient{chain: f.chain}, nil
}

func balanceKey(addr, denom string) string {
	return addr + "/" + denom
}

// SetBalance sets the bank balance of an address.
func (c *Chain) SetBalance(addr, denom string, amount *types.BigInt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[balanceKey(addr, denom)] = amount.Clone()
}

// SetSequence sets the account sequence of an address.
func (c *Chain) SetSequence(addr string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequences[addr] = seq
}

// SetContractBalance sets the CW20 balance of addr on the given contract.
func (c *Chain) SetContractBalance(contract, addr string, amount *types.BigInt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[balanceKey(contract+"#"+addr, "cw20")] = amount.Clone()
}

// broadcast records a transaction that confirms on the next query.
func (c *Chain) broadcast(signer string) (*chain.TxResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNextBroadcast != nil {
		err := c.FailNextBroadcast
		c.FailNextBroadcast = nil
		return nil, err
	}
	c.txCount++
	c.sequences[signer]++
	c.height++
	sum := sha256.Sum256(fmt.Appendf(nil, "tx-%d", c.txCount))
	resp := &chain.TxResponse{
		Hash:   hex.EncodeToString(sum[:]),
		Height: c.height,
		Code:   c.NextTxCode,
	}
	c.txs[resp.Hash] = resp
	return &chain.TxResponse{Hash: resp.Hash}, nil
}

type signingClient struct {
	chain *Chain
	addr  string
}

var _ chain.SigningClient = (*signingClient)(nil)

func (s *signingClient) Account(_ context.Context, addr string) (*chain.Account, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return &chain.Account{
		Address:  addr,
		Sequence: s.chain.sequences[addr],
	}, nil
}

func (s *signingClient) Balance(_ context.Context, addr, denom string) (*types.BigInt, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	balance, ok := s.chain.balances[balanceKey(addr, denom)]
	if !ok {
		return types.NewBigInt(0), nil
	}
	return balance.Clone(), nil
}

func (s *signingClient) SmartQuery(_ context.Context, contractAddr string, query, result any) error {
	bq, ok := query.(chain.CW20BalanceQuery)
	if !ok {
		return fmt.Errorf("unsupported smart query %T", query)
	}
	resp, ok := result.(*chain.CW20BalanceResponse)
	if !ok {
		return fmt.Errorf("unsupported smart query result %T", result)
	}
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	balance, ok := s.chain.balances[balanceKey(contractAddr+"#"+bq.Balance.Address, "cw20")]
	if !ok {
		balance = types.NewBigInt(0)
	}
	resp.Balance = balance.String()
	return nil
}

func (s *signingClient) BankSend(_ context.Context, _ string, _ chain.Coin, _ chain.Fee) (*chain.TxResponse, error) {
	return s.chain.broadcast(s.addr)
}

func (s *signingClient) Execute(_ context.Context, _ string, _ any, _ []chain.Coin, _ chain.Fee) (*chain.TxResponse, error) {
	return s.chain.broadcast(s.addr)
}

func (s *signingClient) Close() error {
	return nil
}

type queryClient struct {
	chain *Chain
}

var _ chain.QueryClient = (*queryClient)(nil)

func (q *queryClient) Tx(_ context.Context, hash string) (*chain.TxResponse, error) {
	q.chain.mu.Lock()
	defer q.chain.mu.Unlock()
	resp, ok := q.chain.txs[hash]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	out := *resp
	return &out, nil
}

func (q *queryClient) Close() error {
	return nil
}
