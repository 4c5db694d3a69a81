package wallet

import (
	"context"
	"fmt"

	"github.com/cw-faucet/faucetd/chain"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// gasFee builds the explicit gas fee attached to every faucet transaction.
func (m *Manager) gasFee() chain.Fee {
	return chain.Fee{
		Amount:   []chain.Coin{{Denom: m.cfg.Denom, Amount: m.cfg.GasAmount.Clone()}},
		GasLimit: m.cfg.GasLimit,
	}
}

// SendTokens transfers amount of the faucet token to the recipient. For a
// native token this is a bank send; for a contract token it executes
// `transfer { recipient, amount }` on the token contract. On success the
// local state is debited optimistically: the sequence advances, the token
// balance drops by amount and the native balance drops by the gas amount
// (plus amount for native tokens). The periodic state refresh reconciles
// these debits with the chain.
func (m *Manager) SendTokens(ctx context.Context, recipient string, amount *types.BigInt) (string, error) {
	m.mu.RLock()
	signer := m.signer
	ready := m.state.Ready
	m.mu.RUnlock()
	if signer == nil || !ready {
		return "", ErrNotReady
	}

	var (
		resp *chain.TxResponse
		err  error
	)
	if m.cfg.IsNativeToken {
		coin := chain.Coin{Denom: m.cfg.Denom, Amount: amount.Clone()}
		resp, err = signer.BankSend(ctx, recipient, coin, m.gasFee())
	} else {
		msg := chain.CW20TransferMsg{
			Transfer: chain.CW20Transfer{
				Recipient: recipient,
				Amount:    amount.String(),
			},
		}
		resp, err = signer.Execute(ctx, m.cfg.ContractAddress, msg, nil, m.gasFee())
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTxBroadcast, err)
	}

	m.mu.Lock()
	st := m.state
	st.Sequence++
	st.TokenBalance = new(types.BigInt).Sub(st.TokenBalance, amount)
	st.NativeBalance = new(types.BigInt).Sub(st.NativeBalance, m.cfg.GasAmount)
	if m.cfg.IsNativeToken {
		st.NativeBalance = new(types.BigInt).Sub(st.NativeBalance, amount)
	}
	m.state = st
	m.mu.Unlock()

	log.Infow("sent faucet tokens",
		"recipient", recipient,
		"amount", amount.String(),
		"txHash", resp.Hash,
	)
	return resp.Hash, nil
}

// ExecuteContract executes msg on the given contract with the given attached
// funds. On success the local state debits the sequence and the gas amount;
// the token balance is untouched (the state refresh after confirmation picks
// up any balance effect of the call).
func (m *Manager) ExecuteContract(ctx context.Context, contractAddr string, msg any, funds []chain.Coin) (string, error) {
	m.mu.RLock()
	signer := m.signer
	ready := m.state.Ready
	m.mu.RUnlock()
	if signer == nil || !ready {
		return "", ErrNotReady
	}

	resp, err := signer.Execute(ctx, contractAddr, msg, funds, m.gasFee())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTxBroadcast, err)
	}

	m.mu.Lock()
	st := m.state
	st.Sequence++
	st.NativeBalance = new(types.BigInt).Sub(st.NativeBalance, m.cfg.GasAmount)
	m.state = st
	m.mu.Unlock()

	log.Infow("executed contract",
		"contract", contractAddr,
		"txHash", resp.Hash,
	)
	return resp.Hash, nil
}

// WalletBalance queries the faucet-token balance of an external address.
// Results are never cached.
func (m *Manager) WalletBalance(ctx context.Context, addr string) (*types.BigInt, error) {
	m.mu.RLock()
	signer := m.signer
	m.mu.RUnlock()
	if signer == nil {
		return nil, ErrNotReady
	}

	if m.cfg.IsNativeToken {
		balance, err := signer.Balance(ctx, addr, m.cfg.Denom)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChainRPC, err)
		}
		return balance, nil
	}

	var resp chain.CW20BalanceResponse
	query := chain.CW20BalanceQuery{Balance: chain.CW20Balance{Address: addr}}
	if err := signer.SmartQuery(ctx, m.cfg.ContractAddress, query, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainRPC, err)
	}
	return types.BigIntFromString(resp.Balance)
}
