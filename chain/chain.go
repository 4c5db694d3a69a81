// Package chain defines the interfaces and wire types the faucet uses to
// talk to a CosmWasm-style chain. The transport (RPC dialing, signing,
// key derivation) lives behind the ClientFactory so the settlement core can
// be exercised with fakes.
package chain

import (
	"context"
	"errors"

	"github.com/cw-faucet/faucetd/types"
)

// ErrTxNotFound is returned by QueryClient.Tx while the transaction has not
// been included in a block yet.
var ErrTxNotFound = errors.New("transaction not found")

// Coin is an amount of a single denom.
type Coin struct {
	Denom  string        `json:"denom"`
	Amount *types.BigInt `json:"amount"`
}

// Fee is the explicit gas fee attached to a transaction.
type Fee struct {
	Amount   []Coin `json:"amount"`
	GasLimit uint64 `json:"gas"`
}

// Account is the on-chain account state of an address.
type Account struct {
	Address  string
	Number   uint64
	Sequence uint64
}

// TxResponse is the result of broadcasting or querying a transaction.
// A Code of zero means the transaction executed successfully.
type TxResponse struct {
	Hash    string
	Height  int64
	Code    uint32
	RawLog  string
	GasUsed int64
}

// Config carries the connection parameters for opening chain clients.
type Config struct {
	RPCHost       string
	AddressPrefix string
	Mnemonic      string
	GasPrice      string
}

// SigningClient is a chain client bound to the faucet hot wallet. All calls
// block until the node answers and honor context cancellation.
type SigningClient interface {
	// Account returns the account state of the given address.
	Account(ctx context.Context, addr string) (*Account, error)
	// Balance returns the bank balance of addr for the given denom.
	Balance(ctx context.Context, addr, denom string) (*types.BigInt, error)
	// SmartQuery performs a contract smart query, unmarshaling the
	// response into result.
	SmartQuery(ctx context.Context, contractAddr string, query, result any) error
	// BankSend broadcasts a bank send of amount to the recipient.
	BankSend(ctx context.Context, recipient string, amount Coin, fee Fee) (*TxResponse, error)
	// Execute broadcasts a contract execute of msg with the given funds.
	Execute(ctx context.Context, contractAddr string, msg any, funds []Coin, fee Fee) (*TxResponse, error)
	// Close releases the client connection.
	Close() error
}

// QueryClient is a read-only chain client used to await transaction
// inclusion. Tx returns ErrTxNotFound while the hash is unknown to the node.
type QueryClient interface {
	Tx(ctx context.Context, hash string) (*TxResponse, error)
	Close() error
}

// ClientFactory opens the two chain clients and derives the wallet address
// from the configured mnemonic. Implementations own transport and key
// handling; the daemon receives a factory at startup and tests inject fakes.
type ClientFactory interface {
	DeriveAddress(cfg Config) (string, error)
	SigningClient(ctx context.Context, cfg Config) (SigningClient, error)
	QueryClient(ctx context.Context, cfg Config) (QueryClient, error)
}
