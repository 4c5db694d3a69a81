package chain

// CW20 and treasury contract message bindings. These mirror the JSON schemas
// of the contracts the faucet interacts with: a CW20-like token contract for
// non-native faucet tokens and a treasury contract exposing withdraw/deposit
// for the refill band controller.

// CW20TransferMsg executes `transfer { recipient, amount }` on a token
// contract. Amount is a base-unit integer string.
type CW20TransferMsg struct {
	Transfer CW20Transfer `json:"transfer"`
}

// CW20Transfer is the payload of CW20TransferMsg.
type CW20Transfer struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// CW20BalanceQuery is the smart query `balance { address }` on a token
// contract.
type CW20BalanceQuery struct {
	Balance CW20Balance `json:"balance"`
}

// CW20Balance is the payload of CW20BalanceQuery.
type CW20Balance struct {
	Address string `json:"address"`
}

// CW20BalanceResponse is the response of a CW20 balance smart query.
type CW20BalanceResponse struct {
	Balance string `json:"balance"`
}

// TreasuryWithdrawMsg executes `withdraw { amount }` on the treasury
// contract, moving tokens from the treasury into the faucet wallet.
type TreasuryWithdrawMsg struct {
	Withdraw TreasuryWithdraw `json:"withdraw"`
}

// TreasuryWithdraw is the payload of TreasuryWithdrawMsg.
type TreasuryWithdraw struct {
	Amount string `json:"amount"`
}

// TreasuryDepositMsg executes `deposit {}` on the treasury contract. The
// deposited amount travels as attached funds, not in the message body.
type TreasuryDepositMsg struct {
	Deposit struct{} `json:"deposit"`
}
