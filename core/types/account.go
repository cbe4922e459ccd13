package types

import "math/big"

// Account tracks the fungible balance held by a ledger participant. The mint
// gate credits sale proceeds here and the staking ledger draws reward payouts
// from the pool account.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureAccount returns a usable account value, allocating zeroed balances for
// nil input so callers never touch a nil big.Int.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
