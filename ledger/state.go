package ledger

import (
	"math/big"
	"sync"

	"towerledger/core/types"
)

// State is the in-memory account store shared by the three engines. The
// service serializes all engine calls, but queries may come from gateway
// goroutines, so access is still guarded.
type State struct {
	mu       sync.RWMutex
	accounts map[string]*types.Account
}

// NewState returns an empty account store.
func NewState() *State {
	return &State{accounts: make(map[string]*types.Account)}
}

func cloneAccount(acc *types.Account) *types.Account {
	clone := &types.Account{Nonce: acc.Nonce, Balance: big.NewInt(0)}
	if acc.Balance != nil {
		clone.Balance = new(big.Int).Set(acc.Balance)
	}
	return clone
}

// GetAccount returns a copy of the stored account, or a zeroed account when
// the address has never been written.
func (s *State) GetAccount(addr []byte) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[string(addr)]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return cloneAccount(acc), nil
}

// PutAccount stores a copy of the account under the address.
func (s *State) PutAccount(addr []byte, account *types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[string(addr)] = cloneAccount(types.EnsureAccount(account))
	return nil
}

// Balance is a read helper used by the gateway and tests.
func (s *State) Balance(addr [20]byte) *big.Int {
	acc, _ := s.GetAccount(addr[:])
	return acc.Balance
}

// Credit adds funds to an account. Used to seed reward pools.
func (s *State) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := s.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return s.PutAccount(addr[:], acc)
}
