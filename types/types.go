package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account represents an account in the synthetic ledger
type Account struct {
	Nonce   uint64                      `json:"nonce"`
	Balance *uint256.Int                `json:"balance"`
	Code    []byte                      `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"` // absent key is zero
}

// NewAccount returns the zero account, which is also how an unseen address reads.
func NewAccount() *Account {
	return &Account{
		Balance: new(uint256.Int),
		Storage: make(map[common.Hash]common.Hash),
	}
}

// IsEmpty reports whether the account is indistinguishable from a non-existent one.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && len(a.Code) == 0 && len(a.Storage) == 0
}
