package state

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// slotValue is a storage entry in RLP-friendly form
type slotValue struct {
	Key   common.Hash
	Value common.Hash
}

// rlpAccount is the encoding of one account inside a fingerprint
type rlpAccount struct {
	Address  common.Address
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
	Storage  []slotValue
}

// Fingerprint hashes every known account. Two stores with equal fingerprints
// hold the same balances, nonces, code and storage for the addresses they know.
func (s *Store) Fingerprint() common.Hash {
	return Fingerprint(s.Snapshot())
}

// Fingerprint hashes a set of accounts in a deterministic order. Empty accounts
// are skipped since they are equivalent to absent ones.
func Fingerprint(accounts map[common.Address]*types.Account) common.Hash {
	addrs := make([]common.Address, 0, len(accounts))
	for addr, acc := range accounts {
		if acc == nil || acc.IsEmpty() {
			continue
		}
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})

	encoded := make([]rlpAccount, 0, len(addrs))
	for _, addr := range addrs {
		encoded = append(encoded, accountToValue(addr, accounts[addr]))
	}
	data, err := rlp.EncodeToBytes(encoded)
	if err != nil {
		// All fields are rlp-encodable, this cannot happen.
		panic(err)
	}
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return common.BytesToHash(hash.Sum(nil))
}

func accountToValue(addr common.Address, acc *types.Account) rlpAccount {
	storage := make([]slotValue, 0, len(acc.Storage))
	for k, v := range acc.Storage {
		if v == (common.Hash{}) {
			continue
		}
		storage = append(storage, slotValue{Key: k, Value: v})
	}
	sort.Slice(storage, func(i, j int) bool {
		return bytes.Compare(storage[i].Key[:], storage[j].Key[:]) < 0
	})
	balance := new(big.Int)
	if acc.Balance != nil {
		balance = acc.Balance.ToBig()
	}
	var codeHash common.Hash
	if len(acc.Code) > 0 {
		codeHash = crypto.Keccak256Hash(acc.Code)
	}
	return rlpAccount{
		Address:  addr,
		Nonce:    acc.Nonce,
		Balance:  balance,
		CodeHash: codeHash,
		Storage:  storage,
	}
}
