package state

import (
	"errors"
	"fmt"

	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

// ErrSeedAfterExecution is returned when the snapshot is seeded after an
// invocation has already run against it.
var ErrSeedAfterExecution = errors.New("state already executed against, cannot seed")

// Mutation is the post-call storage delta of one account: every slot the
// invocation wrote, mapped to its final value. Balance, nonce and code changes
// land in the StateDB directly during execution.
type Mutation map[common.Hash]common.Hash

// Store holds the synthetic ledger for one run. It keeps an in-memory StateDB
// that the VM executes against, plus an index of every address and slot it has
// seen so accounts can be read back whole.
//
// A Store has exactly one writer. It is not safe for concurrent use.
type Store struct {
	db       *gethstate.StateDB
	slots    map[common.Address]map[common.Hash]struct{}
	executed bool
}

// NewStore creates an empty store backed by a memory database.
func NewStore() (*Store, error) {
	mdb := rawdb.NewMemoryDatabase()
	tdb := triedb.NewDatabase(mdb, nil)
	sdb, err := gethstate.New(common.Hash{}, gethstate.NewDatabaseWithNodeDB(mdb, tdb), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create state database: %w", err)
	}
	return &Store{
		db:    sdb,
		slots: make(map[common.Address]map[common.Hash]struct{}),
	}, nil
}

// Seed installs the starting snapshot. It may be called several times before
// the first execution, later calls overwrite earlier accounts.
func (s *Store) Seed(accounts map[common.Address]*types.Account) error {
	if s.executed {
		return ErrSeedAfterExecution
	}
	for addr, acc := range accounts {
		if acc == nil {
			continue
		}
		s.track(addr)
		s.db.CreateAccount(addr)
		balance := acc.Balance
		if balance == nil {
			balance = new(uint256.Int)
		}
		s.db.SetBalance(addr, balance, tracing.BalanceChangeUnspecified)
		s.db.SetNonce(addr, acc.Nonce)
		if len(acc.Code) > 0 {
			s.db.SetCode(addr, acc.Code)
		}
		for key, value := range acc.Storage {
			if value == (common.Hash{}) {
				continue
			}
			s.db.SetState(addr, key, value)
			s.slots[addr][key] = struct{}{}
		}
	}
	s.db.Finalise(false)
	return nil
}

// Get returns a copy of the account at addr. An unseen address yields the zero
// account rather than an error.
func (s *Store) Get(addr common.Address) *types.Account {
	acc := types.NewAccount()
	if !s.db.Exist(addr) {
		return acc
	}
	acc.Nonce = s.db.GetNonce(addr)
	acc.Balance.Set(s.db.GetBalance(addr))
	if code := s.db.GetCode(addr); len(code) > 0 {
		acc.Code = common.CopyBytes(code)
	}
	for key := range s.slots[addr] {
		if value := s.db.GetState(addr, key); value != (common.Hash{}) {
			acc.Storage[key] = value
		}
	}
	return acc
}

// GetState reads a single storage slot.
func (s *Store) GetState(addr common.Address, slot common.Hash) common.Hash {
	return s.db.GetState(addr, slot)
}

// Apply commits the final values of the slots an invocation wrote at addr.
// Zero values clear the slot. Only the execution engine calls it.
func (s *Store) Apply(addr common.Address, m Mutation) error {
	s.track(addr)
	for key, value := range m {
		if s.db.GetState(addr, key) != value {
			s.db.SetState(addr, key, value)
		}
		if value == (common.Hash{}) {
			delete(s.slots[addr], key)
			continue
		}
		s.slots[addr][key] = struct{}{}
	}
	return nil
}

// StateDB exposes the mutable view the VM executes against.
func (s *Store) StateDB() *gethstate.StateDB {
	return s.db
}

// MarkExecuted closes the seeding window.
func (s *Store) MarkExecuted() {
	s.executed = true
}

// Touch records addr as known without changing it.
func (s *Store) Touch(addr common.Address) {
	s.track(addr)
}

// Snapshot returns a deep copy of every known, non-empty account.
func (s *Store) Snapshot() map[common.Address]*types.Account {
	accounts := make(map[common.Address]*types.Account, len(s.slots))
	for addr := range s.slots {
		if acc := s.Get(addr); !acc.IsEmpty() {
			accounts[addr] = acc
		}
	}
	return accounts
}

func (s *Store) track(addr common.Address) {
	if _, ok := s.slots[addr]; !ok {
		s.slots[addr] = make(map[common.Hash]struct{})
	}
}

// ComputeContractAddress derives the address a deployer creates at nonce.
func ComputeContractAddress(sender common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(sender, nonce)
}
