package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// slotTracker watches an invocation for the accounts it enters and the slots
// it writes, so the store can index storage it would otherwise not know of.
type slotTracker struct {
	db      vm.StateDB
	writes  map[common.Address]map[common.Hash]common.Hash // slot -> value before the first write
	touched map[common.Address]struct{}
}

func newSlotTracker(db vm.StateDB) *slotTracker {
	return &slotTracker{
		db:      db,
		writes:  make(map[common.Address]map[common.Hash]common.Hash),
		touched: make(map[common.Address]struct{}),
	}
}

func (t *slotTracker) hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter:  t.onEnter,
		OnOpcode: t.onOpcode,
	}
}

func (t *slotTracker) onEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	t.touched[from] = struct{}{}
	t.touched[to] = struct{}{}
}

// onOpcode runs before each opcode executes, so the stored value read here is
// the one in place before the write.
func (t *slotTracker) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if vm.OpCode(op) != vm.SSTORE {
		return
	}
	stack := scope.StackData()
	if len(stack) < 2 {
		return
	}
	addr := scope.Address()
	key := common.Hash(stack[len(stack)-1].Bytes32())

	slots, ok := t.writes[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		t.writes[addr] = slots
	}
	if _, seen := slots[key]; !seen {
		slots[key] = t.db.GetState(addr, key)
	}
}
