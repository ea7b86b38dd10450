// Package engine runs single contract invocations against a state.Store and
// commits their effects.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/airchains-network/contract-harness/encoder"
	"github.com/airchains-network/contract-harness/state"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStaticViolation means a read-only invocation changed the ledger.
	ErrStaticViolation = errors.New("static call mutated state")
	// ErrStaticValue means a read-only invocation tried to move value.
	ErrStaticValue = errors.New("static call cannot transfer value")
	// ErrStaticCreate means a deploy was requested as a read-only invocation.
	ErrStaticCreate = errors.New("static call cannot deploy")
)

// ErrOutOfGas is the reason carried by a Failed outcome that ran out of gas.
var ErrOutOfGas = vm.ErrOutOfGas

// Engine executes invocations one at a time against the store it owns.
// It keeps the cumulative gas of every invocation it has run.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	store   *state.Store
	cfg     Config
	log     *logrus.Logger
	gasUsed uint64
	txCount uint64
}

// New creates an engine over store. The cumulative gas counter starts at zero.
func New(store *state.Store, cfg Config, log *logrus.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if cfg.ChainConfig == nil {
		return nil, fmt.Errorf("chain config is nil")
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store: store,
		cfg:   cfg,
		log:   log,
	}, nil
}

// Store returns the ledger the engine executes against.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Config returns the execution context.
func (e *Engine) Config() Config {
	return e.cfg
}

// GasUsed returns the gas consumed by every invocation so far, including
// reverted and failed ones.
func (e *Engine) GasUsed() uint64 {
	return e.gasUsed
}

// Deploy runs initCode as deployer and installs the returned runtime code at
// the derived contract address.
func (e *Engine) Deploy(deployer common.Address, value *uint256.Int, initCode []byte, gasLimit uint64) (*types.ExecutionResult, error) {
	return e.Execute(types.CallContext{
		Caller:   deployer,
		Value:    value,
		Data:     initCode,
		GasLimit: gasLimit,
	})
}

// Call invokes target with payload. Its effects are committed on success.
func (e *Engine) Call(caller, target common.Address, value *uint256.Int, payload []byte, gasLimit uint64) (*types.ExecutionResult, error) {
	return e.Execute(types.CallContext{
		Caller:   caller,
		Target:   &target,
		Value:    value,
		Data:     payload,
		GasLimit: gasLimit,
	})
}

// Query invokes target read-only.
func (e *Engine) Query(caller, target common.Address, payload []byte, gasLimit uint64) (*types.ExecutionResult, error) {
	return e.Execute(types.CallContext{
		Caller:   caller,
		Target:   &target,
		Data:     payload,
		GasLimit: gasLimit,
		Static:   true,
	})
}

// Execute runs one invocation. Execution failures are reported in the result's
// Outcome, the returned error is reserved for invocations that could not be
// attempted or that broke a static guarantee.
func (e *Engine) Execute(msg types.CallContext) (*types.ExecutionResult, error) {
	value := msg.Value
	if value == nil {
		value = new(uint256.Int)
	}
	if msg.Static {
		if !value.IsZero() {
			return nil, ErrStaticValue
		}
		if msg.IsCreate() {
			return nil, ErrStaticCreate
		}
	}
	if msg.GasLimit == 0 {
		msg.GasLimit = e.cfg.CallGasLimit
	}

	var (
		statedb = e.store.StateDB()
		rules   = e.cfg.Rules()
		txHash  = e.nextTxHash()
		result  = new(types.ExecutionResult)
		before  common.Hash
	)
	e.store.MarkExecuted()
	e.store.Touch(msg.Caller)
	if msg.Static {
		before = e.store.Fingerprint()
	}

	statedb.SetTxContext(txHash, int(e.txCount))
	snapshot := statedb.Snapshot()

	intrinsic, err := core.IntrinsicGas(msg.Data, nil, msg.IsCreate(), rules.IsHomestead, rules.IsIstanbul, rules.IsShanghai)
	if err != nil {
		return nil, fmt.Errorf("failed to compute intrinsic gas: %w", err)
	}
	if msg.GasLimit < intrinsic {
		result.Outcome = types.Outcome{Status: types.Failed, Err: ErrOutOfGas}
		result.GasUsed = msg.GasLimit
		e.gasUsed += result.GasUsed
		e.log.Debugf("Invocation %s: gas limit %d below intrinsic cost %d", txHash.Hex(), msg.GasLimit, intrinsic)
		return result, nil
	}

	statedb.Prepare(rules, msg.Caller, e.cfg.Coinbase, msg.Target, vm.ActivePrecompiles(rules), nil)
	tracker := newSlotTracker(statedb)
	evm := vm.NewEVM(e.cfg.blockContext(), e.cfg.txContext(msg.Caller), statedb, e.cfg.ChainConfig, vm.Config{
		Tracer: tracker.hooks(),
	})

	var (
		ret   []byte
		left  uint64
		vmerr error
		gas   = msg.GasLimit - intrinsic
	)
	switch {
	case msg.IsCreate():
		var addr common.Address
		ret, addr, left, vmerr = evm.Create(vm.AccountRef(msg.Caller), msg.Data, gas, value)
		if vmerr == nil {
			result.ContractAddress = &addr
		}
	case msg.Static:
		ret, left, vmerr = evm.StaticCall(vm.AccountRef(msg.Caller), *msg.Target, msg.Data, gas)
	default:
		statedb.SetNonce(msg.Caller, statedb.GetNonce(msg.Caller)+1)
		ret, left, vmerr = evm.Call(vm.AccountRef(msg.Caller), *msg.Target, msg.Data, gas, value)
	}

	used := msg.GasLimit - left
	quotient := params.RefundQuotient
	if rules.IsLondon {
		quotient = params.RefundQuotientEIP3529
	}
	refund := statedb.GetRefund()
	if limit := used / quotient; refund > limit {
		refund = limit
	}
	used -= refund

	result.ReturnData = ret
	result.GasUsed = used
	result.Outcome = classify(vmerr)
	if result.Outcome.Status == types.Reverted {
		result.RevertReason = encoder.RevertReason(ret)
	}
	e.gasUsed += used

	if !result.Succeeded() {
		statedb.RevertToSnapshot(snapshot)
		e.log.Debugf("Invocation %s %s, used %d gas", txHash.Hex(), result.Outcome, used)
		return result, nil
	}

	if msg.Static {
		if err := e.checkStatic(before, tracker, snapshot); err != nil {
			return result, err
		}
	}

	result.Logs = statedb.GetLogs(txHash, e.cfg.BlockNumber.Uint64(), common.Hash{})
	if err := e.commit(tracker); err != nil {
		return result, err
	}
	statedb.Finalise(true)
	e.log.Debugf("Invocation %s succeeded, used %d gas, emitted %d logs", txHash.Hex(), used, len(result.Logs))
	return result, nil
}

// commit indexes every account and slot the invocation reached, recording the
// final slot values through the store.
func (e *Engine) commit(t *slotTracker) error {
	statedb := e.store.StateDB()
	for addr := range t.touched {
		e.store.Touch(addr)
	}
	for addr, slots := range t.writes {
		storage := make(state.Mutation, len(slots))
		for key := range slots {
			storage[key] = statedb.GetState(addr, key)
		}
		if err := e.store.Apply(addr, storage); err != nil {
			return fmt.Errorf("failed to commit storage of %s: %w", addr.Hex(), err)
		}
	}
	return nil
}

// checkStatic rolls back to snapshot when a static invocation changed state.
func (e *Engine) checkStatic(before common.Hash, t *slotTracker, snapshot int) error {
	if err := e.verifyStatic(before, t); err != nil {
		e.store.StateDB().RevertToSnapshot(snapshot)
		return err
	}
	return nil
}

func (e *Engine) verifyStatic(before common.Hash, t *slotTracker) error {
	statedb := e.store.StateDB()
	for addr, slots := range t.writes {
		for key, prev := range slots {
			if cur := statedb.GetState(addr, key); cur != prev {
				return fmt.Errorf("%w: slot %s of %s changed", ErrStaticViolation, key.Hex(), addr.Hex())
			}
		}
	}
	if after := e.store.Fingerprint(); after != before {
		return fmt.Errorf("%w: fingerprint %s became %s", ErrStaticViolation, before.Hex(), after.Hex())
	}
	return nil
}

// nextTxHash returns a unique hash the state uses to group an invocation's logs.
func (e *Engine) nextTxHash() common.Hash {
	e.txCount++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.txCount)
	return crypto.Keccak256Hash([]byte("harness-invocation"), buf[:])
}

func classify(err error) types.Outcome {
	switch {
	case err == nil:
		return types.Outcome{Status: types.Succeeded}
	case errors.Is(err, vm.ErrExecutionReverted):
		return types.Outcome{Status: types.Reverted, Err: vm.ErrExecutionReverted}
	case errors.Is(err, vm.ErrOutOfGas):
		return types.Outcome{Status: types.Failed, Err: ErrOutOfGas}
	case errors.Is(err, vm.ErrCodeStoreOutOfGas):
		return types.Outcome{Status: types.Failed, Err: fmt.Errorf("%w: %v", ErrOutOfGas, err)}
	}
	return types.Outcome{Status: types.Failed, Err: err}
}
