package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Status is the terminal state of a single invocation.
type Status uint8

const (
	Succeeded Status = iota
	Reverted
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Reverted:
		return "reverted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "succeeded", "success", "ok":
		return Succeeded, nil
	case "reverted", "revert":
		return Reverted, nil
	case "failed", "fail":
		return Failed, nil
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// Outcome pairs a status with the reason of a failure. Err is nil for
// Succeeded, vm.ErrExecutionReverted for Reverted and the VM error for Failed.
type Outcome struct {
	Status Status
	Err    error
}

func (o Outcome) String() string {
	if o.Err == nil || o.Status == Succeeded {
		return o.Status.String()
	}
	return fmt.Sprintf("%s(%v)", o.Status, o.Err)
}

// CallContext describes one invocation. A nil Target means deploy.
type CallContext struct {
	Caller   common.Address
	Target   *common.Address
	Value    *uint256.Int
	Data     []byte
	GasLimit uint64
	Static   bool
}

// IsCreate reports whether the context deploys a contract.
func (c *CallContext) IsCreate() bool {
	return c.Target == nil
}

// ExecutionResult is produced once per invocation.
type ExecutionResult struct {
	Outcome         Outcome
	ReturnData      []byte
	RevertReason    string
	ContractAddress *common.Address // deploy only, set on success
	GasUsed         uint64
	Logs            []*ethtypes.Log
}

// Succeeded reports whether the invocation terminated successfully.
func (r *ExecutionResult) Succeeded() bool {
	return r.Outcome.Status == Succeeded
}
