// Package tokentest provides contract fixtures for tests that cannot rely on a
// local solc: an assembled token, gas burners and a prebuilt loop contract.
package tokentest

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// TotalSupplySlot holds the token's total supply.
	TotalSupplySlot = 2
	// BalancesSlot is the base slot of the balances mapping.
	BalancesSlot = 6
	// InsufficientBalance is the revert reason of an over-balance transfer.
	InsufficientBalance = "insufficient balance"
)

// TokenABI describes the assembled token.
const TokenABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"initialSupply","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

// TokenLayout is the storage layout a compiler would report for the token.
const TokenLayout = `{
	"storage": [
		{"label":"name","slot":"0","offset":0,"type":"t_string_storage","contract":"Token.sol:Token"},
		{"label":"symbol","slot":"1","offset":0,"type":"t_string_storage","contract":"Token.sol:Token"},
		{"label":"totalSupply","slot":"2","offset":0,"type":"t_uint256","contract":"Token.sol:Token"},
		{"label":"decimals","slot":"3","offset":0,"type":"t_uint8","contract":"Token.sol:Token"},
		{"label":"owner","slot":"4","offset":0,"type":"t_address","contract":"Token.sol:Token"},
		{"label":"paused","slot":"5","offset":0,"type":"t_bool","contract":"Token.sol:Token"},
		{"label":"balances","slot":"6","offset":0,"type":"t_mapping(t_address,t_uint256)","contract":"Token.sol:Token"}
	]
}`

// TransferTopic is topic0 of Transfer(address,address,uint256).
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// revertPayload is the ABI encoding of Error(reason).
func revertPayload(reason string) []byte {
	payload := selector("Error(string)")
	payload = append(payload, common.LeftPadBytes(big.NewInt(0x20).Bytes(), 32)...)
	payload = append(payload, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	return append(payload, common.RightPadBytes([]byte(reason), 32)...)
}

// balanceKey leaves keccak(word at 0x00 ++ BalancesSlot) on the stack. The
// mapping key must already be in memory at 0x00.
func balanceKey(p *program) *program {
	return p.pushN(BalancesSlot).pushN(0x20).op(vm.MSTORE).
		pushN(0x40).pushN(0).op(vm.KECCAK256)
}

func returnWord(p *program) *program {
	return p.pushN(0).op(vm.MSTORE).pushN(0x20).pushN(0).op(vm.RETURN)
}

// TokenRuntime is the deployed code of the token.
func TokenRuntime() []byte {
	reason := revertPayload(InsufficientBalance)
	p := newProgram()

	// dispatch on the selector
	p.pushN(0).op(vm.CALLDATALOAD).pushN(0xe0).op(vm.SHR)
	p.op(vm.DUP1).push(selector("balanceOf(address)")).op(vm.EQ).pushLabel("balanceOf").op(vm.JUMPI)
	p.op(vm.DUP1).push(selector("transfer(address,uint256)")).op(vm.EQ).pushLabel("transfer").op(vm.JUMPI)
	p.op(vm.DUP1).push(selector("totalSupply()")).op(vm.EQ).pushLabel("totalSupply").op(vm.JUMPI)
	p.pushN(0).op(vm.DUP1, vm.REVERT)

	p.label("totalSupply").op(vm.POP)
	returnWord(p.pushN(TotalSupplySlot).op(vm.SLOAD))

	p.label("balanceOf").op(vm.POP)
	p.pushN(4).op(vm.CALLDATALOAD).pushN(0).op(vm.MSTORE)
	returnWord(balanceKey(p).op(vm.SLOAD))

	p.label("transfer").op(vm.POP)
	p.op(vm.CALLER).pushN(0).op(vm.MSTORE)
	balanceKey(p)                            // [fromKey]
	p.op(vm.DUP1, vm.SLOAD)                  // [fromKey, fromBal]
	p.pushN(0x24).op(vm.CALLDATALOAD)        // [fromKey, fromBal, amount]
	p.op(vm.DUP1, vm.DUP3, vm.LT)            // fromBal < amount
	p.pushLabel("insufficient").op(vm.JUMPI) // [fromKey, fromBal, amount]
	p.op(vm.DUP1, vm.DUP3, vm.SUB)           // [fromKey, fromBal, amount, fromBal-amount]
	p.op(vm.DUP4, vm.SSTORE)                 // [fromKey, fromBal, amount]
	p.pushN(4).op(vm.CALLDATALOAD).pushN(0).op(vm.MSTORE)
	p.pushN(0x40).pushN(0).op(vm.KECCAK256)      // [fromKey, fromBal, amount, toKey]
	p.op(vm.DUP1, vm.SLOAD, vm.DUP3, vm.ADD)     // [fromKey, fromBal, amount, toKey, toBal+amount]
	p.op(vm.SWAP1, vm.SSTORE)                    // [fromKey, fromBal, amount]
	p.pushN(0).op(vm.MSTORE)                     // amount is the log data
	p.pushN(4).op(vm.CALLDATALOAD).op(vm.CALLER) // topics: to, from
	p.push32(TransferTopic).pushN(0x20).pushN(0).op(vm.LOG3)
	returnWord(p.pushN(1))

	p.label("insufficient")
	p.pushN(uint64(len(reason))).pushLabel("reason").pushN(0).op(vm.CODECOPY)
	p.pushN(uint64(len(reason))).pushN(0).op(vm.REVERT)

	p.mark("reason").raw(reason)
	return p.assemble()
}

// TokenCode is the init code of the token without constructor arguments. The
// constructor reads the initial supply from the last word of the init code,
// credits it to the deployer and emits Transfer(0, deployer, supply).
func TokenCode() []byte {
	runtime := TokenRuntime()
	p := newProgram()

	p.pushN(0x20).pushN(0x20).op(vm.CODESIZE, vm.SUB).pushN(0).op(vm.CODECOPY)
	p.pushN(0).op(vm.MLOAD)                            // [supply]
	p.op(vm.DUP1).pushN(TotalSupplySlot).op(vm.SSTORE) // [supply]
	p.op(vm.CALLER).pushN(0).op(vm.MSTORE)
	balanceKey(p)                      // [supply, key]
	p.op(vm.DUP2, vm.SWAP1, vm.SSTORE) // [supply]
	p.pushN(0).op(vm.MSTORE)           // supply is the log data
	p.op(vm.CALLER).pushN(0)           // topics: to, from
	p.push32(TransferTopic).pushN(0x20).pushN(0).op(vm.LOG3)

	// copy the runtime out of the init code, a PUSH2 keeps the size fixed
	p.code = append(p.code, byte(vm.PUSH2), byte(len(runtime)>>8), byte(len(runtime)))
	p.op(vm.DUP1).pushLabel("runtime").pushN(0).op(vm.CODECOPY)
	p.pushN(0).op(vm.RETURN)

	p.mark("runtime").raw(runtime)
	return p.assemble()
}

// InfiniteLoop burns all gas it is given.
func InfiniteLoop() []byte {
	return common.FromHex("0x5b600056")
}

// StoreThenLoop writes 1 to slot 0 and then burns all remaining gas.
func StoreThenLoop() []byte {
	return common.FromHex("0x60016000555b600556")
}

// BranchingAddress is where BranchingRuntime is usually seeded.
var BranchingAddress = common.HexToAddress("0x1000000000000000000000000000000000000000")

// BranchingABI describes BranchingRuntime.
const BranchingABI = `[
	{"type":"function","name":"run","stateMutability":"pure","inputs":[{"name":"n","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// BranchingRuntime is solc 0.7.4 output for a contract whose run(n) counts up
// to n in a loop and returns n.
func BranchingRuntime() []byte {
	return common.FromHex("0x6080604052348015600f57600080fd5b506004361060285760003560e01c80630f14a40614602d575b600080fd5b605660048036036020811015604157600080fd5b8101908080359060200190929190505050606c565b6040518082815260200191505060405180910390f35b6000806000905060005b83811015608f5760018201915080806001019150506076565b508091505091905056fea26469706673582212202bc9ec597249a9700278fe4ce78da83273cb236e76d4d6797b441454784f901d64736f6c63430007040033")
}

type bytecodeObject struct {
	Object string `json:"object"`
}

type artifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         bytecodeObject  `json:"bytecode"`
	DeployedBytecode bytecodeObject  `json:"deployedBytecode"`
	StorageLayout    json.RawMessage `json:"storageLayout,omitempty"`
}

// WriteArtifacts lays out Foundry-style artifacts for Token and Branching
// under dir, as out/<Name>.sol/<Name>.json.
func WriteArtifacts(dir string) error {
	artifacts := map[string]artifact{
		"Token": {
			ABI:              json.RawMessage(TokenABI),
			Bytecode:         bytecodeObject{Object: hexutil.Encode(TokenCode())},
			DeployedBytecode: bytecodeObject{Object: hexutil.Encode(TokenRuntime())},
			StorageLayout:    json.RawMessage(TokenLayout),
		},
		"Branching": {
			ABI:              json.RawMessage(BranchingABI),
			DeployedBytecode: bytecodeObject{Object: hexutil.Encode(BranchingRuntime())},
		},
	}
	for name, a := range artifacts {
		path := filepath.Join(dir, "out", name+".sol", name+".json")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
