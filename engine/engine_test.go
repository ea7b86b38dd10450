package engine

import (
	"math/big"
	"testing"

	"github.com/airchains-network/contract-harness/encoder"
	"github.com/airchains-network/contract-harness/eventlog"
	chaincfg "github.com/airchains-network/contract-harness/internal/config"
	"github.com/airchains-network/contract-harness/internal/tokentest"
	"github.com/airchains-network/contract-harness/slot"
	"github.com/airchains-network/contract-harness/state"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0xf000000000000000000000000000000000000000")
	recipient = common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	supply    = big.NewInt(1_000_000)
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := state.NewStore()
	require.NoError(t, err)

	ownerAcc := types.NewAccount()
	ownerAcc.Nonce = 1
	ownerAcc.Balance = uint256.NewInt(10_000_000_000_000_000)
	require.NoError(t, store.Seed(map[common.Address]*types.Account{owner: ownerAcc}))

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	eng, err := New(store, DefaultConfig(), log)
	require.NoError(t, err)
	return eng
}

func tokenInterface(t *testing.T) *encoder.Interface {
	t.Helper()
	iface, err := encoder.ParseInterface([]byte(tokentest.TokenABI))
	require.NoError(t, err)
	return iface
}

func deployToken(t *testing.T, eng *Engine) common.Address {
	t.Helper()
	initCode, err := tokenInterface(t).EncodeDeploy(tokentest.TokenCode(), supply)
	require.NoError(t, err)

	res, err := eng.Deploy(owner, nil, initCode, 0)
	require.NoError(t, err)
	require.Equal(t, types.Succeeded, res.Outcome.Status, res.Outcome.String())
	require.NotNil(t, res.ContractAddress)
	return *res.ContractAddress
}

func balanceOf(t *testing.T, eng *Engine, token, holder common.Address) *big.Int {
	t.Helper()
	iface := tokenInterface(t)
	payload, err := iface.EncodeCall("balanceOf(address)", holder)
	require.NoError(t, err)

	res, err := eng.Query(owner, token, payload, 0)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.Outcome.String())

	out, err := iface.DecodeReturn("balanceOf(address)", res.ReturnData)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0].(*big.Int)
}

func TestDeployCreditsDeployer(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)

	require.Equal(t, crypto.CreateAddress(owner, 1), token)
	require.Equal(t, uint64(2), eng.Store().Get(owner).Nonce)
	require.NotEmpty(t, eng.Store().Get(token).Code)
	require.Equal(t, 0, balanceOf(t, eng, token, owner).Cmp(supply))
	require.Equal(t, 0, balanceOf(t, eng, token, recipient).Sign())
}

func TestDeployEmitsMintLog(t *testing.T) {
	eng := newTestEngine(t)
	initCode, err := tokenInterface(t).EncodeDeploy(tokentest.TokenCode(), supply)
	require.NoError(t, err)

	res, err := eng.Deploy(owner, nil, initCode, 0)
	require.NoError(t, err)
	require.Len(t, res.Logs, 1)
	require.Equal(t, *res.ContractAddress, res.Logs[0].Address)
	require.Equal(t, tokentest.TransferTopic, res.Logs[0].Topics[0])
	require.Equal(t, common.Hash{}, res.Logs[0].Topics[1])
	require.Equal(t, common.BytesToHash(owner.Bytes()), res.Logs[0].Topics[2])
}

func TestTransfer(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)
	iface := tokenInterface(t)

	payload, err := iface.EncodeCall("transfer(address,uint256)", recipient, big.NewInt(9999))
	require.NoError(t, err)
	res, err := eng.Call(owner, token, nil, payload, 0)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.Outcome.String())

	out, err := iface.DecodeReturn("transfer", res.ReturnData)
	require.NoError(t, err)
	require.Equal(t, true, out[0])

	require.Len(t, res.Logs, 1)
	log := res.Logs[0]
	require.Equal(t, token, log.Address)
	require.Equal(t, []common.Hash{
		tokentest.TransferTopic,
		common.BytesToHash(owner.Bytes()),
		common.BytesToHash(recipient.Bytes()),
	}, log.Topics)
	require.Equal(t, common.LeftPadBytes(big.NewInt(9999).Bytes(), 32), log.Data)

	fields, err := eventlog.DecodeEvent(iface.ABI.Events["Transfer"], log)
	require.NoError(t, err)
	require.Equal(t, owner, fields["from"])
	require.Equal(t, recipient, fields["to"])
	require.Equal(t, 0, fields["value"].(*big.Int).Cmp(big.NewInt(9999)))

	require.Equal(t, 0, balanceOf(t, eng, token, recipient).Cmp(big.NewInt(9999)))
	require.Equal(t, 0, balanceOf(t, eng, token, owner).Cmp(new(big.Int).Sub(supply, big.NewInt(9999))))
}

func TestTransferOverBalanceReverts(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)
	before := eng.Store().Fingerprint()
	nonce := eng.Store().Get(owner).Nonce

	payload, err := tokenInterface(t).EncodeCall("transfer(address,uint256)", recipient, new(big.Int).Add(supply, big.NewInt(1)))
	require.NoError(t, err)
	res, err := eng.Call(owner, token, nil, payload, 0)
	require.NoError(t, err)
	require.Equal(t, types.Reverted, res.Outcome.Status)
	require.ErrorIs(t, res.Outcome.Err, vm.ErrExecutionReverted)
	require.Equal(t, tokentest.InsufficientBalance, res.RevertReason)
	require.Empty(t, res.Logs)
	require.NotZero(t, res.GasUsed)

	require.Equal(t, before, eng.Store().Fingerprint())
	require.Equal(t, nonce, eng.Store().Get(owner).Nonce)
	require.Equal(t, 0, balanceOf(t, eng, token, owner).Cmp(supply))
}

func TestIntrinsicOutOfGas(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)
	before := eng.Store().Fingerprint()
	cumulative := eng.GasUsed()

	payload, err := tokenInterface(t).EncodeCall("transfer(address,uint256)", recipient, big.NewInt(1))
	require.NoError(t, err)
	res, err := eng.Call(owner, token, nil, payload, 20_000)
	require.NoError(t, err)
	require.Equal(t, types.Failed, res.Outcome.Status)
	require.ErrorIs(t, res.Outcome.Err, ErrOutOfGas)
	require.Equal(t, uint64(20_000), res.GasUsed)
	require.Equal(t, cumulative+20_000, eng.GasUsed())
	require.Equal(t, before, eng.Store().Fingerprint())
}

func TestOutOfGasDiscardsState(t *testing.T) {
	burner := common.HexToAddress("0xb000000000000000000000000000000000000000")

	store, err := state.NewStore()
	require.NoError(t, err)
	ownerAcc := types.NewAccount()
	ownerAcc.Balance = uint256.NewInt(1)
	burnerAcc := types.NewAccount()
	burnerAcc.Code = tokentest.StoreThenLoop()
	require.NoError(t, store.Seed(map[common.Address]*types.Account{owner: ownerAcc, burner: burnerAcc}))
	eng, err := New(store, DefaultConfig(), nil)
	require.NoError(t, err)
	before := store.Fingerprint()

	res, err := eng.Call(owner, burner, nil, nil, 100_000)
	require.NoError(t, err)
	require.Equal(t, types.Failed, res.Outcome.Status)
	require.ErrorIs(t, res.Outcome.Err, ErrOutOfGas)
	require.Equal(t, uint64(100_000), res.GasUsed)
	require.Equal(t, common.Hash{}, store.GetState(burner, common.Hash{}))
	require.Equal(t, uint64(0), store.Get(owner).Nonce)
	require.Equal(t, before, store.Fingerprint())
}

func TestDeployAddressesFollowNonce(t *testing.T) {
	eng := newTestEngine(t)
	first := deployToken(t, eng)
	second := deployToken(t, eng)

	require.NotEqual(t, first, second)
	require.Equal(t, crypto.CreateAddress(owner, 1), first)
	require.Equal(t, crypto.CreateAddress(owner, 2), second)
	require.Equal(t, state.ComputeContractAddress(owner, 2), second)
}

func TestFailedDeployAssignsNoAddress(t *testing.T) {
	eng := newTestEngine(t)
	res, err := eng.Deploy(owner, nil, tokentest.InfiniteLoop(), 200_000)
	require.NoError(t, err)
	require.Equal(t, types.Failed, res.Outcome.Status)
	require.Nil(t, res.ContractAddress)
	require.Equal(t, uint64(1), eng.Store().Get(owner).Nonce)

	// the failed attempt did not consume the nonce
	token := deployToken(t, eng)
	require.Equal(t, crypto.CreateAddress(owner, 1), token)
}

func TestQueryDoesNotMutate(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)
	before := eng.Store().Fingerprint()
	nonce := eng.Store().Get(owner).Nonce

	for i := 0; i < 3; i++ {
		require.Equal(t, 0, balanceOf(t, eng, token, owner).Cmp(supply))
	}
	require.Equal(t, before, eng.Store().Fingerprint())
	require.Equal(t, nonce, eng.Store().Get(owner).Nonce)
}

func TestQueryRejectsWrites(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)
	before := eng.Store().Fingerprint()

	payload, err := tokenInterface(t).EncodeCall("transfer(address,uint256)", recipient, big.NewInt(1))
	require.NoError(t, err)
	res, err := eng.Query(owner, token, payload, 0)
	require.NoError(t, err)
	require.Equal(t, types.Failed, res.Outcome.Status)
	require.ErrorIs(t, res.Outcome.Err, vm.ErrWriteProtection)
	require.Equal(t, before, eng.Store().Fingerprint())
}

func TestStaticWriteIsRolledBack(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)
	statedb := eng.Store().StateDB()
	key := slot.Resolve(slot.Index(tokentest.BalancesSlot), slot.AddressKey(owner))
	original := statedb.GetState(token, key)
	before := eng.Store().Fingerprint()

	// a slot written during the invocation no longer holds its recorded value
	snapshot := statedb.Snapshot()
	tracker := newSlotTracker(statedb)
	tracker.writes[token] = map[common.Hash]common.Hash{key: original}
	statedb.SetState(token, key, common.BigToHash(big.NewInt(1)))

	err := eng.checkStatic(before, tracker, snapshot)
	require.ErrorIs(t, err, ErrStaticViolation)
	require.Contains(t, err.Error(), "slot")
	require.Equal(t, original, statedb.GetState(token, key))
	require.Equal(t, before, eng.Store().Fingerprint())
}

func TestStaticFingerprintChangeIsRolledBack(t *testing.T) {
	eng := newTestEngine(t)
	deployToken(t, eng)
	statedb := eng.Store().StateDB()
	nonce := eng.Store().Get(owner).Nonce
	before := eng.Store().Fingerprint()

	// a change the slot tracker never saw is still caught
	snapshot := statedb.Snapshot()
	statedb.SetNonce(owner, nonce+1)

	err := eng.checkStatic(before, newSlotTracker(statedb), snapshot)
	require.ErrorIs(t, err, ErrStaticViolation)
	require.Contains(t, err.Error(), "fingerprint")
	require.Equal(t, nonce, eng.Store().Get(owner).Nonce)
	require.Equal(t, before, eng.Store().Fingerprint())

	require.NoError(t, eng.checkStatic(before, newSlotTracker(statedb), statedb.Snapshot()))
}

func TestStaticContextRejectsValue(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)

	_, err := eng.Execute(types.CallContext{
		Caller: owner,
		Target: &token,
		Value:  uint256.NewInt(1),
		Static: true,
	})
	require.ErrorIs(t, err, ErrStaticValue)

	_, err = eng.Execute(types.CallContext{Caller: owner, Static: true})
	require.ErrorIs(t, err, ErrStaticCreate)
}

func TestCumulativeGas(t *testing.T) {
	eng := newTestEngine(t)
	require.Zero(t, eng.GasUsed())

	iface := tokenInterface(t)
	initCode, err := iface.EncodeDeploy(tokentest.TokenCode(), supply)
	require.NoError(t, err)
	deployed, err := eng.Deploy(owner, nil, initCode, 0)
	require.NoError(t, err)
	token := *deployed.ContractAddress

	good, err := iface.EncodeCall("transfer(address,uint256)", recipient, big.NewInt(5))
	require.NoError(t, err)
	bad, err := iface.EncodeCall("transfer(address,uint256)", recipient, new(big.Int).Mul(supply, big.NewInt(2)))
	require.NoError(t, err)

	total := deployed.GasUsed
	for _, payload := range [][]byte{good, bad, good} {
		res, err := eng.Call(owner, token, nil, payload, 0)
		require.NoError(t, err)
		require.NotZero(t, res.GasUsed)
		total += res.GasUsed
	}
	res, err := eng.Call(owner, token, nil, good, 21_000)
	require.NoError(t, err)
	require.Equal(t, types.Failed, res.Outcome.Status)
	total += res.GasUsed

	require.Equal(t, total, eng.GasUsed())
}

func TestBalanceSlotMatchesBalanceOf(t *testing.T) {
	eng := newTestEngine(t)
	token := deployToken(t, eng)

	payload, err := tokenInterface(t).EncodeCall("transfer(address,uint256)", recipient, big.NewInt(9999))
	require.NoError(t, err)
	res, err := eng.Call(owner, token, nil, payload, 0)
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	base := slot.Index(tokentest.BalancesSlot)
	for _, holder := range []common.Address{owner, recipient} {
		key := slot.Resolve(base, slot.AddressKey(holder))
		stored := eng.Store().GetState(token, key).Big()
		require.Equal(t, 0, stored.Cmp(balanceOf(t, eng, token, holder)))
	}
	require.Equal(t, 0, eng.Store().GetState(token, slot.Index(tokentest.TotalSupplySlot)).Big().Cmp(supply))

	// writes made by the VM are visible when reading the whole account
	storage := eng.Store().Get(token).Storage
	require.Len(t, storage, 3)
	require.Contains(t, storage, slot.Resolve(base, slot.AddressKey(recipient)))
}

func TestSeedClosedAfterExecution(t *testing.T) {
	eng := newTestEngine(t)
	deployToken(t, eng)
	err := eng.Store().Seed(map[common.Address]*types.Account{recipient: types.NewAccount()})
	require.ErrorIs(t, err, state.ErrSeedAfterExecution)
}

func TestPrebuiltLoopContract(t *testing.T) {
	store, err := state.NewStore()
	require.NoError(t, err)
	code := types.NewAccount()
	code.Nonce = 1
	code.Code = tokentest.BranchingRuntime()
	require.NoError(t, store.Seed(map[common.Address]*types.Account{tokentest.BranchingAddress: code}))
	eng, err := New(store, DefaultConfig(), nil)
	require.NoError(t, err)

	iface, err := encoder.ParseInterface([]byte(tokentest.BranchingABI))
	require.NoError(t, err)
	payload, err := iface.EncodeCall("run(uint256)", big.NewInt(12000))
	require.NoError(t, err)
	require.Equal(t, "0f14a406", common.Bytes2Hex(payload[:4]))

	res, err := eng.Call(owner, tokentest.BranchingAddress, nil, payload, 0)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.Outcome.String())
	out, err := iface.DecodeReturn("run", res.ReturnData)
	require.NoError(t, err)
	require.Equal(t, 0, out[0].(*big.Int).Cmp(big.NewInt(12000)))
}

func TestForks(t *testing.T) {
	for _, fork := range []string{"istanbul", "london", "shanghai", "cancun"} {
		t.Run(fork, func(t *testing.T) {
			cfg, err := NewConfig(chainWithFork(fork))
			require.NoError(t, err)
			require.Equal(t, fork == "shanghai" || fork == "cancun", cfg.Random != nil)
			require.Equal(t, fork != "istanbul", cfg.Rules().IsLondon)
			require.Equal(t, fork == "cancun", cfg.Rules().IsCancun)

			store, err := state.NewStore()
			require.NoError(t, err)
			eng, err := New(store, cfg, nil)
			require.NoError(t, err)

			initCode, err := tokenInterface(t).EncodeDeploy(tokentest.TokenCode(), supply)
			require.NoError(t, err)
			res, err := eng.Deploy(owner, nil, initCode, 0)
			require.NoError(t, err)
			require.True(t, res.Succeeded(), res.Outcome.String())
			require.Equal(t, 0, balanceOf(t, eng, *res.ContractAddress, owner).Cmp(supply))
		})
	}

	_, err := NewConfig(chainWithFork("frontier"))
	require.Error(t, err)
}

func chainWithFork(fork string) chaincfg.Chain {
	chain := chaincfg.Default()
	chain.Fork = fork
	return chain
}
