package harness

import (
	"context"
	"math/big"
	"testing"

	"github.com/airchains-network/contract-harness/compiler"
	"github.com/airchains-network/contract-harness/config"
	"github.com/airchains-network/contract-harness/encoder"
	"github.com/airchains-network/contract-harness/internal/tokentest"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	deployer  = common.HexToAddress("0xf000000000000000000000000000000000000000")
	recipient = common.HexToAddress("0x00000000000000000000000000000000deadbeef")
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, tokentest.WriteArtifacts(dir))

	cfg := config.DefaultConfig()
	cfg.Compiler = config.CompilerConfig{Kind: "artifacts", SourceRoot: dir}
	cfg.Target.Contract = "Token"
	cfg.Target.ConstructorArgs = []string{"1000000"}
	cfg.Bench.Iterations = 3
	return cfg
}

func newHarness(t *testing.T, cfg config.Config) *Harness {
	t.Helper()
	h, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRunTokenFlow(t *testing.T) {
	h := newHarness(t, testConfig(t))
	report, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"Branching", "Token"}, report.Contracts)
	require.True(t, report.Deploy.Succeeded())
	require.Equal(t, big.NewInt(1_000_000), report.BalanceBefore[0])

	require.True(t, report.Call.Succeeded())
	require.Equal(t, []interface{}{true}, report.Returns)
	require.Len(t, report.Events, 1)
	require.Equal(t, "Transfer", report.Events[0].Name)
	require.Equal(t, deployer, report.Events[0].Fields["from"])
	require.Equal(t, recipient, report.Events[0].Fields["to"])
	require.Equal(t, big.NewInt(9999), report.Events[0].Fields["value"])

	require.Equal(t, big.NewInt(1_000_000-9999), report.BalanceAfter[0])

	// the raw slot read agrees with what the contract reports
	ins := report.Inspection
	require.NotNil(t, ins)
	require.True(t, ins.Choice.FromLayout)
	require.EqualValues(t, tokentest.BalancesSlot, ins.Choice.Slot)
	require.Equal(t, report.BalanceAfter[0], ins.Value.Big())

	require.NotNil(t, report.Bench)
	require.Equal(t, 3, report.Bench.Iterations)
	require.Equal(t, 3, report.Bench.Succeeded)
	require.Greater(t, report.GasUsed, report.Deploy.GasUsed+report.Call.GasUsed)
}

func TestRunSlotOverrideMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.Inspect.SlotOverride = "3"
	cfg.Bench.Iterations = 0
	report, err := newHarness(t, cfg).Run(context.Background())
	require.NoError(t, err)

	ins := report.Inspection
	require.True(t, ins.Choice.Mismatch)
	require.EqualValues(t, 3, ins.Choice.Slot)
	require.EqualValues(t, tokentest.BalancesSlot, ins.Choice.LayoutSlot)
	require.Equal(t, common.Hash{}, ins.Value)
	require.Nil(t, report.Bench)
}

func TestRunUnknownContract(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.Contract = "Missing"
	_, err := newHarness(t, cfg).Run(context.Background())

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, PhaseCompile, herr.Phase)
	require.Equal(t, "Missing", herr.Contract)
	require.ErrorIs(t, err, compiler.ErrArtifactNotFound)
}

func TestRunBadArgument(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.Args = []string{"not-an-address", "1"}
	_, err := newHarness(t, cfg).Run(context.Background())

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, PhaseEncode, herr.Phase)
	require.Equal(t, "transfer", herr.Function)
	require.ErrorIs(t, err, encoder.ErrArgumentTypeMismatch)
}

func TestDeployWithoutInitCode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.Contract = "Branching"
	_, err := newHarness(t, cfg).Run(context.Background())

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, PhaseDeploy, herr.Phase)
	require.ErrorIs(t, err, compiler.ErrCompilation)
}

func TestBench(t *testing.T) {
	h := newHarness(t, testConfig(t))
	report, err := h.Bench(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, 4, report.Iterations)
	require.Equal(t, 4, report.Succeeded)
}

func TestCompileIsCached(t *testing.T) {
	h := newHarness(t, testConfig(t))
	first, err := h.Compile(context.Background())
	require.NoError(t, err)
	second, err := h.Compile(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestUnknownCompilerKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compiler.Kind = "vyper"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestSeededOrigin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chain.Origin = "0x00000000000000000000000000000000000000aa"
	h := newHarness(t, cfg)
	eng, err := h.NewEngine()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xaa"), *eng.Config().Origin)
	require.Equal(t, uint64(1), eng.Store().Get(deployer).Nonce)
}

func TestScenarios(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenarios = []config.ScenarioConfig{
		{
			Name:            "transfer then overdraw",
			Contract:        "Token",
			ConstructorArgs: []string{"100"},
			Steps: []config.StepConfig{
				{Function: "transfer", Args: []string{recipient.Hex(), "60"}, Returns: []string{"true"}, Events: []string{"Transfer"}},
				{Kind: "query", Function: "balanceOf", Args: []string{recipient.Hex()}, Returns: []string{"60"}},
				{Function: "transfer", Args: []string{recipient.Hex(), "60"}, Expect: "reverted"},
				{Kind: "query", Function: "totalSupply", Returns: []string{"100"}},
			},
		},
		{
			Name:            "wrong expectation",
			Contract:        "Token",
			ConstructorArgs: []string{"100"},
			Steps: []config.StepConfig{
				{Kind: "query", Function: "balanceOf", Args: []string{deployer.Hex()}, Returns: []string{"99"}},
				{Function: "transfer", Args: []string{recipient.Hex(), "101"}},
			},
		},
	}
	results, err := newHarness(t, cfg).RunScenarios(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.True(t, results[0].Passed)
	require.Len(t, results[0].Steps, 4)
	require.Equal(t, types.Reverted, results[0].Steps[2].Result.Outcome.Status)
	require.Equal(t, tokentest.InsufficientBalance, results[0].Steps[2].Result.RevertReason)

	require.False(t, results[1].Passed)
	require.False(t, results[1].Steps[0].Passed)
	require.Contains(t, results[1].Steps[0].Reason, "expected 99, got 100")
	require.False(t, results[1].Steps[1].Passed)
	require.Contains(t, results[1].Steps[1].Reason, "expected succeeded")
}

func TestScenarioBadStepIsFatal(t *testing.T) {
	cfg := testConfig(t)
	sc := config.ScenarioConfig{
		Name:            "unknown function",
		Contract:        "Token",
		ConstructorArgs: []string{"1"},
		Steps:           []config.StepConfig{{Function: "mint", Args: []string{"1"}}},
	}
	_, err := newHarness(t, cfg).RunScenario(context.Background(), sc)
	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, PhaseEncode, herr.Phase)
	require.ErrorIs(t, err, encoder.ErrSignatureMismatch)
}
