// Package harness wires the compiler, ledger, engine and decoders into the
// runs an operator configures: a single target walkthrough, a benchmark and
// data-driven scenarios.
package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/airchains-network/contract-harness/bench"
	"github.com/airchains-network/contract-harness/compiler"
	"github.com/airchains-network/contract-harness/config"
	"github.com/airchains-network/contract-harness/db"
	"github.com/airchains-network/contract-harness/encoder"
	"github.com/airchains-network/contract-harness/engine"
	"github.com/airchains-network/contract-harness/eventlog"
	"github.com/airchains-network/contract-harness/slot"
	"github.com/airchains-network/contract-harness/state"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// Harness runs the configured target. It is not safe for concurrent use.
type Harness struct {
	cfg      config.Config
	compiler compiler.Compiler
	cache    db.DB
	log      *logrus.Logger
	output   *compiler.Output
}

// New creates a harness with the compiler named in cfg.
func New(cfg config.Config, log *logrus.Logger) (*Harness, error) {
	if log == nil {
		log = logrus.New()
	}
	h := &Harness{cfg: cfg, log: log}
	switch cfg.Compiler.Kind {
	case "artifacts":
		h.compiler = compiler.NewArtifactDir(log)
	case "", "solc":
		cache, err := db.Open(cfg.Compiler.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open compiler cache: %w", err)
		}
		h.cache = cache
		h.compiler = compiler.NewSolc(cfg.Compiler.SolcPath, cache, log)
	default:
		return nil, fmt.Errorf("unknown compiler kind %q", cfg.Compiler.Kind)
	}
	return h, nil
}

// NewWithCompiler creates a harness around an explicit compiler.
func NewWithCompiler(cfg config.Config, c compiler.Compiler, log *logrus.Logger) *Harness {
	if log == nil {
		log = logrus.New()
	}
	return &Harness{cfg: cfg, compiler: c, log: log}
}

// Close releases the compiler cache.
func (h *Harness) Close() error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Close()
}

// Compile builds the project once and reuses the output afterwards.
func (h *Harness) Compile(ctx context.Context) (*compiler.Output, error) {
	if h.output != nil {
		return h.output, nil
	}
	root := h.cfg.Compiler.SourceRoot
	if root == "" {
		root = "contracts"
	}
	out, err := h.compiler.Compile(ctx, root)
	if err != nil {
		return nil, wrap(PhaseCompile, "", "", err)
	}
	h.output = out
	return out, nil
}

// NewEngine creates an engine over a store seeded with the configured accounts.
func (h *Harness) NewEngine() (*engine.Engine, error) {
	accounts := make(map[common.Address]*types.Account, len(h.cfg.Accounts))
	for _, ac := range h.cfg.Accounts {
		addr, acc, err := ac.Account()
		if err != nil {
			return nil, wrap(PhaseSeed, "", "", err)
		}
		accounts[addr] = acc
	}
	store, err := state.NewStore()
	if err != nil {
		return nil, wrap(PhaseSeed, "", "", err)
	}
	if err := store.Seed(accounts); err != nil {
		return nil, wrap(PhaseSeed, "", "", err)
	}

	ecfg, err := engine.NewConfig(h.cfg.Chain.ChainDefaults())
	if err != nil {
		return nil, wrap(PhaseSeed, "", "", err)
	}
	if origin := h.cfg.Chain.Origin; origin != "" {
		addr, err := parseAddress(origin)
		if err != nil {
			return nil, wrap(PhaseSeed, "", "", fmt.Errorf("origin: %w", err))
		}
		ecfg.Origin = &addr
	}
	if coinbase := h.cfg.Chain.Coinbase; coinbase != "" {
		addr, err := parseAddress(coinbase)
		if err != nil {
			return nil, wrap(PhaseSeed, "", "", fmt.Errorf("coinbase: %w", err))
		}
		ecfg.Coinbase = addr
	}
	return engine.New(store, ecfg, h.log)
}

// Deployment is a contract installed by the harness.
type Deployment struct {
	Artifact  *compiler.Artifact
	Interface *encoder.Interface
	Address   common.Address
	Result    *types.ExecutionResult
}

// Deploy compiles if needed, then deploys contract from deployer with the
// given constructor arguments. A deployment that does not succeed is fatal.
func (h *Harness) Deploy(ctx context.Context, eng *engine.Engine, contract string, deployer common.Address, value string, ctorArgs []string) (*Deployment, error) {
	out, err := h.Compile(ctx)
	if err != nil {
		return nil, err
	}
	artifact, err := out.Find(contract)
	if err != nil {
		return nil, wrap(PhaseCompile, contract, "", err)
	}
	if len(artifact.Bytecode) == 0 {
		return nil, wrap(PhaseDeploy, contract, "", fmt.Errorf("%w: %s has no init code", compiler.ErrCompilation, artifact.ID()))
	}
	iface, err := artifact.Interface()
	if err != nil {
		return nil, wrap(PhaseCompile, contract, "", err)
	}
	initCode, err := iface.EncodeDeployStrings(artifact.Bytecode, ctorArgs)
	if err != nil {
		return nil, wrap(PhaseEncode, contract, "constructor", err)
	}
	amount, err := config.ParseAmount(value)
	if err != nil {
		return nil, wrap(PhaseDeploy, contract, "", err)
	}
	res, err := eng.Deploy(deployer, amount, initCode, h.cfg.Target.GasLimit)
	if err != nil {
		return nil, wrap(PhaseDeploy, contract, "", err)
	}
	if !res.Succeeded() {
		return nil, wrap(PhaseDeploy, contract, "", fmt.Errorf("deployment %s", describe(res)))
	}
	h.log.Infof("Contract %s deployed to address %s, used %d gas", contract, res.ContractAddress.Hex(), res.GasUsed)
	return &Deployment{
		Artifact:  artifact,
		Interface: iface,
		Address:   *res.ContractAddress,
		Result:    res,
	}, nil
}

// Event is a decoded log record.
type Event struct {
	Name    string
	Address common.Address
	Fields  map[string]interface{}
	Log     *ethtypes.Log
}

// DecodeLogs matches every log against iface. Logs of unknown events are kept
// with an empty name.
func DecodeLogs(iface *encoder.Interface, logs []*ethtypes.Log) []Event {
	events := make([]Event, 0, len(logs))
	for _, log := range logs {
		ev := Event{Address: log.Address, Log: log}
		if abiEvent, ok := eventlog.Match(iface.ABI, log); ok {
			if fields, err := eventlog.DecodeEvent(*abiEvent, log); err == nil {
				ev.Name = abiEvent.Name
				ev.Fields = fields
			}
		}
		events = append(events, ev)
	}
	return events
}

// Inspection is a storage slot read directly after the run.
type Inspection struct {
	Variable string
	Choice   slot.Choice
	Key      common.Hash
	Slot     common.Hash
	Value    common.Hash
}

// Report is the outcome of Run.
type Report struct {
	Contracts     []string
	Contract      string
	Address       common.Address
	Deploy        *types.ExecutionResult
	BalanceBefore []interface{}
	Call          *types.ExecutionResult
	Returns       []interface{}
	Events        []Event
	BalanceAfter  []interface{}
	Inspection    *Inspection
	Bench         *bench.Report
	GasUsed       uint64
}

// Run compiles the project, deploys the target, optionally queries its
// balance function, calls the state function, reads the inspected slot and
// finally benchmarks the state function.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	target := h.cfg.Target
	out, err := h.Compile(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Contracts: out.Names(), Contract: target.Contract}
	for _, name := range report.Contracts {
		h.log.Infof("Found contract %s", name)
	}

	eng, err := h.NewEngine()
	if err != nil {
		return nil, err
	}
	deployer, err := h.deployer(target.Deployer)
	if err != nil {
		return nil, wrap(PhaseSeed, target.Contract, "", err)
	}
	dep, err := h.Deploy(ctx, eng, target.Contract, deployer, target.Value, target.ConstructorArgs)
	if err != nil {
		return nil, err
	}
	report.Address = dep.Address
	report.Deploy = dep.Result

	if target.BalanceFunction != "" {
		if report.BalanceBefore, err = h.query(eng, dep, deployer, target.BalanceFunction, []string{deployer.Hex()}); err != nil {
			return nil, err
		}
	}

	if target.StateFunction != "" {
		payload, err := dep.Interface.EncodeCallStrings(target.StateFunction, target.Args)
		if err != nil {
			return nil, wrap(PhaseEncode, target.Contract, target.StateFunction, err)
		}
		res, err := eng.Call(deployer, dep.Address, nil, payload, target.GasLimit)
		if err != nil {
			return nil, wrap(PhaseCall, target.Contract, target.StateFunction, err)
		}
		report.Call = res
		report.Events = DecodeLogs(dep.Interface, res.Logs)
		if res.Succeeded() {
			if report.Returns, err = dep.Interface.DecodeReturn(target.StateFunction, res.ReturnData); err != nil {
				h.log.Warnf("Failed to decode %s output: %v", target.StateFunction, err)
			}
		}
		h.log.Infof("Call %s %s, used %d gas", target.StateFunction, describe(res), res.GasUsed)
		for _, ev := range report.Events {
			h.log.Infof("Event %s from %s: %v", ev.Name, ev.Address.Hex(), ev.Fields)
		}
	}

	if target.BalanceFunction != "" {
		if report.BalanceAfter, err = h.query(eng, dep, deployer, target.BalanceFunction, []string{deployer.Hex()}); err != nil {
			return nil, err
		}
	}

	if target.Inspect.Variable != "" {
		ins, err := h.Inspect(eng, dep, target.Inspect)
		if err != nil {
			return nil, err
		}
		report.Inspection = ins
	}

	if h.cfg.Bench.Iterations > 0 && target.StateFunction != "" {
		payload, err := dep.Interface.EncodeCallStrings(target.StateFunction, target.Args)
		if err != nil {
			return nil, wrap(PhaseEncode, target.Contract, target.StateFunction, err)
		}
		msg := types.CallContext{Caller: deployer, Target: &dep.Address, Data: payload, GasLimit: target.GasLimit}
		if report.Bench, err = bench.NewRunner(eng, h.log).Run(ctx, msg, h.cfg.Bench.Iterations); err != nil {
			return nil, wrap(PhaseBench, target.Contract, target.StateFunction, err)
		}
	}
	report.GasUsed = eng.GasUsed()
	return report, nil
}

// Bench deploys the target and benchmarks its state function.
func (h *Harness) Bench(ctx context.Context, iterations int) (*bench.Report, error) {
	target := h.cfg.Target
	if target.StateFunction == "" {
		return nil, wrap(PhaseBench, target.Contract, "", fmt.Errorf("no state function configured"))
	}
	eng, err := h.NewEngine()
	if err != nil {
		return nil, err
	}
	deployer, err := h.deployer(target.Deployer)
	if err != nil {
		return nil, wrap(PhaseSeed, target.Contract, "", err)
	}
	dep, err := h.Deploy(ctx, eng, target.Contract, deployer, target.Value, target.ConstructorArgs)
	if err != nil {
		return nil, err
	}
	payload, err := dep.Interface.EncodeCallStrings(target.StateFunction, target.Args)
	if err != nil {
		return nil, wrap(PhaseEncode, target.Contract, target.StateFunction, err)
	}
	msg := types.CallContext{Caller: deployer, Target: &dep.Address, Data: payload, GasLimit: target.GasLimit}
	report, err := bench.NewRunner(eng, h.log).Run(ctx, msg, iterations)
	if err != nil {
		return report, wrap(PhaseBench, target.Contract, target.StateFunction, err)
	}
	return report, nil
}

// Inspect reads the mapping entry ins.Key of ins.Variable from storage.
func (h *Harness) Inspect(eng *engine.Engine, dep *Deployment, ins config.InspectConfig) (*Inspection, error) {
	contract := dep.Artifact.Name
	override, err := config.ParseSlot(ins.SlotOverride)
	if err != nil {
		return nil, wrap(PhaseInspect, contract, ins.Variable, err)
	}
	choice, err := slot.Reconcile(dep.Artifact.Layout, ins.Variable, override)
	if err != nil {
		return nil, wrap(PhaseInspect, contract, ins.Variable, err)
	}
	if choice.Mismatch {
		h.log.Warnf("Slot override %d for %s disagrees with the storage layout slot %d", choice.Slot, ins.Variable, choice.LayoutSlot)
	}

	result := &Inspection{Variable: ins.Variable, Choice: choice}
	base := slot.Index(choice.Slot)
	switch key := strings.TrimSpace(ins.Key); {
	case key == "":
		result.Slot = base
	default:
		result.Key, result.Slot = slot.Key(base, key)
	}
	result.Value = eng.Store().GetState(dep.Address, result.Slot)
	h.log.Infof("Storage %s[%s] at slot %s = %s", ins.Variable, ins.Key, result.Slot.Hex(), result.Value.Big())
	return result, nil
}

func (h *Harness) query(eng *engine.Engine, dep *Deployment, caller common.Address, function string, args []string) ([]interface{}, error) {
	contract := dep.Artifact.Name
	payload, err := dep.Interface.EncodeCallStrings(function, args)
	if err != nil {
		return nil, wrap(PhaseEncode, contract, function, err)
	}
	res, err := eng.Query(caller, dep.Address, payload, h.cfg.Target.GasLimit)
	if err != nil {
		return nil, wrap(PhaseQuery, contract, function, err)
	}
	if !res.Succeeded() {
		return nil, wrap(PhaseQuery, contract, function, fmt.Errorf("query %s", describe(res)))
	}
	values, err := dep.Interface.DecodeReturn(function, res.ReturnData)
	if err != nil {
		return nil, wrap(PhaseQuery, contract, function, err)
	}
	h.log.Infof("%s(%s) = %v", function, strings.Join(args, ", "), values)
	return values, nil
}

// deployer resolves the configured deployer, falling back to the first seeded
// account.
func (h *Harness) deployer(addr string) (common.Address, error) {
	if addr != "" {
		return parseAddress(addr)
	}
	if h.cfg.Target.Deployer != "" {
		return parseAddress(h.cfg.Target.Deployer)
	}
	if len(h.cfg.Accounts) > 0 {
		return parseAddress(h.cfg.Accounts[0].Address)
	}
	return common.Address{}, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func describe(res *types.ExecutionResult) string {
	if res.RevertReason != "" {
		return fmt.Sprintf("%s: %s", res.Outcome, res.RevertReason)
	}
	return res.Outcome.String()
}
