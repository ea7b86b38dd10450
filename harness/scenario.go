package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/airchains-network/contract-harness/config"
	"github.com/airchains-network/contract-harness/encoder"
	"github.com/airchains-network/contract-harness/engine"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/common"
)

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Index    int
	Function string
	Result   *types.ExecutionResult
	Returns  []interface{}
	Events   []Event
	Passed   bool
	Reason   string // why the step did not pass
}

// ScenarioResult collects the steps of one scenario.
type ScenarioResult struct {
	Name     string
	Contract string
	Steps    []StepResult
	Passed   bool
}

// RunScenarios runs every configured scenario on its own fresh ledger. A
// failing expectation is recorded, only fatal errors stop the run.
func (h *Harness) RunScenarios(ctx context.Context) ([]*ScenarioResult, error) {
	results := make([]*ScenarioResult, 0, len(h.cfg.Scenarios))
	for _, sc := range h.cfg.Scenarios {
		res, err := h.RunScenario(ctx, sc)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunScenario deploys sc.Contract and runs its steps in order.
func (h *Harness) RunScenario(ctx context.Context, sc config.ScenarioConfig) (*ScenarioResult, error) {
	eng, err := h.NewEngine()
	if err != nil {
		return nil, err
	}
	deployer, err := h.deployer(sc.Deployer)
	if err != nil {
		return nil, wrap(PhaseSeed, sc.Contract, "", err)
	}
	dep, err := h.Deploy(ctx, eng, sc.Contract, deployer, "", sc.ConstructorArgs)
	if err != nil {
		return nil, err
	}

	result := &ScenarioResult{Name: sc.Name, Contract: sc.Contract, Passed: true}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sr, err := h.runStep(eng, dep, deployer, i, step)
		if err != nil {
			return result, err
		}
		if !sr.Passed {
			result.Passed = false
			h.log.Warnf("Scenario %s step %d (%s) failed: %s", sc.Name, i, step.Function, sr.Reason)
		}
		result.Steps = append(result.Steps, *sr)
	}
	if result.Passed {
		h.log.Infof("Scenario %s passed", sc.Name)
	}
	return result, nil
}

func (h *Harness) runStep(eng *engine.Engine, dep *Deployment, deployer common.Address, index int, step config.StepConfig) (*StepResult, error) {
	contract := dep.Artifact.Name
	from := deployer.Hex()
	if step.From != "" {
		from = step.From
	}
	caller, err := parseAddress(from)
	if err != nil {
		return nil, wrap(PhaseCall, contract, step.Function, err)
	}
	payload, err := dep.Interface.EncodeCallStrings(step.Function, step.Args)
	if err != nil {
		return nil, wrap(PhaseEncode, contract, step.Function, err)
	}

	var res *types.ExecutionResult
	if step.Kind == "query" {
		if res, err = eng.Query(caller, dep.Address, payload, step.Gas); err != nil {
			return nil, wrap(PhaseQuery, contract, step.Function, err)
		}
	} else {
		value, err := config.ParseAmount(step.Value)
		if err != nil {
			return nil, wrap(PhaseCall, contract, step.Function, err)
		}
		if res, err = eng.Call(caller, dep.Address, value, payload, step.Gas); err != nil {
			return nil, wrap(PhaseCall, contract, step.Function, err)
		}
	}

	sr := &StepResult{
		Index:    index,
		Function: step.Function,
		Result:   res,
		Events:   DecodeLogs(dep.Interface, res.Logs),
		Passed:   true,
	}
	want := types.Succeeded
	if step.Expect != "" {
		if want, err = types.ParseStatus(step.Expect); err != nil {
			return nil, wrap(PhaseCall, contract, step.Function, err)
		}
	}
	if res.Outcome.Status != want {
		sr.Passed = false
		sr.Reason = fmt.Sprintf("expected %s, got %s", want, describe(res))
		return sr, nil
	}
	if res.Succeeded() {
		if sr.Returns, err = dep.Interface.DecodeReturn(step.Function, res.ReturnData); err != nil {
			sr.Passed = false
			sr.Reason = err.Error()
			return sr, nil
		}
	}
	if len(step.Returns) > 0 {
		if reason := compareReturns(dep.Interface, step, sr.Returns); reason != "" {
			sr.Passed = false
			sr.Reason = reason
			return sr, nil
		}
	}
	if len(step.Events) > 0 {
		got := make([]string, 0, len(sr.Events))
		for _, ev := range sr.Events {
			got = append(got, ev.Name)
		}
		if strings.Join(got, ",") != strings.Join(step.Events, ",") {
			sr.Passed = false
			sr.Reason = fmt.Sprintf("expected events [%s], got [%s]", strings.Join(step.Events, ", "), strings.Join(got, ", "))
		}
	}
	return sr, nil
}

// compareReturns parses the expected strings with the output types of the
// function and compares their printed forms.
func compareReturns(iface *encoder.Interface, step config.StepConfig, got []interface{}) string {
	desc, err := iface.Lookup(step.Function)
	if err != nil {
		return err.Error()
	}
	outputs := desc.Method.Outputs
	if len(step.Returns) != len(outputs) || len(got) != len(outputs) {
		return fmt.Sprintf("expected %d return values, function has %d", len(step.Returns), len(outputs))
	}
	for i, s := range step.Returns {
		want, err := encoder.ParseArgument(outputs[i].Type, s)
		if err != nil {
			return fmt.Sprintf("return %d: %v", i, err)
		}
		if fmt.Sprint(want) != fmt.Sprint(got[i]) {
			return fmt.Sprintf("return %d: expected %v, got %v", i, want, got[i])
		}
	}
	return ""
}
