package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/airchains-network/contract-harness/bench"
	"github.com/airchains-network/contract-harness/harness"
	"github.com/airchains-network/contract-harness/types"
	"github.com/olekukonko/tablewriter"
)

func joinArgs(args []string) string {
	return strings.Join(args, ", ")
}

func formatValues(values []interface{}) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}

func outcome(res *types.ExecutionResult) string {
	if res == nil {
		return "-"
	}
	if res.RevertReason != "" {
		return fmt.Sprintf("%s (%s)", res.Outcome.Status, res.RevertReason)
	}
	return res.Outcome.String()
}

func renderReport(w io.Writer, report *harness.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Outcome", "Gas", "Output"})
	table.Append([]string{"deploy " + report.Contract, outcome(report.Deploy), strconv.FormatUint(report.Deploy.GasUsed, 10), report.Address.Hex()})
	if report.BalanceBefore != nil {
		table.Append([]string{"balance before", "succeeded", "-", formatValues(report.BalanceBefore)})
	}
	if report.Call != nil {
		table.Append([]string{"call", outcome(report.Call), strconv.FormatUint(report.Call.GasUsed, 10), formatValues(report.Returns)})
	}
	if report.BalanceAfter != nil {
		table.Append([]string{"balance after", "succeeded", "-", formatValues(report.BalanceAfter)})
	}
	if ins := report.Inspection; ins != nil {
		table.Append([]string{fmt.Sprintf("slot %s (base %d)", ins.Variable, ins.Choice.Slot), "-", "-", ins.Value.Big().String()})
	}
	table.SetFooter([]string{"", "cumulative gas", strconv.FormatUint(report.GasUsed, 10), ""})
	table.Render()

	if len(report.Events) > 0 {
		renderEvents(w, report.Events)
	}
	if report.Bench != nil {
		renderBench(w, report.Bench)
	}
}

func renderEvents(w io.Writer, events []harness.Event) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Event", "Address", "Fields"})
	for _, ev := range events {
		name := ev.Name
		if name == "" {
			name = "unknown"
		}
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s=%v", k, ev.Fields[k]))
		}
		table.Append([]string{name, ev.Address.Hex(), strings.Join(fields, " ")})
	}
	table.Render()
}

func renderBench(w io.Writer, report *bench.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Runs", "Total", "Mean", "Min", "P50", "P95", "P99", "Max", "Gas", "Ok/Revert/Fail"})
	table.Append([]string{
		strconv.Itoa(report.Iterations),
		report.Total.String(),
		report.Mean.String(),
		report.Min.String(),
		report.P50.String(),
		report.P95.String(),
		report.P99.String(),
		report.Max.String(),
		strconv.FormatUint(report.GasUsed, 10),
		fmt.Sprintf("%d/%d/%d", report.Succeeded, report.Reverted, report.Failed),
	})
	table.Render()
}

func renderScenarios(w io.Writer, results []*harness.ScenarioResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Scenario", "Step", "Function", "Outcome", "Gas", "Result"})
	for _, sc := range results {
		for _, step := range sc.Steps {
			verdict := "pass"
			if !step.Passed {
				verdict = "FAIL: " + step.Reason
			}
			table.Append([]string{
				sc.Name,
				strconv.Itoa(step.Index),
				step.Function,
				outcome(step.Result),
				strconv.FormatUint(step.Result.GasUsed, 10),
				verdict,
			})
		}
	}
	table.Render()
}
