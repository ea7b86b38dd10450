package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ScenarioCmd runs the configured scenarios
var ScenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run the scenarios of the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return scenarioCommand()
	},
}

func scenarioCommand() error {
	cfg, h, log, err := setup(-1)
	if err != nil {
		return err
	}
	defer h.Close()

	if len(cfg.Scenarios) == 0 {
		log.Warn("No scenarios configured")
		return nil
	}
	results, err := h.RunScenarios(context.Background())
	if len(results) > 0 {
		renderScenarios(os.Stdout, results)
	}
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	log.Infof("All %d scenarios passed", len(results))
	return nil
}
