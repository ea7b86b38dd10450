package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Deploy the target contract and exercise it",
	Long: `Compile the project, deploy the configured contract, call its state function,
inspect the configured storage slot and benchmark the call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd)
	},
}

func init() {
	RunCmd.Flags().Int("iterations", -1, "Override the configured benchmark iterations, 0 disables the benchmark")
}

func runCommand(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iterations, _ := cmd.Flags().GetInt("iterations")
	cfg, h, log, err := setup(iterations)
	if err != nil {
		return err
	}
	defer h.Close()

	report, err := h.Run(ctx)
	if err != nil {
		log.Errorf("Run failed: %v", err)
		return err
	}
	renderReport(os.Stdout, report)
	log.Infof("Finished %s, cumulative gas %d", cfg.Target.Contract, report.GasUsed)
	return nil
}
