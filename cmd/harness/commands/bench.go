package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// BenchCmd represents the bench command
var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the state function of the target contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		return benchCommand(cmd)
	},
}

func init() {
	BenchCmd.Flags().Int("iterations", -1, "Number of calls, defaults to the configured iterations")
}

func benchCommand(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iterations, _ := cmd.Flags().GetInt("iterations")
	cfg, h, log, err := setup(iterations)
	if err != nil {
		return err
	}
	defer h.Close()

	report, err := h.Bench(ctx, cfg.Bench.Iterations)
	if report != nil && report.Iterations > 0 {
		renderBench(os.Stdout, report)
	}
	if err != nil {
		log.Errorf("Benchmark failed: %v", err)
		return err
	}
	return nil
}
