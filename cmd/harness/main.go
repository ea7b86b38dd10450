package main

import (
	"os"

	"github.com/airchains-network/contract-harness/cmd/harness/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "contract-harness",
		Short: "Compile, deploy and exercise smart contracts on an in-process EVM",
		Long: `A contract execution harness that compiles a Solidity project, deploys a contract
onto an in-memory ledger and drives it through calls, storage inspection,
scenarios and benchmarks.`,
		SilenceUsage: true,
	}
	commands.AddFlags(rootCmd)

	rootCmd.AddCommand(commands.InitCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.BenchCmd)
	rootCmd.AddCommand(commands.ContractsCmd)
	rootCmd.AddCommand(commands.ScenarioCmd)
	rootCmd.AddCommand(commands.SlotCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
