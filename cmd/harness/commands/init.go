package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airchains-network/contract-harness/config"
	"github.com/spf13/cobra"
)

// InitCmd writes a default configuration file
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default harness configuration",
	Long: `Create a harness configuration at the --config path. The defaults deploy
SimpleToken from ./contracts and transfer 9999 units from the seeded deployer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(cmd)
	},
}

func init() {
	InitCmd.Flags().String("contract", "", "Contract to target")
	InitCmd.Flags().String("source-root", "", "Directory holding the contract sources or artifacts")
	InitCmd.Flags().String("compiler", "", "Compiler kind (solc/artifacts)")
	InitCmd.Flags().String("fork", "", "EVM fork (istanbul/london/shanghai/cancun)")
	InitCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
}

func initCommand(cmd *cobra.Command) error {
	contract, _ := cmd.Flags().GetString("contract")
	sourceRoot, _ := cmd.Flags().GetString("source-root")
	kind, _ := cmd.Flags().GetString("compiler")
	fork, _ := cmd.Flags().GetString("fork")
	force, _ := cmd.Flags().GetBool("force")

	log := newLogger("info")

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", configPath)
	}
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	cfg := config.DefaultConfig()
	if contract != "" {
		cfg.Target.Contract = contract
	}
	if sourceRoot != "" {
		cfg.Compiler.SourceRoot = sourceRoot
	}
	if kind != "" {
		cfg.Compiler.Kind = kind
	}
	if fork != "" {
		cfg.Chain.Fork = fork
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	log.Infof("Created config file at: %s", configPath)

	fmt.Println("\n=== Configuration Summary ===")
	fmt.Printf("Compiler: %s (%s)\n", cfg.Compiler.Kind, cfg.Compiler.SourceRoot)
	fmt.Printf("Fork: %s\n", cfg.Chain.Fork)
	fmt.Printf("Contract: %s\n", cfg.Target.Contract)
	fmt.Printf("Deployer: %s\n", cfg.Target.Deployer)
	fmt.Printf("State Function: %s(%s)\n", cfg.Target.StateFunction, joinArgs(cfg.Target.Args))
	fmt.Printf("Config File: %s\n", configPath)

	log.Info("Initialization completed successfully!")
	log.Infof("Run the target with: contract-harness run --config %s", configPath)
	return nil
}
