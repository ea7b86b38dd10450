package commands

import (
	"fmt"
	"os"

	"github.com/airchains-network/contract-harness/config"
	"github.com/airchains-network/contract-harness/harness"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	withMetrics bool
)

// AddFlags registers the flags shared by every command.
func AddFlags(root *cobra.Command) {
	root.PersistentFlags().StringVar(&configPath, "config", "harness.toml", "Path to the harness configuration file")
	root.PersistentFlags().BoolVar(&withMetrics, "metrics", false, "Collect metrics and print them when the command finishes")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if withMetrics {
			metrics.Enabled = true
		}
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if withMetrics {
			metrics.WriteOnce(metrics.DefaultRegistry, os.Stdout)
		}
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     true,
	})
	log.SetLevel(logrus.InfoLevel)
	if level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			log.SetLevel(lvl)
		} else {
			log.Warnf("Unknown log level %q, using info", level)
		}
	}
	return log
}

// setup loads the configuration and builds a harness from it. A non-negative
// iterations replaces the configured benchmark iterations.
func setup(iterations int) (config.Config, *harness.Harness, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if iterations >= 0 {
		cfg.Bench.Iterations = iterations
	}
	log := newLogger(cfg.General.LogLevel)
	h, err := harness.New(cfg, log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, h, log, nil
}
