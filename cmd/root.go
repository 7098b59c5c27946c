package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "broadband-cli",
	Short: "Broadband speed coverage reporting",
	Long: `Decomposes provider service keys, joins per-address maximum speeds onto
analysis areas, classifies them into NTIA speed tiers, and writes coverage
reports by area and county.

Settings come from ./config.yaml (or --config) and BROADBAND_* environment
variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// setup loads settings, starts the logger, and checks what the invoked
// command needs.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadFile(configPath)
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c

	zap.L().Debug("config loaded",
		zap.String("command", cmd.Name()),
		zap.String("driver", cfg.Store.Driver),
		zap.String("output_dir", cfg.Output.Dir),
	)
	return cfg.Validate(cmd.Name())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
