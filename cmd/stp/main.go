// Package main implements the stp CLI: suite replay, ledger verification
// and inspection of archived sessions.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/config"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/state"
)

var (
	// configPath is the optional YAML config file
	configPath string
	// logLevel overrides logging.level when set
	logLevel string

	cfg    config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stp",
	Short: "Solvency transport governor tools",
	Long: `stp replays scripted governor sessions, verifies hash-chained ledgers
and inspects sessions archived in SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (STP_ env vars override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// openStore opens the SQLite archive at path, falling back to store.path.
func openStore(path string) (*state.Store, error) {
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, nil
	}
	return state.NewStore(path)
}
