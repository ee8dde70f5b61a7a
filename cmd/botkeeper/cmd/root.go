package cmd

import (
	"github.com/spf13/cobra"

	"github.com/simplco/botkeeper/pkg/config"
	"github.com/simplco/botkeeper/pkg/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "botkeeper",
	Short: "Deployment harness for the bot worker process",
	Long: `botkeeper verifies that the worker's data store is reachable, then runs
the worker under an unconditional restart loop: every exit, clean or not,
is followed by an immediate relaunch. The loop only ends when the harness
itself receives a termination signal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./botkeeper.yaml, $HOME/.botkeeper/, /etc/botkeeper/)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides config)")
}

// loadConfig loads configuration and applies CLI overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.JSON = logFormat == "json"
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
}
