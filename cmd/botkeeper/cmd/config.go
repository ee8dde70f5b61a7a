package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/simplco/botkeeper/pkg/preflight"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration inspection",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration the harness would run with, after merging
defaults, config file and environment. The store URI is shown with
credentials stripped.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "yaml", "output format: yaml, json or table")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Never echo credentials
	shown := *cfg
	shown.StoreURI = preflight.Redact(cfg.StoreURI)

	switch configOutput {
	case "json":
		output, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))

	case "table":
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Setting", "Value")

		table.Append("Store URI", shown.StoreURI)
		table.Append("Preflight Timeout", shown.PreflightTimeout.String())
		table.Append("Grace Period", shown.GracePeriod.String())
		table.Append("Worker Command", shown.Worker.Command)
		table.Append("Worker Args", fmt.Sprintf("%v", shown.Worker.Args))
		table.Append("Restart Policy", shown.Restart.Policy)
		table.Append("Metrics Enabled", fmt.Sprintf("%t", shown.Metrics.Enabled))
		table.Append("Metrics Addr", shown.Metrics.ListenAddr)
		table.Append("Log Level", shown.Log.Level)

		table.Render()

	default:
		output, err := yaml.Marshal(shown)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Print(string(output))
	}

	return nil
}
