package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/simplco/botkeeper/pkg/preflight"
)

var checkOutput string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the data store preflight check and exit",
	Long: `Verifies that the configured data store answers its liveness command.
Exits 0 when the store is reachable and authenticated, non-zero
otherwise, so it can gate a CI deployment step.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "output format: table or json")
}

type checkReport struct {
	Store    string `json:"store"`
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
	Latency  string `json:"latency,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := checkReport{
		Endpoint: preflight.Redact(cfg.StoreURI),
		Status:   "ok",
	}

	checker, err := preflight.New(cfg.StoreURI, cfg.PreflightTimeout)
	if err != nil {
		report.Status = "failed"
		report.Error = err.Error()
		printCheckReport(report)
		return err
	}
	report.Store = checker.Name()

	start := time.Now()
	if checkErr := checker.Check(cmd.Context()); checkErr != nil {
		report.Status = "failed"
		report.Error = checkErr.Error()
		printCheckReport(report)
		return checkErr
	}
	report.Latency = time.Since(start).Round(time.Millisecond).String()

	printCheckReport(report)
	return nil
}

func printCheckReport(report checkReport) {
	if checkOutput == "json" {
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
			return
		}
		fmt.Println(string(output))
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")

	table.Append("Store", report.Store)
	table.Append("Endpoint", report.Endpoint)
	table.Append("Status", report.Status)
	if report.Latency != "" {
		table.Append("Latency", report.Latency)
	}
	if report.Error != "" {
		table.Append("Error", report.Error)
	}

	table.Render()
}
