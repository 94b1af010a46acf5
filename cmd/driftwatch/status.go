package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/types"
)

var metricsFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the metrics snapshot from the last check cycle",
	Long: `Read the metrics file a running monitor persists each cycle and print
a summary. Point --metrics-file at the configured metrics path, or set
metrics_file in the config.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := metricsFile
		if path == "" {
			path = loadConfig().MetricsFile
		}
		if path == "" {
			fmt.Fprintln(os.Stderr, "Error: no metrics file configured; pass --metrics-file or set metrics_file in the config")
			os.Exit(1)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading metrics file: %v\n", err)
			os.Exit(1)
		}

		var snapshot struct {
			Metrics types.MonitoringMetrics `json:"metrics"`
			Summary struct {
				Total      int            `json:"total"`
				BySeverity map[string]int `json:"by_severity"`
			} `json:"issues_summary"`
		}
		if err := json.Unmarshal(data, &snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "Error: parsing metrics file: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Monitor Status ==="))
		fmt.Printf("Last check:      %s\n", snapshot.Metrics.LastCheck.Format("2006-01-02 15:04:05"))
		fmt.Printf("Cycles:          %d\n", snapshot.Metrics.ChecksCompleted)
		fmt.Printf("Issues:          %d\n", snapshot.Metrics.IssuesDetected)
		fmt.Printf("Alerts sent:     %d\n", snapshot.Metrics.AlertsSent)
		fmt.Printf("Code changes:    %d\n", snapshot.Metrics.CodeChanges)
		fmt.Printf("Perf events:     %d\n", snapshot.Metrics.PerformanceDegradations)
		fmt.Printf("Drift items:     %d\n", snapshot.Metrics.DriftDetections)

		if snapshot.Summary.Total > 0 {
			fmt.Printf("\nOpen issues by severity:\n")
			severities := make([]string, 0, len(snapshot.Summary.BySeverity))
			for sev := range snapshot.Summary.BySeverity {
				severities = append(severities, sev)
			}
			sort.Strings(severities)
			for _, sev := range severities {
				count := snapshot.Summary.BySeverity[sev]
				if count == 0 {
					continue
				}
				colored := severityColor(types.Severity(sev)).SprintFunc()
				fmt.Printf("  %s %d\n", colored(sev+":"), count)
			}
		}
	},
}

func init() {
	statusCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "metrics file to read")
	rootCmd.AddCommand(statusCmd)
}
