package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/analysis"
	"github.com/driftwatch/driftwatch/internal/drift"
	"github.com/driftwatch/driftwatch/internal/types"
)

var (
	driftJSON    bool
	driftSummary bool
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Run drift detection once and print the report",
	Long: `Compare the project against whatever specification sources it carries
(driftwatch.yaml, OpenAPI spec, README, ARCHITECTURE.md, feature graph)
and report every detected mismatch.`,
	Run: func(cmd *cobra.Command, args []string) {
		detector := drift.NewDetector(projectPath, analysis.NewHeuristic())

		if driftSummary {
			printDriftSummary(detector.GetDriftSummary(context.Background()))
			return
		}

		report := detector.CheckDrift(context.Background())

		if driftJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Drift Report ==="))
		fmt.Printf("Project:       %s\n", report.ProjectPath)
		fmt.Printf("Specs checked: %v\n", report.CheckedSpecs)
		fmt.Printf("Files checked: %d\n", report.FilesChecked)
		fmt.Println()

		if len(report.Drifts) == 0 {
			color.New(color.FgGreen).Println("No drift detected")
			return
		}

		for _, item := range report.Drifts {
			sev := driftColor(item.Severity).SprintFunc()
			fmt.Printf("  %s %s: %s\n", sev(fmt.Sprintf("[%s]", item.Severity)), item.DriftType, item.Description)
			if item.FilePath != "" {
				fmt.Printf("      at %s\n", item.FilePath)
			}
		}

		summary := report.Summary()
		fmt.Printf("\nTotal: %d", summary.TotalDrifts)
		severities := make([]string, 0, len(summary.BySeverity))
		for sev := range summary.BySeverity {
			severities = append(severities, sev)
		}
		sort.Strings(severities)
		for _, sev := range severities {
			fmt.Printf("  %s=%d", sev, summary.BySeverity[sev])
		}
		fmt.Println()
	},
}

func printDriftSummary(summary types.DriftSummary) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("=== Drift Summary ==="))
	fmt.Printf("Total drifts: %d\n", summary.TotalDrifts)

	kinds := make([]string, 0, len(summary.ByType))
	for kind := range summary.ByType {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %s: %d\n", kind, summary.ByType[kind])
	}

	severities := make([]string, 0, len(summary.BySeverity))
	for sev := range summary.BySeverity {
		severities = append(severities, sev)
	}
	sort.Strings(severities)
	if len(severities) > 0 {
		fmt.Println()
	}
	for _, sev := range severities {
		fmt.Printf("  %s=%d", sev, summary.BySeverity[sev])
	}
	if len(severities) > 0 {
		fmt.Println()
	}
}

func driftColor(sev types.DriftSeverity) *color.Color {
	return severityColor(sev.IssueSeverity())
}

func init() {
	driftCmd.Flags().BoolVar(&driftJSON, "json", false, "print the full report as JSON")
	driftCmd.Flags().BoolVar(&driftSummary, "summary", false, "print aggregate counts only")
	rootCmd.AddCommand(driftCmd)
}
