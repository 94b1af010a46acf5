package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/git"
	"github.com/driftwatch/driftwatch/internal/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single check cycle and print the findings",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		var opts []monitor.Option
		if g, err := git.New(ctx); err != nil {
			log.Warn().Err(err).Msg("git unavailable, git monitoring disabled")
		} else {
			opts = append(opts, monitor.WithGit(g))
		}

		m := monitor.New(projectPath, cfg, opts...)
		if err := m.RunOnce(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		status := m.GetStatus()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Check Cycle Results ==="))
		fmt.Printf("Issues detected: %d\n", status.Metrics.IssuesDetected)
		fmt.Printf("Alerts sent:     %d\n", status.Metrics.AlertsSent)
		fmt.Printf("Drift items:     %d\n", status.Metrics.DriftDetections)
		fmt.Println()

		if len(status.RecentIssues) == 0 {
			color.New(color.FgGreen).Println("No issues found")
			return
		}
		for _, issue := range status.RecentIssues {
			sev := severityColor(issue.Severity).SprintFunc()
			fmt.Printf("  %s %s: %s\n", sev(fmt.Sprintf("[%s]", issue.Severity)), issue.Type, issue.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
