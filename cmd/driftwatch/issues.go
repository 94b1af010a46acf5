package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/storage"
	"github.com/driftwatch/driftwatch/internal/types"
)

var (
	issuesDB    string
	issuesLimit int
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List persisted issues",
	Long: `Read issues from a sqlite database written with run --db and print
the most recent ones with severity counts.`,
	Run: func(cmd *cobra.Command, args []string) {
		if issuesDB == "" {
			fmt.Fprintln(os.Stderr, "Error: pass --db pointing at a database written with run --db")
			os.Exit(1)
		}
		store, err := storage.Open(issuesDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening issue database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		issues, err := store.RecentIssues(context.Background(), issuesLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Recent Issues ==="))
		if len(issues) == 0 {
			fmt.Println("No issues recorded")
			return
		}

		bySeverity := map[types.Severity]int{}
		for _, issue := range issues {
			bySeverity[issue.Severity]++
		}
		for _, sev := range types.Severities() {
			if bySeverity[sev] == 0 {
				continue
			}
			colored := severityColor(sev).SprintFunc()
			fmt.Printf("  %s %d\n", colored(string(sev)+":"), bySeverity[sev])
		}

		fmt.Println()
		for _, issue := range issues {
			sev := severityColor(issue.Severity).SprintFunc()
			fmt.Printf("  %s %s  %s: %s\n",
				issue.Timestamp.Format("01-02 15:04"),
				sev(fmt.Sprintf("[%s]", issue.Severity)), issue.Type, issue.Description)
		}
	},
}

func init() {
	issuesCmd.Flags().StringVar(&issuesDB, "db", "", "sqlite database to read")
	issuesCmd.Flags().IntVar(&issuesLimit, "limit", 20, "how many recent issues to show")
	rootCmd.AddCommand(issuesCmd)
}
