package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/storage"
	"github.com/driftwatch/driftwatch/internal/types"
)

var (
	alertFile  string
	alertDB    string
	alertLimit int
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Summarize delivered alerts",
	Long: `Read delivered alerts from the newline-delimited JSON log the file
channel writes (or from a sqlite database written with run --db) and print
the most recent ones with severity counts.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			alerts []types.Alert
			err    error
		)
		if alertDB != "" {
			alerts, err = loadAlertsFromDB(alertDB)
		} else {
			path := alertFile
			if path == "" {
				path = loadConfig().Alert.AlertFile
			}
			if path == "" {
				fmt.Fprintln(os.Stderr, "Error: no alert source; pass --file or --db, or set alert.alert_file in the config")
				os.Exit(1)
			}
			alerts, err = loadAlertsFromFile(path)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Alert Log ==="))
		fmt.Printf("Total alerts: %d\n", len(alerts))

		bySeverity := map[types.Severity]int{}
		for _, a := range alerts {
			bySeverity[a.Severity]++
		}
		for _, sev := range types.Severities() {
			if bySeverity[sev] == 0 {
				continue
			}
			colored := severityColor(sev).SprintFunc()
			fmt.Printf("  %s %d\n", colored(string(sev)+":"), bySeverity[sev])
		}

		if len(alerts) == 0 {
			return
		}
		recent := alerts
		if len(recent) > alertLimit {
			recent = recent[len(recent)-alertLimit:]
		}
		fmt.Printf("\nMost recent:\n")
		for _, a := range recent {
			sev := severityColor(a.Severity).SprintFunc()
			fmt.Printf("  %s %s  %s (%s)\n",
				a.Timestamp.Format("01-02 15:04"),
				sev(fmt.Sprintf("[%s]", a.Severity)), a.Title, a.Category)
		}
	},
}

// loadAlertsFromFile reads the NDJSON alert log, oldest first. Malformed
// lines are skipped with a warning.
func loadAlertsFromFile(path string) ([]types.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening alert log: %w", err)
	}
	defer f.Close()

	var alerts []types.Alert
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var a types.Alert
		if err := json.Unmarshal(line, &a); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping malformed alert line: %v\n", err)
			continue
		}
		alerts = append(alerts, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading alert log: %w", err)
	}
	return alerts, nil
}

// loadAlertsFromDB reads persisted alerts, reordered oldest first to match
// the log file layout.
func loadAlertsFromDB(path string) ([]types.Alert, error) {
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening alert database: %w", err)
	}
	defer store.Close()

	newest, err := store.RecentAlerts(context.Background(), 1000)
	if err != nil {
		return nil, err
	}
	alerts := make([]types.Alert, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		alerts = append(alerts, newest[i])
	}
	return alerts, nil
}

func init() {
	alertsCmd.Flags().StringVar(&alertFile, "file", "", "alert log file to read")
	alertsCmd.Flags().StringVar(&alertDB, "db", "", "sqlite alert database to read")
	alertsCmd.Flags().IntVar(&alertLimit, "limit", 10, "how many recent alerts to show")
	rootCmd.AddCommand(alertsCmd)
}
