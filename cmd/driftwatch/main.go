// driftwatch monitors a software project for quality regressions and
// specification drift, raising alerts through configurable channels.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

var (
	projectPath string
	configPath  string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Continuous project monitoring and drift detection",
	Long: `driftwatch watches a software project for quality regressions and
specification drift. It periodically compares the project against a
baseline and its declared specifications (feature spec, OpenAPI paths,
README claims, architecture doc), converts findings into issues, and
delivers alerts through configurable channels.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".", "project directory to monitor")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a driftwatch config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig returns the defaults, layered with the config file when one
// is given.
func loadConfig() config.MonitorConfig {
	if configPath == "" {
		return config.DefaultMonitorConfig()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func severityColor(sev types.Severity) *color.Color {
	switch sev {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case types.SeverityError:
		return color.New(color.FgRed)
	case types.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
