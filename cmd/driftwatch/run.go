package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/alert"
	"github.com/driftwatch/driftwatch/internal/events"
	"github.com/driftwatch/driftwatch/internal/git"
	"github.com/driftwatch/driftwatch/internal/monitor"
	"github.com/driftwatch/driftwatch/internal/storage"
	"github.com/driftwatch/driftwatch/internal/types"
)

var (
	watchEnabled bool
	dbPath       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor in the foreground",
	Long: `Start the monitoring loop and block until interrupted. The monitor
runs a check cycle at the configured interval; SIGINT or SIGTERM stops it
cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		var opts []monitor.Option

		if dbPath != "" {
			store, err := storage.Open(dbPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: opening alert database: %v\n", err)
				os.Exit(1)
			}
			defer store.Close()
			bus := events.NewBus()
			bus.Subscribe(events.EventIssueAdded, 0, func(ev events.Event) {
				issue, ok := ev.Payload.(types.Issue)
				if !ok {
					return
				}
				if err := store.SaveIssue(ctx, issue); err != nil {
					log.Error().Err(err).Msg("persisting issue failed")
				}
			})
			manager := alert.NewManager(cfg.Alert, alert.WithBus(bus), alert.WithHistoryStore(store))
			opts = append(opts, monitor.WithBus(bus), monitor.WithAlertManager(manager))
		}

		if g, err := git.New(ctx); err != nil {
			log.Warn().Err(err).Msg("git unavailable, git monitoring disabled")
		} else {
			opts = append(opts, monitor.WithGit(g))
		}

		m := monitor.New(projectPath, cfg, opts...)
		if err := m.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var w *monitor.Watcher
		if watchEnabled {
			w = monitor.NewWatcher(m, 0)
			if err := w.Start(); err != nil {
				log.Warn().Err(err).Msg("file watcher unavailable, continuing with periodic checks only")
				w = nil
			}
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		if w != nil {
			w.Stop()
		}
		m.Stop()
	},
}

func init() {
	runCmd.Flags().BoolVar(&watchEnabled, "watch", false, "also react to file changes between cycles")
	runCmd.Flags().StringVar(&dbPath, "db", "", "persist alerts and issues to this sqlite database")
	rootCmd.AddCommand(runCmd)
}
