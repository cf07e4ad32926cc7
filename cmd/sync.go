package cmd

import (
	"context"
	"fmt"

	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/output"
	rwsync "github.com/marcus/riverwalk/internal/sync"
	"github.com/marcus/riverwalk/internal/tui/monitor"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes and download server state",
	Long: `Push every queued change to the server, then download the latest records.

With --watch, rwalk stays connected and syncs whenever the connection comes
back and on the configured interval, printing sync activity until interrupted.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			return runSyncWatch(cmd)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.data.Sync(ctx)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(res)
			}
			printResult(res)
			return nil
		})
	},
}

func printResult(res rwsync.Result) {
	output.Success("synced: %d pushed, %d downloaded", res.Pushed, res.Downloaded)
	if res.Deferred > 0 {
		output.Warning("%d changes deferred to the next sync", res.Deferred)
	}
	if res.Dropped > 0 {
		output.Warning("%d changes dropped after repeated failures", res.Dropped)
	}
	if res.Skipped > 0 {
		output.Info("%d downloaded records held back by local changes", res.Skipped)
	}
	if res.Pruned > 0 {
		output.Info("%d records removed after deletion on the server", res.Pruned)
	}
}

func runSyncWatch(cmd *cobra.Command) error {
	a, err := openApp(cmd, modeLive, nil)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	unsub := a.bus.Subscribe(func(e events.Event) {
		if e.Type == events.DataChanged {
			return
		}
		fmt.Printf("%s  %s\n", e.At.Format("15:04:05"), monitor.Describe(e))
	})
	defer unsub()

	st, err := a.engine.Status()
	if err != nil {
		return fail(err)
	}
	fmt.Println(output.SyncStatusLine(st))
	output.Info("watching for changes; press Ctrl+C to stop")

	<-cmd.Context().Done()
	return nil
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show connectivity, pending changes and local record counts",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		showPending, _ := cmd.Flags().GetBool("pending")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.data.SyncStatus()
			if err != nil {
				return failJSON(asJSON, err)
			}
			stats, err := a.store.Stats()
			if err != nil {
				return failJSON(asJSON, err)
			}
			var pending []models.QueueItem
			if showPending || asJSON {
				if pending, err = a.data.PendingChanges(); err != nil {
					return failJSON(asJSON, err)
				}
			}

			if asJSON {
				counts := make(map[models.Kind]db.KindStats, len(stats))
				for _, s := range stats {
					counts[s.Kind] = s
				}
				if pending == nil {
					pending = []models.QueueItem{}
				}
				return output.JSON(map[string]any{
					"status":  st,
					"records": counts,
					"pending": pending,
				})
			}

			fmt.Println(output.SyncStatusLine(st))
			fmt.Print(output.SectionHeader("Local records"))
			for _, s := range stats {
				line := fmt.Sprintf("  %-20s %d", s.Kind, s.Total)
				if s.Unsynced > 0 {
					line += fmt.Sprintf("  (%d unsynced)", s.Unsynced)
				}
				fmt.Println(line)
			}

			if showPending && len(pending) > 0 {
				fmt.Print(output.SectionHeader("Pending changes"))
				for _, item := range pending {
					line := fmt.Sprintf("  %s %-6s %-18s %s", item.Timestamp.Format("2006-01-02 15:04"), item.Op, item.Kind, output.ShortID(item.LocalID))
					if item.Attempts > 0 {
						line += fmt.Sprintf("  attempt %d", item.Attempts)
					}
					if item.LastError != "" {
						line += "  " + item.LastError
					}
					fmt.Println(line)
				}
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)

	syncCmd.Flags().BoolP("watch", "w", false, "Stay connected and sync in the background")
	syncCmd.Flags().Bool("json", false, "Output as JSON")

	statusCmd.Flags().BoolP("pending", "p", false, "List the queued changes")
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
