package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/riverwalk/internal/output"
	"github.com/marcus/riverwalk/internal/tui/monitor"
	rwversion "github.com/marcus/riverwalk/internal/version"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard for sync activity",
	Long: `Launch a live-updating TUI dashboard showing:
- Connectivity, sync state and the last sync
- Sync queue: changes waiting to reach the server
- River walks stored locally
- Events: data changes and sync cycles as they happen

While the monitor runs, rwalk stays connected and syncs in the background.
Logs go to .rwalk/monitor.log in the store directory.

Key bindings:
  Tab/Shift+Tab  Switch panels
  1/2/3          Jump to panel
  j/k            Scroll active panel
  s              Sync now
  r              Force refresh
  ?              Toggle help
  q              Quit`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logFile, err := openLogFile("monitor.log")
		if err != nil {
			return fail(err)
		}
		defer logFile.Close()

		a, err := openApp(cmd, modeLive, logFile)
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		model, stop := monitor.NewModel(a.data, a.bus, interval)
		defer stop()
		if !noUpdateCheck() {
			model.Version = version
		}

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("rwalk %s\n", version)

		check, _ := cmd.Flags().GetBool("check")
		if !check {
			return nil
		}
		if rwversion.IsDevelopmentVersion(version) {
			output.Info("development build; skipping release check")
			return nil
		}
		result := rwversion.CheckCached(version)
		switch {
		case result.Error != nil:
			output.Warning("release check failed: %v", result.Error)
		case result.HasUpdate:
			output.Warning("%s is available", result.LatestVersion)
			if c := rwversion.UpdateCommand(result.LatestVersion); c != "" {
				fmt.Println("  " + c)
			}
		default:
			output.Success("up to date")
		}
		return nil
	},
}

// noUpdateCheck reports whether RWALK_NO_UPDATE_CHECK disables release checks.
func noUpdateCheck() bool {
	v := os.Getenv("RWALK_NO_UPDATE_CHECK")
	return v != "" && v != "0" && v != "false"
}

func init() {
	rootCmd.AddCommand(monitorCmd, versionCmd)

	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval")
	versionCmd.Flags().Bool("check", false, "Check GitHub for a newer release")
}
