package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/riverwalk/internal/analysis"
	"github.com/marcus/riverwalk/internal/dateparse"
	"github.com/marcus/riverwalk/internal/input"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var walkCmd = &cobra.Command{
	Use:     "walk",
	Aliases: []string{"walks", "w"},
	Short:   "Manage river walks",
	GroupID: "core",
}

var walkListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List river walks, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		archived, _ := cmd.Flags().GetBool("archived")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			walks, err := a.data.RiverWalks(ctx)
			if err != nil {
				return failJSON(asJSON, err)
			}
			var shown []*models.RiverWalk
			for _, w := range walks {
				if w.Archived == archived {
					shown = append(shown, w)
				}
			}
			if asJSON {
				if shown == nil {
					shown = []*models.RiverWalk{}
				}
				return output.JSON(shown)
			}
			if len(shown) == 0 {
				if archived {
					fmt.Println("No archived river walks")
				} else {
					fmt.Println("No river walks yet. Start one with: rwalk walk create <name>")
				}
				return nil
			}
			for _, w := range shown {
				fmt.Println(output.WalkLine(w))
			}
			return nil
		})
	},
}

var walkCreateCmd = &cobra.Command{
	Use:     "create [name]",
	Aliases: []string{"new", "add"},
	Short:   "Start a new river walk",
	Long: `Start a new river walk. The walk is stored locally and synced when a
connection is available.

Without a name on an interactive terminal, a form asks for the details.

Examples:
  rwalk walk create "Afon Glaslyn" --date yesterday --county Gwynedd
  rwalk walk create "Upper Wharfe" --notes @notes.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		w := &models.RiverWalk{}
		if len(args) > 0 {
			w.Name = args[0]
		}
		w.Country, _ = cmd.Flags().GetString("country")
		w.County, _ = cmd.Flags().GetString("county")
		dateStr, _ := cmd.Flags().GetString("date")
		notes, _ := cmd.Flags().GetString("notes")

		var err error
		if w.Notes, err = input.ReadValue(notes); err != nil {
			return failJSON(asJSON, err)
		}

		if w.Name == "" {
			if asJSON || !term.IsTerminal(int(os.Stdin.Fd())) {
				return failJSON(asJSON, errors.New("river walk name is required"))
			}
			if err := walkForm(w, &dateStr); err != nil {
				return fail(err)
			}
		}

		if dateStr != "" {
			if w.Date, err = dateparse.ParseDate(dateStr); err != nil {
				return failJSON(asJSON, err)
			}
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			created, err := a.data.CreateRiverWalk(ctx, w)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(created)
			}
			output.Success("created river walk %s: %s (%s)", output.ShortID(created.ID), created.Name, created.Date)
			return nil
		})
	},
}

// walkForm asks for the walk details interactively.
func walkForm(w *models.RiverWalk, date *string) error {
	if w.Country == "" {
		w.Country = "UK"
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("e.g. Afon Glaslyn, Beddgelert").
				Value(&w.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Date").
				Description("YYYY-MM-DD, yesterday, -3d or a weekday; blank for today").
				Value(date).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, err := dateparse.ParseDate(s)
					return err
				}),
			huh.NewInput().Title("Country").Value(&w.Country),
			huh.NewInput().Title("County").Value(&w.County),
			huh.NewText().Title("Notes").Lines(3).Value(&w.Notes),
		).Title("New river walk"),
	).WithTheme(huh.ThemeDracula())
	return form.Run()
}

var walkShowCmd = &cobra.Command{
	Use:     "show <walk-id>",
	Aliases: []string{"view", "report"},
	Short:   "Show a river walk with its sites and downstream report",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		raw, _ := cmd.Flags().GetBool("raw")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindRiverWalk, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			w, err := a.data.GetRiverWalk(ctx, id)
			if err != nil {
				return failJSON(asJSON, err)
			}
			sites, err := a.data.SitesFor(ctx, w.ID)
			if err != nil {
				return failJSON(asJSON, err)
			}

			report := analysis.AnalyzeWalk(sites, func(s *models.Site) []*models.MeasurementPoint {
				points, err := a.data.PointsFor(ctx, s.ID)
				if err != nil {
					a.logger.Warn("load points", "site", s.ID, "err", err)
					return nil
				}
				return points
			})

			if asJSON {
				return output.JSON(map[string]any{
					"river_walk": w,
					"sites":      sites,
					"report":     report,
				})
			}

			md := output.WalkMarkdown(w, report)
			if raw || !term.IsTerminal(int(os.Stdout.Fd())) {
				fmt.Print(md)
				return nil
			}
			rendered, err := output.RenderReport(md)
			if err != nil {
				fmt.Print(md)
				return nil
			}
			fmt.Print(rendered)
			return nil
		})
	},
}

var walkEditCmd = &cobra.Command{
	Use:     "edit <walk-id>",
	Aliases: []string{"update"},
	Short:   "Change a river walk's details",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindRiverWalk, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			w, err := a.data.GetRiverWalk(ctx, id)
			if err != nil {
				return failJSON(asJSON, err)
			}

			changed := false
			flags := cmd.Flags()
			if flags.Changed("name") {
				w.Name, _ = flags.GetString("name")
				changed = true
			}
			if flags.Changed("date") {
				s, _ := flags.GetString("date")
				if w.Date, err = dateparse.ParseDate(s); err != nil {
					return failJSON(asJSON, err)
				}
				changed = true
			}
			if flags.Changed("country") {
				w.Country, _ = flags.GetString("country")
				changed = true
			}
			if flags.Changed("county") {
				w.County, _ = flags.GetString("county")
				changed = true
			}
			if flags.Changed("notes") {
				s, _ := flags.GetString("notes")
				if w.Notes, err = input.ReadValue(s); err != nil {
					return failJSON(asJSON, err)
				}
				changed = true
			}
			if !changed {
				return failJSON(asJSON, errors.New("nothing to change; pass --name, --date, --country, --county or --notes"))
			}

			if err := a.data.UpdateRiverWalk(ctx, w); err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(w)
			}
			output.Success("updated river walk %s", output.ShortID(w.ID))
			return nil
		})
	},
}

func archiveCmd(use string, archived bool, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <walk-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				id, err := resolveID(a, models.KindRiverWalk, args[0])
				if err != nil {
					return fail(err)
				}
				w, err := a.data.ArchiveRiverWalk(ctx, id, archived)
				if err != nil {
					return fail(err)
				}
				output.Success("%sd river walk %s: %s", use, output.ShortID(w.ID), w.Name)
				return nil
			})
		},
	}
}

var walkDeleteCmd = &cobra.Command{
	Use:     "delete <walk-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a river walk with all of its sites, points and photos",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindRiverWalk, args[0])
			if err != nil {
				return fail(err)
			}
			w, err := a.data.GetRiverWalk(ctx, id)
			if err != nil {
				return fail(err)
			}
			if !yes {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return fail(errors.New("refusing to delete without --yes"))
				}
				confirm := false
				err := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Delete %q and everything recorded on it?", w.Name)).
						Value(&confirm),
				)).WithTheme(huh.ThemeDracula()).Run()
				if err != nil || !confirm {
					output.Info("cancelled")
					return nil
				}
			}
			if err := a.data.DeleteRiverWalk(ctx, w.ID); err != nil {
				return fail(err)
			}
			output.Success("deleted river walk %s: %s", output.ShortID(w.ID), w.Name)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(walkCmd)

	walkUnarchiveCmd := archiveCmd("unarchive", false, "Restore an archived river walk")
	walkArchiveCmd := archiveCmd("archive", true, "Hide a river walk from the default list")
	walkCmd.AddCommand(walkListCmd, walkCreateCmd, walkShowCmd, walkEditCmd, walkArchiveCmd, walkUnarchiveCmd, walkDeleteCmd)

	walkListCmd.Flags().Bool("archived", false, "List archived walks instead")
	walkListCmd.Flags().Bool("json", false, "Output as JSON")

	walkCreateCmd.Flags().String("date", "", "Walk date (YYYY-MM-DD, today, yesterday, -3d, monday; default today)")
	walkCreateCmd.Flags().String("country", "UK", "Country")
	walkCreateCmd.Flags().String("county", "", "County or region")
	walkCreateCmd.Flags().StringP("notes", "n", "", "Notes (use @file or - for stdin)")
	walkCreateCmd.Flags().Bool("json", false, "Output as JSON")

	walkShowCmd.Flags().Bool("json", false, "Output as JSON")
	walkShowCmd.Flags().Bool("raw", false, "Print the report as plain markdown")

	walkEditCmd.Flags().String("name", "", "New name")
	walkEditCmd.Flags().String("date", "", "New date")
	walkEditCmd.Flags().String("country", "", "New country")
	walkEditCmd.Flags().String("county", "", "New county")
	walkEditCmd.Flags().StringP("notes", "n", "", "New notes (use @file or - for stdin)")
	walkEditCmd.Flags().Bool("json", false, "Output as JSON")

	walkDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
