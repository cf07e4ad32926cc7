package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/riverwalk/internal/analysis"
	"github.com/marcus/riverwalk/internal/input"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var siteCmd = &cobra.Command{
	Use:     "site",
	Aliases: []string{"sites", "s"},
	Short:   "Manage measurement sites on a river walk",
	GroupID: "core",
}

var siteListCmd = &cobra.Command{
	Use:     "list <walk-id>",
	Aliases: []string{"ls"},
	Short:   "List a walk's sites in order",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			walkID, err := resolveID(a, models.KindRiverWalk, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			sites, err := a.data.SitesFor(ctx, walkID)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				if sites == nil {
					sites = []*models.Site{}
				}
				return output.JSON(sites)
			}
			if len(sites) == 0 {
				fmt.Println("No sites recorded. Add one with: rwalk site add " + args[0])
				return nil
			}
			for _, s := range sites {
				fmt.Println(output.SiteLine(s))
			}
			return nil
		})
	},
}

var siteAddCmd = &cobra.Command{
	Use:     "add <walk-id>",
	Aliases: []string{"create", "new"},
	Short:   "Add a measurement site to a walk",
	Long: `Add a measurement site to a walk. Sites are numbered in order along the
walk; without --number the site is appended after the last one.

Examples:
  rwalk site add abc123 --name "Footbridge" --width 4.2 --lat 53.01 --lon -4.10
  rwalk site add abc123 --velocity-distance 10 --times 12.1,11.8,12.6
  rwalk site add abc123 --sediment 42:3,17.5:5,60:2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		site := &models.Site{}
		site.SiteNumber, _ = cmd.Flags().GetInt("number")
		if err := applySiteFlags(cmd.Flags(), site); err != nil {
			return failJSON(asJSON, err)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			walkID, err := resolveID(a, models.KindRiverWalk, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			created, err := a.data.CreateSite(ctx, walkID, site)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(created)
			}
			output.Success("added site %d (%s)", created.SiteNumber, output.ShortID(created.ID))
			return nil
		})
	},
}

// applySiteFlags copies every changed site flag onto site.
func applySiteFlags(flags *pflag.FlagSet, site *models.Site) error {
	if flags.Changed("name") {
		site.SiteName, _ = flags.GetString("name")
	}
	if flags.Changed("width") {
		site.RiverWidth, _ = flags.GetFloat64("width")
	}
	if flags.Changed("lat") {
		v, _ := flags.GetFloat64("lat")
		if v < -90 || v > 90 {
			return fmt.Errorf("invalid latitude %g", v)
		}
		site.Latitude = &v
	}
	if flags.Changed("lon") {
		v, _ := flags.GetFloat64("lon")
		if v < -180 || v > 180 {
			return fmt.Errorf("invalid longitude %g", v)
		}
		site.Longitude = &v
	}
	if flags.Changed("weather") {
		site.Weather, _ = flags.GetString("weather")
	}
	if flags.Changed("notes") {
		s, _ := flags.GetString("notes")
		notes, err := input.ReadValue(s)
		if err != nil {
			return err
		}
		site.Notes = notes
	}
	if flags.Changed("velocity-distance") || flags.Changed("times") {
		v := site.Velocity
		if v == nil {
			v = &models.Velocity{}
		}
		if flags.Changed("velocity-distance") {
			v.FloatDistance, _ = flags.GetFloat64("velocity-distance")
			if v.FloatDistance <= 0 {
				return fmt.Errorf("invalid float distance %g", v.FloatDistance)
			}
		}
		if flags.Changed("times") {
			s, _ := flags.GetString("times")
			times, err := parseFloats(s)
			if err != nil {
				return fmt.Errorf("--times: %w", err)
			}
			v.Times = times
		}
		site.Velocity = v
	}
	if flags.Changed("sediment") {
		s, _ := flags.GetString("sediment")
		raw, err := input.ReadValue(s)
		if err != nil {
			return err
		}
		samples, err := parseSediment(raw)
		if err != nil {
			return err
		}
		site.Sediment = samples
	}
	return nil
}

var siteFlagNames = []string{"name", "width", "lat", "lon", "weather", "notes", "velocity-distance", "times", "sediment"}

func addSiteFlags(flags *pflag.FlagSet) {
	flags.String("name", "", "Site name")
	flags.Float64("width", 0, "River width in metres")
	flags.Float64("lat", 0, "Latitude")
	flags.Float64("lon", 0, "Longitude")
	flags.String("weather", "", "Weather conditions")
	flags.StringP("notes", "n", "", "Notes (use @file or - for stdin)")
	flags.Float64("velocity-distance", 0, "Float run distance in metres")
	flags.String("times", "", "Comma-separated float times in seconds")
	flags.String("sediment", "", "Pebble samples as size:roundness pairs, e.g. 42:3,17.5:5 (or @file)")
	flags.Bool("json", false, "Output as JSON")
}

var siteShowCmd = &cobra.Command{
	Use:     "show <site-id>",
	Aliases: []string{"view"},
	Short:   "Show a site with its cross-section, points and photos",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			site, err := a.data.GetSite(ctx, id)
			if err != nil {
				return failJSON(asJSON, err)
			}
			points, err := a.data.PointsFor(ctx, site.ID)
			if err != nil {
				return failJSON(asJSON, err)
			}
			photos, err := a.data.PhotosFor(ctx, site.ID)
			if err != nil {
				return failJSON(asJSON, err)
			}
			section, sectionErr := analysis.Analyze(site, points)

			if asJSON {
				return output.JSON(map[string]any{
					"site":          site,
					"points":        points,
					"photos":        photos,
					"cross_section": section,
				})
			}

			fmt.Println(output.SiteLine(site))
			if site.Latitude != nil && site.Longitude != nil {
				fmt.Printf("  location: %.5f, %.5f\n", *site.Latitude, *site.Longitude)
			}
			if site.Weather != "" {
				fmt.Printf("  weather:  %s\n", site.Weather)
			}
			if site.Notes != "" {
				fmt.Printf("  notes:\n%s\n", output.IndentString(site.Notes, 4))
			}
			if site.Velocity != nil {
				fmt.Printf("  velocity: %.2f m/s over %.1fm (%d runs)\n", site.Velocity.Mean(), site.Velocity.FloatDistance, len(site.Velocity.Times))
			}
			if sed := analysis.SummarizeSediment(site.Sediment); sed != nil {
				fmt.Printf("  sediment: %d samples, median %.1fmm, roundness %.1f\n", sed.Samples, sed.MedianSize, sed.MeanRoundness)
			}

			fmt.Print(output.SectionHeader(fmt.Sprintf("Cross-section (%d points)", len(points))))
			switch {
			case errors.Is(sectionErr, analysis.ErrTooFewPoints):
				fmt.Println("  No depth readings yet. Add them with: rwalk point fill " + output.ShortID(site.ID) + " --depths ...")
			case sectionErr != nil:
				fmt.Printf("  %v\n", sectionErr)
			default:
				fmt.Print(output.IndentString(output.SectionLines(section), 2))
				fmt.Println()
				for _, p := range points {
					fmt.Println("  " + output.PointLine(p))
				}
			}

			if len(photos) > 0 {
				fmt.Print(output.SectionHeader(fmt.Sprintf("Photos (%d)", len(photos))))
				for _, p := range photos {
					fmt.Println("  " + output.PhotoLine(p))
				}
			}
			return nil
		})
	},
}

var siteEditCmd = &cobra.Command{
	Use:     "edit <site-id>",
	Aliases: []string{"update"},
	Short:   "Change a site's details",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		changed := false
		for _, name := range siteFlagNames {
			if cmd.Flags().Changed(name) {
				changed = true
			}
		}
		if !changed {
			return failJSON(asJSON, errors.New("nothing to change"))
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			site, err := a.data.GetSite(ctx, id)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if err := applySiteFlags(cmd.Flags(), site); err != nil {
				return failJSON(asJSON, err)
			}
			if err := a.data.UpdateSite(ctx, site); err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(site)
			}
			output.Success("updated site %d (%s)", site.SiteNumber, output.ShortID(site.ID))
			return nil
		})
	},
}

var siteDeleteCmd = &cobra.Command{
	Use:     "delete <site-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a site with its points and photos",
	Long: `Delete a site with its points and photos. Later sites on the walk are
renumbered so site numbers stay contiguous.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return fail(err)
			}
			if err := a.data.DeleteSite(ctx, id); err != nil {
				return fail(err)
			}
			output.Success("deleted site %s", output.ShortID(id))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(siteCmd)
	siteCmd.AddCommand(siteListCmd, siteAddCmd, siteShowCmd, siteEditCmd, siteDeleteCmd)

	siteListCmd.Flags().Bool("json", false, "Output as JSON")

	siteAddCmd.Flags().Int("number", 0, "Site number (default: after the last site)")
	addSiteFlags(siteAddCmd.Flags())
	addSiteFlags(siteEditCmd.Flags())

	siteShowCmd.Flags().Bool("json", false, "Output as JSON")
}
