package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/marcus/riverwalk/internal/input"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/output"
	"github.com/spf13/cobra"
)

var pointCmd = &cobra.Command{
	Use:     "point",
	Aliases: []string{"points", "p"},
	Short:   "Manage depth readings across a site",
	GroupID: "core",
}

var pointListCmd = &cobra.Command{
	Use:     "list <site-id>",
	Aliases: []string{"ls"},
	Short:   "List a site's measurement points",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			siteID, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			points, err := a.data.PointsFor(ctx, siteID)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				if points == nil {
					points = []*models.MeasurementPoint{}
				}
				return output.JSON(points)
			}
			if len(points) == 0 {
				fmt.Println("No measurement points")
				return nil
			}
			for _, p := range points {
				fmt.Printf("%s  %s\n", output.PointLine(p), output.ShortID(p.ID))
			}
			return nil
		})
	},
}

var pointAddCmd = &cobra.Command{
	Use:   "add <site-id> <distance> <depth>",
	Short: "Add one depth reading",
	Long: `Add one depth reading, in metres, at a distance from the left bank.

Example:
  rwalk point add abc123 1.5 0.32`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		dist, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return failJSON(asJSON, fmt.Errorf("invalid distance %q", args[1]))
		}
		depth, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return failJSON(asJSON, fmt.Errorf("invalid depth %q", args[2]))
		}
		number, _ := cmd.Flags().GetInt("number")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			siteID, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			p, err := a.data.CreateMeasurementPoint(ctx, siteID, &models.MeasurementPoint{
				PointNumber:      number,
				DistanceFromBank: dist,
				Depth:            depth,
			})
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(p)
			}
			output.Success("added point %d: %s", p.PointNumber, output.PointLine(p))
			return nil
		})
	},
}

var pointFillCmd = &cobra.Command{
	Use:   "fill <site-id>",
	Short: "Add a row of depth readings spaced evenly across the river",
	Long: `Add one point per depth, spaced evenly from bank to bank across the
site's river width.

Examples:
  rwalk point fill abc123 --depths 0.1,0.25,0.4,0.3,0.05
  rwalk point fill abc123 --depths @depths.txt --width 4.2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		raw, _ := cmd.Flags().GetString("depths")
		if raw == "" {
			return failJSON(asJSON, errors.New("--depths is required"))
		}
		values, err := input.ExpandList(raw)
		if err != nil {
			return failJSON(asJSON, err)
		}
		depths := make([]float64, 0, len(values))
		for _, v := range values {
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return failJSON(asJSON, fmt.Errorf("invalid depth %q", v))
			}
			depths = append(depths, d)
		}
		if len(depths) == 0 {
			return failJSON(asJSON, errors.New("no depths given"))
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			siteID, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			site, err := a.data.GetSite(ctx, siteID)
			if err != nil {
				return failJSON(asJSON, err)
			}
			width := site.RiverWidth
			if cmd.Flags().Changed("width") {
				width, _ = cmd.Flags().GetFloat64("width")
			}
			if width <= 0 && len(depths) > 1 {
				return failJSON(asJSON, errors.New("site has no river width; pass --width or set it with rwalk site edit"))
			}

			points, err := a.data.CreatePoints(ctx, site.ID, width, depths)
			if err != nil {
				if len(points) > 0 && !asJSON {
					output.Warning("%d of %d points saved", len(points), len(depths))
				}
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(points)
			}
			output.Success("added %d points across %.2fm", len(points), width)
			for _, p := range points {
				fmt.Println("  " + output.PointLine(p))
			}
			return nil
		})
	},
}

var pointEditCmd = &cobra.Command{
	Use:     "edit <point-id>",
	Aliases: []string{"update"},
	Short:   "Correct a depth reading",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if !flags.Changed("distance") && !flags.Changed("depth") && !flags.Changed("number") {
			return fail(errors.New("nothing to change; pass --distance, --depth or --number"))
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindMeasurementPoint, args[0])
			if err != nil {
				return fail(err)
			}
			p, err := a.data.GetMeasurementPoint(ctx, id)
			if err != nil {
				return fail(err)
			}
			if flags.Changed("distance") {
				p.DistanceFromBank, _ = flags.GetFloat64("distance")
			}
			if flags.Changed("depth") {
				p.Depth, _ = flags.GetFloat64("depth")
			}
			if flags.Changed("number") {
				p.PointNumber, _ = flags.GetInt("number")
			}
			if err := a.data.UpdateMeasurementPoint(ctx, p); err != nil {
				return fail(err)
			}
			output.Success("updated point %d: %s", p.PointNumber, output.PointLine(p))
			return nil
		})
	},
}

var pointDeleteCmd = &cobra.Command{
	Use:     "delete <point-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a depth reading",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindMeasurementPoint, args[0])
			if err != nil {
				return fail(err)
			}
			if err := a.data.DeleteMeasurementPoint(ctx, id); err != nil {
				return fail(err)
			}
			output.Success("deleted point %s", output.ShortID(id))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(pointCmd)
	pointCmd.AddCommand(pointListCmd, pointAddCmd, pointFillCmd, pointEditCmd, pointDeleteCmd)

	pointListCmd.Flags().Bool("json", false, "Output as JSON")

	pointAddCmd.Flags().Int("number", 0, "Point number (default: after the last point)")
	pointAddCmd.Flags().Bool("json", false, "Output as JSON")

	pointFillCmd.Flags().String("depths", "", "Comma-separated depths in metres, left bank first (or @file, - for stdin)")
	pointFillCmd.Flags().Float64("width", 0, "River width to spread the points over (default: the site's width)")
	pointFillCmd.Flags().Bool("json", false, "Output as JSON")

	pointEditCmd.Flags().Float64("distance", 0, "Distance from the left bank in metres")
	pointEditCmd.Flags().Float64("depth", 0, "Depth in metres")
	pointEditCmd.Flags().Int("number", 0, "Point number")
}
