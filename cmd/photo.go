package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/output"
	"github.com/marcus/riverwalk/internal/suggest"
	"github.com/spf13/cobra"
)

var photoTypes = []string{string(models.PhotoSite), string(models.PhotoSediment)}

// parsePhotoType accepts a photo type or a common alias for one.
func parsePhotoType(s string) (models.PhotoType, error) {
	if resolved, ok := suggest.Resolve(s, photoTypes); ok {
		s = resolved
	}
	t := models.PhotoType(s)
	if !models.IsValidPhotoType(t) {
		return "", fmt.Errorf("invalid photo type %q%s", s, suggest.Hint(s, photoTypes))
	}
	return t, nil
}

var photoCmd = &cobra.Command{
	Use:     "photo",
	Aliases: []string{"photos"},
	Short:   "Manage site and sediment photos",
	GroupID: "core",
}

var photoListCmd = &cobra.Command{
	Use:     "list <site-id>",
	Aliases: []string{"ls"},
	Short:   "List a site's photos",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			siteID, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			photos, err := a.data.PhotosFor(ctx, siteID)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				if photos == nil {
					photos = []*models.Photo{}
				}
				return output.JSON(photos)
			}
			if len(photos) == 0 {
				fmt.Println("No photos")
				return nil
			}
			for _, p := range photos {
				fmt.Println(output.PhotoLine(p))
			}
			return nil
		})
	},
}

var photoAddCmd = &cobra.Command{
	Use:   "add <site-id> <file>",
	Short: "Attach a photo to a site",
	Long: `Attach a photo to a site. The image is kept locally and uploaded on the
next sync.

Examples:
  rwalk photo add abc123 IMG_0042.jpg
  rwalk photo add abc123 pebbles.jpg --type sediment_photo`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		typeStr, _ := cmd.Flags().GetString("type")
		typ, err := parsePhotoType(typeStr)
		if err != nil {
			return failJSON(asJSON, err)
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return failJSON(asJSON, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(args[1]))

		return withApp(cmd, func(ctx context.Context, a *app) error {
			siteID, err := resolveID(a, models.KindSite, args[0])
			if err != nil {
				return failJSON(asJSON, err)
			}
			p, err := a.data.AddPhoto(ctx, siteID, typ, data, contentType)
			if err != nil {
				return failJSON(asJSON, err)
			}
			if asJSON {
				return output.JSON(p)
			}
			output.Success("added %s %s (%d bytes, %s)", p.Type, output.ShortID(p.ID), len(data), p.ContentType)
			return nil
		})
	},
}

var photoGetCmd = &cobra.Command{
	Use:   "get <photo-id>",
	Short: "Save a photo's image to a file",
	Long: `Save a photo's image to a file. Photos not yet uploaded are read from the
local store; uploaded photos are downloaded from the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindPhoto, args[0])
			if err != nil {
				return fail(err)
			}
			p, err := a.data.GetPhoto(ctx, id)
			if err != nil {
				return fail(err)
			}

			data := p.Data
			if len(data) == 0 {
				if p.URL == "" {
					return fail(errors.New("photo has no image data"))
				}
				if data, err = a.client.FetchPhoto(ctx, p.URL); err != nil {
					return fail(err)
				}
			}

			if out == "" {
				out = output.ShortID(p.ID) + photoExt(p.ContentType)
			}
			if out == "-" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fail(err)
			}
			output.Success("saved %s (%d bytes)", out, len(data))
			return nil
		})
	},
}

// photoExt returns a file extension for a content type, or "".
func photoExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

var photoEditCmd = &cobra.Command{
	Use:   "retype <photo-id> <type>",
	Short: "Change what a photo is tagged as",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parsePhotoType(args[1])
		if err != nil {
			return fail(err)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindPhoto, args[0])
			if err != nil {
				return fail(err)
			}
			p, err := a.data.GetPhoto(ctx, id)
			if err != nil {
				return fail(err)
			}
			p.Type = typ
			p.Data = nil
			if err := a.data.UpdatePhoto(ctx, p); err != nil {
				return fail(err)
			}
			output.Success("photo %s is now a %s", output.ShortID(p.ID), p.Type)
			return nil
		})
	},
}

var photoDeleteCmd = &cobra.Command{
	Use:     "delete <photo-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a photo",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := resolveID(a, models.KindPhoto, args[0])
			if err != nil {
				return fail(err)
			}
			if err := a.data.DeletePhoto(ctx, id); err != nil {
				return fail(err)
			}
			output.Success("deleted photo %s", output.ShortID(id))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(photoCmd)
	photoCmd.AddCommand(photoListCmd, photoAddCmd, photoGetCmd, photoEditCmd, photoDeleteCmd)

	photoListCmd.Flags().Bool("json", false, "Output as JSON")

	photoAddCmd.Flags().StringP("type", "t", string(models.PhotoSite), "Photo type (site_photo, sediment_photo)")
	photoAddCmd.Flags().Bool("json", false, "Output as JSON")

	photoGetCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default: <id>.<ext>)")
}
