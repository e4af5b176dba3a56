package cmd

import (
	"context"
	"fmt"

	"schemctl/pkg/geom"
	"schemctl/pkg/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	convertFrom        string
	convertTo          string
	convertRotate      string
	convertAxis        string
	convertFlip        []string
	convertCompression string
)

var convertCmd = NewCommand("convert <src> <dst>", "Convert a schematic between formats",
	`Load <src>, apply an optional rotation and flips, and save the result as
<dst>. Both names are relative to the schematic folder. Rotations must be
multiples of 90 degrees; the rotation is applied before any flip.`).
	WithExample(`  # Sponge to MCEdit
  schemctl convert castle old/castle --to mcedit

  # Quarter turn around the vertical axis, zstd bundle
  schemctl convert castle castle-turned --rotate 90 --to bundle --compression zstd

  # Mirror east-west
  schemctl convert castle castle-mirrored --flip x`).
	WithArgsRange(2, 2).
	WithApp(runConvert).
	Build()

// convertTransform builds the rotation followed by the flips.
func convertTransform() (geom.Transform, error) {
	t := geom.Identity()
	if convertRotate != "" {
		deg, err := geom.ParseRightAngle(convertRotate)
		if err != nil {
			return t, err
		}
		axis, err := geom.ParseAxis(convertAxis)
		if err != nil {
			return t, err
		}
		t = t.Combine(geom.Rotate(axis, deg))
	}
	for _, name := range convertFlip {
		axis, err := geom.ParseAxis(name)
		if err != nil {
			return t, err
		}
		t = t.Combine(geom.Flip(axis))
	}
	return t, nil
}

func runConvert(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]
	w := cmd.OutOrStdout()

	t, err := convertTransform()
	if err != nil {
		return err
	}

	h, err := app.Service.Load(ctx, app.Config.SaveDir, convertFrom, src)
	if err != nil {
		return withSuggestions(ctx, app, err, src)
	}
	h.Transform = h.Transform.Combine(t)

	if IsDryRun() {
		to := convertTo
		if to == "" {
			to = app.Service.DefaultFormat().Name
		}
		PrintDryRunAction(w, "convert a schematic", map[string]string{
			"Source":      src,
			"Destination": dst,
			"Format":      to,
			"Transform":   h.Transform.String(),
		})
		return nil
	}

	target, err := app.Service.Save(ctx, app.Config.SaveDir, convertTo, dst, h)
	if err != nil {
		return err
	}

	logger.Info().Str("src", src).Str("dst", target.Path.Rel).Str("format", target.Format.Name).Msg("Converted schematic")
	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(w, "✓ %s saved as %s (%s)\n", src, target.Path.Rel, target.Format.Name)
	return nil
}

func init() {
	convertCmd.Flags().StringVar(&convertFrom, "from", "", "Source format (default: detect)")
	convertCmd.Flags().StringVar(&convertTo, "to", "", "Destination format (default: default_format)")
	convertCmd.Flags().StringVar(&convertRotate, "rotate", "", "Rotation in degrees, a multiple of 90")
	convertCmd.Flags().StringVar(&convertAxis, "axis", "y", "Rotation axis (x, y, z)")
	convertCmd.Flags().StringSliceVar(&convertFlip, "flip", nil, "Mirror along an axis; may repeat")
	convertCmd.Flags().StringVar(&convertCompression, "compression", "", "Bundle payload compression (lz4, zstd, none)")

	convertCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("compression") {
			loadedConfig.Bundle.Compression = convertCompression
		}
		if convertRotate == "" && cmd.Flags().Changed("axis") {
			return fmt.Errorf("--axis needs --rotate")
		}
		return nil
	}
}
