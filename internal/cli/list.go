// Package cli: list.go implements the "batch-clip list" command.
//
// The list command previews which feature classes a run would clip from
// an input workspace, and the names they would get in the output
// geodatabase. Nothing is written.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <input-workspace> [wildcard] [feature-type]",
		Short: "List the feature classes a run would clip",
		Long: `List the feature classes in an input workspace that match the wildcard and
feature type, with the name each would get in the output geodatabase.

Examples:
  batch-clip list /data/layers
  batch-clip list /data/base.gdb "road*" polyline
  batch-clip list /data/layers --json`,

		Args: cobra.RangeArgs(1, 3),

		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := args[0]
			if abs, err := filepath.Abs(workspace); err == nil {
				workspace = abs
			}
			wildcard := ""
			if len(args) > 1 {
				wildcard = args[1]
			}
			featureType := model.FeatureTypeAll
			if len(args) > 2 {
				ft, err := model.ParseFeatureType(args[2])
				if err != nil {
					return model.WrapCLIError(model.ExitValidation, "invalid feature type", err)
				}
				featureType = ft
			}

			cfg, logger, err := loadSettings()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			log := engine.NewMessageLog(logger.Named("engine"))
			eng, closeEngine, err := newEngine(cmd.Context(), cfg, workspace, log, logger, uuid.NewString())
			if err != nil {
				return err
			}
			defer closeEngine()

			return listClasses(cmd.Context(), cmd.OutOrStdout(), eng, workspace, wildcard, featureType)
		},
	}
	return cmd
}

// listClasses enumerates the matching feature classes and prints them.
func listClasses(ctx context.Context, out io.Writer, eng engine.Engine, workspace, wildcard string, featureType model.FeatureType) error {
	classes, err := eng.ListFeatureClasses(ctx, workspace, wildcard, featureType)
	if err != nil {
		return model.NewEngineError(model.StageEnumerate, workspace, err)
	}

	if IsJSONOutput() {
		printListResultJSON(out, classes)
	} else {
		printListResultText(out, classes)
	}
	return nil
}

// listClassJSON is the JSON output structure for one feature class.
type listClassJSON struct {
	Name         string `json:"name"`
	GeometryType string `json:"geometryType"`
	OutputName   string `json:"outputName"`
	Dataset      string `json:"dataset"`
}

func printListResultJSON(out io.Writer, classes []model.FeatureClass) {
	result := struct {
		FeatureClasses []listClassJSON `json:"featureClasses"`
	}{
		// Empty slice so the output shows [] instead of null.
		FeatureClasses: make([]listClassJSON, 0, len(classes)),
	}
	for _, fc := range classes {
		result.FeatureClasses = append(result.FeatureClasses, listClassJSON{
			Name:         fc.Name,
			GeometryType: FormatGeometryType(fc.GeometryType),
			OutputName:   model.OutputName(fc.Name),
			Dataset:      fc.Dataset,
		})
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(out, string(data))
}

// printListResultText prints an aligned table:
//
//	NAME                           TYPE         OUTPUT
//	roads.shp                      Polyline     roads
//	gis.owner.parcels              Polygon      parcels
func printListResultText(out io.Writer, classes []model.FeatureClass) {
	if len(classes) == 0 {
		fmt.Fprintln(out, "No matching feature classes found.")
		return
	}

	fmt.Fprintf(out, "%-30s %-12s %s\n", "NAME", "TYPE", "OUTPUT")
	for _, fc := range classes {
		fmt.Fprintf(out, "%-30s %-12s %s\n", fc.Name, FormatGeometryType(fc.GeometryType), model.OutputName(fc.Name))
	}
}

// FormatGeometryType renders a geometry type for display. Classes whose
// type the engine could not determine show "-".
func FormatGeometryType(ft model.FeatureType) string {
	if ft == model.FeatureTypeAll {
		return "-"
	}
	return ft.String()
}
