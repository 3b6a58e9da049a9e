// Package cli: cleanup.go implements the "batch-clip cleanup" command.
//
// Helper containers are removed after every GDAL command, but a killed
// run can leave some behind. cleanup finds them by label and removes them.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/batch-clip/internal/docker"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// cleanupFlags holds the flag values for the cleanup command.
type cleanupFlags struct {
	runID  string // --run-id: only helpers of this run
	force  bool   // --force: also remove running helpers
	dryRun bool   // --dry-run: list without removing
}

// NewCleanupCommand creates the "cleanup" cobra command.
func NewCleanupCommand() *cobra.Command {
	flags := &cleanupFlags{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove leftover GDAL helper containers",
		Long: `Remove GDAL helper containers left behind by interrupted runs of the docker
runner. Running helpers are skipped unless --force is given.

Examples:
  batch-clip cleanup --dry-run
  batch-clip cleanup --run-id 5f0c1e2a-...
  batch-clip cleanup --force --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := docker.NewClient(cfg.Engine.DockerHost)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Ping(cmd.Context()); err != nil {
				return err
			}
			logger.Debug("connected to Docker daemon")

			return cleanupHelpers(cmd.Context(), cmd.OutOrStdout(), c.API(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.runID, "run-id", "", "Only remove helpers of this run")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Also remove running helpers")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List helpers without removing them")

	return cmd
}

// cleanupResultJSON is the JSON output of the cleanup command.
type cleanupResultJSON struct {
	Removed []docker.HelperContainer `json:"removed"`
	Skipped []docker.HelperContainer `json:"skipped"`
	DryRun  bool                     `json:"dryRun"`
}

// cleanupHelpers removes the matching helpers and reports what it did.
// It keeps going after a failed removal and returns an error at the end.
func cleanupHelpers(ctx context.Context, out io.Writer, api docker.API, flags *cleanupFlags) error {
	helpers, err := docker.ListManagedContainers(ctx, api, flags.runID)
	if err != nil {
		return err
	}

	result := cleanupResultJSON{
		Removed: make([]docker.HelperContainer, 0, len(helpers)),
		Skipped: make([]docker.HelperContainer, 0),
		DryRun:  flags.dryRun,
	}
	var failed int

	for _, h := range helpers {
		if h.State == "running" && !flags.force {
			result.Skipped = append(result.Skipped, h)
			continue
		}
		if !flags.dryRun {
			if err := docker.RemoveContainer(ctx, api, h.ID, flags.force); err != nil {
				failed++
				fmt.Fprintf(out, "WARNING: %v\n", err)
				continue
			}
		}
		result.Removed = append(result.Removed, h)
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(out, string(data))
	} else {
		printCleanupText(out, result)
	}

	if failed > 0 {
		return model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("failed to remove %d helper container(s)", failed))
	}
	return nil
}

func printCleanupText(out io.Writer, result cleanupResultJSON) {
	if len(result.Removed) == 0 && len(result.Skipped) == 0 {
		fmt.Fprintln(out, "No helper containers found.")
		return
	}

	verb := "Removed"
	if result.DryRun {
		verb = "Would remove"
	}
	for _, h := range result.Removed {
		fmt.Fprintf(out, "%s: %s (%s, run %s)\n", verb, shortContainerID(h.ID), h.Tool, h.RunID)
	}
	for _, h := range result.Skipped {
		fmt.Fprintf(out, "Skipped running: %s (%s, run %s)\n", shortContainerID(h.ID), h.Tool, h.RunID)
	}
}

func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
