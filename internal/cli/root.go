// Package cli implements the cobra-based CLI commands for batch-clip.
//
// Each subcommand (run, list, cleanup) is defined in its own file within
// this package. This file defines the root command that serves as the
// parent for all subcommands and handles global flags.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/config"
	"github.com/shinji-kodama/batch-clip/internal/logging"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// Global flag variables shared across all subcommands.
var (
	// jsonOutput switches command results and errors to JSON.
	jsonOutput bool

	// verbose forces debug-level diagnostics on stderr.
	verbose bool

	// configPath overrides ~/.config/batch-clip/config.yaml.
	configPath string
)

// Build information, injected from the main package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "batch-clip",
		Short: "Clip every feature class in a workspace to a clip area",
		Long: `batch-clip clips every feature class (or shapefile) in an input workspace
to a clip area selected from a clip source, optionally buffered, and writes
the results into a new file geodatabase.

The spatial work is done by the GDAL/OGR utilities, either installed
locally or run inside a GDAL container image (engine.runner: docker).`,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.config/batch-clip/config.yaml)")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewCleanupCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code that matches the
// returned error.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(int(ExitCodeFor(err)))
	}
}

// ExitCodeFor maps an error to a process exit code. CLIErrors carry their
// own code, run errors map to validation or engine failure, and anything
// else is a general error.
func ExitCodeFor(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}

	var runErr *model.RunError
	if errors.As(err, &runErr) {
		if runErr.Kind == model.KindValidation {
			return model.ExitValidation
		}
		return model.ExitEngineError
	}
	return model.ExitGeneralError
}

// printError writes err to w as text or, with --json, as an error object.
// Errors go to stderr even in JSON mode because stdout is reserved for
// command results.
func printError(w io.Writer, err error) {
	message := err.Error()
	var detail error
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message, detail = cliErr.Message, cliErr.Err
	}

	if jsonOutput {
		errObj := map[string]any{
			"message":  message,
			"exitCode": int(ExitCodeFor(err)),
		}
		if detail != nil {
			errObj["detail"] = detail.Error()
		}
		var runErr *model.RunError
		if errors.As(err, &runErr) {
			errObj["kind"] = string(runErr.Kind)
			errObj["stage"] = string(runErr.Stage)
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if detail != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, detail)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// loadSettings loads the configuration and builds the diagnostic logger.
// Configuration failures become CLIErrors with ExitConfigError.
func loadSettings() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitConfigError, "failed to load configuration", err)
	}

	logFormat := cfg.Log
	if jsonOutput {
		logFormat.Format = config.LogFormatJSON
	}
	logger, err := logging.New(logFormat, verbose)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitConfigError, "failed to create logger", err)
	}
	return cfg, logger, nil
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
