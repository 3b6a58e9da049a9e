// Package cli: run.go implements the "batch-clip run" command.
//
// Orchestration steps:
//  1. Collect the eight run parameters (positional or --params file)
//  2. Load configuration and build the logger
//  3. Build the GDAL engine with the configured runner
//  4. Run the clip pipeline, streaming its messages
//  5. Optionally write the YAML run report
//  6. Output results (text or JSON)
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/clip"
	"github.com/shinji-kodama/batch-clip/internal/config"
	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	paramsFile     string // --params: JSONC parameter file
	report         bool   // --report: write the YAML run summary
	strictDistance bool   // --strict-distance: reject malformed distances
	noOverwrite    bool   // --no-overwrite: fail if the geodatabase exists
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use: "run <clip-source> <query> <buffer-distance> <output-workspace> <gdb-name> <input-workspace> [wildcard] [feature-type]",
		Short: "Clip every feature class in a workspace",
		Long: `Clip every feature class in the input workspace to the features of the
clip source selected by query, optionally buffered, into a new file
geodatabase in the output workspace.

Pass "" for an empty query (all clip features) or an empty buffer distance
(no buffer). The wildcard defaults to * and the feature type to all.
Relative clip source and output workspace paths are resolved against the
input workspace.

Examples:
  batch-clip run /data/admin.gdb/counties "NAME = 'Kent'" "500 Meters" /data/out "Kent Clip" /data/layers
  batch-clip run counties.shp "" "" /data/out kent.gdb /data/layers "road*" polyline
  batch-clip run --params kent.jsonc --json`,

		Args: cobra.MaximumNArgs(model.ParamCount),

		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := resolveParams(flags.paramsFile, args)
			if err != nil {
				return model.WrapCLIError(model.ExitValidation, "invalid run parameters", err)
			}

			cfg, logger, err := loadSettings()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cmd.Flags().Changed("report") {
				cfg.Run.Report = flags.report
			}
			if cmd.Flags().Changed("strict-distance") {
				cfg.Run.StrictDistance = flags.strictDistance
			}
			if flags.noOverwrite {
				cfg.Run.Overwrite = false
			}

			runID := uuid.NewString()
			log := engine.NewMessageLog(logger.Named("engine"))

			if params.InputWorkspace != "" {
				if abs, err := filepath.Abs(params.InputWorkspace); err == nil {
					params.InputWorkspace = abs
				}
			}
			eng, closeEngine, err := newEngine(cmd.Context(), cfg, params.InputWorkspace, log, logger, runID)
			if err != nil {
				return err
			}
			defer closeEngine()

			return executeRun(cmd.Context(), cmd.OutOrStdout(), runDeps{
				engine: eng,
				log:    log,
				logger: logger,
				cfg:    cfg,
				runID:  runID,
			}, params)
		},
	}

	cmd.Flags().StringVar(&flags.paramsFile, "params", "", "Read the run parameters from a JSON/JSONC file")
	cmd.Flags().BoolVar(&flags.report, "report", false, "Write a YAML run summary next to the output geodatabase")
	cmd.Flags().BoolVar(&flags.strictDistance, "strict-distance", false, "Fail on buffer distances that cannot be parsed")
	cmd.Flags().BoolVar(&flags.noOverwrite, "no-overwrite", false, "Fail if the output geodatabase already exists")

	return cmd
}

// runDeps are the collaborators of one run.
type runDeps struct {
	engine engine.Engine
	log    *engine.MessageLog
	logger *zap.Logger
	cfg    *config.Config
	runID  string
}

// executeRun runs the pipeline and prints its outcome to out. In text mode
// engine messages are streamed as they are recorded; in JSON mode they are
// printed once with the result.
func executeRun(ctx context.Context, out io.Writer, deps runDeps, params model.RunParams) error {
	if !IsJSONOutput() {
		deps.log.Subscribe(func(m model.Message) { printMessage(out, m) })
	}

	runner := clip.NewRunner(deps.engine, deps.log, deps.logger, clip.Options{
		StrictDistance: deps.cfg.Run.StrictDistance,
		RunID:          deps.runID,
	})

	summary, runErr := runner.Run(ctx, params)

	var reportPath string
	if runErr == nil && deps.cfg.Run.Report {
		p, err := clip.WriteSummary(summary)
		if err != nil {
			// The geodatabase is complete; a missing report only warns.
			deps.logger.Warn("failed to write run report", zap.Error(err))
		} else {
			reportPath = p
			deps.logger.Info("wrote run report", zap.String("path", p))
		}
	}

	if IsJSONOutput() {
		printRunJSON(out, deps.runID, summary, reportPath, deps.log.All(), runErr)
	} else if reportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", reportPath)
	}

	if runErr != nil {
		return runErr
	}
	return nil
}

// printMessage writes one engine message in the text format.
func printMessage(w io.Writer, m model.Message) {
	switch m.Severity {
	case model.SeverityError:
		fmt.Fprintf(w, "ERROR: %s\n", m.Text)
	case model.SeverityWarning:
		fmt.Fprintf(w, "WARNING: %s\n", m.Text)
	default:
		fmt.Fprintln(w, m.Text)
	}
}

// messageJSON is the JSON form of an engine message.
type messageJSON struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// runResultJSON is the JSON output of the run command.
type runResultJSON struct {
	RunID    string            `json:"runId"`
	Status   string            `json:"status"`
	Summary  *model.RunSummary `json:"summary,omitempty"`
	Report   string            `json:"report,omitempty"`
	Messages []messageJSON     `json:"messages"`
}

func printRunJSON(w io.Writer, runID string, summary *model.RunSummary, reportPath string, msgs []model.Message, runErr error) {
	result := runResultJSON{
		RunID:    runID,
		Status:   "succeeded",
		Summary:  summary,
		Report:   reportPath,
		Messages: make([]messageJSON, 0, len(msgs)),
	}
	if runErr != nil {
		result.Status = "failed"
	}
	for _, m := range msgs {
		result.Messages = append(result.Messages, messageJSON{Severity: m.Severity.String(), Text: m.Text})
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(w, string(data))
}
