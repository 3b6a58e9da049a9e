// Package clip implements the batch clip pipeline.
//
// The pipeline is a straight line of engine calls:
//  1. Resolve the clip area (filtered view + feature count)
//  2. Optionally buffer it
//  3. Normalize the geodatabase name and create the output container
//  4. Enumerate matching feature classes and clip each one
//
// Runner.Run wraps these steps in the top-level error handler, which turns
// every failure into a *model.RunError and reports it on the message log.
package clip

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// ClipLayerName is the name of the filtered clip boundary view.
const ClipLayerName = "Clip_area_lyr"

// Messages emitted when the predicate selects no clip features.
const (
	MsgInvalidSQL   = "ERROR:  Invalid SQL Statement:  No Selected Features"
	MsgCouldNotClip = "ERROR:  Could not Clip Features (Invalid SQL Statement)"
	MsgRunFailed    = "Batch Clip Routine Failed"
	MsgCompleted    = "Batch Clip Completed Successfully"
)

// Options tunes pipeline policy.
type Options struct {
	// StrictDistance rejects malformed buffer distances instead of
	// falling back to no buffering with a warning.
	StrictDistance bool

	// RunID fixes the run id instead of generating one, so collaborators
	// created before the run (the docker runner labels) can share it.
	RunID string
}

// Runner executes batch clip runs against an engine.
type Runner struct {
	engine engine.Engine
	log    *engine.MessageLog
	logger *zap.Logger
	opts   Options
	newID  func() string
	now    func() time.Time
	onClip func(model.ClipResult)
}

// NewRunner creates a Runner. The message log must be the same one the
// engine reports into, so that the error handler sees the engine backlog.
func NewRunner(eng engine.Engine, log *engine.MessageLog, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := uuid.NewString
	if opts.RunID != "" {
		id := opts.RunID
		newID = func() string { return id }
	}
	return &Runner{
		engine: eng,
		log:    log,
		logger: logger,
		opts:   opts,
		newID:  newID,
		now:    time.Now,
	}
}

// OnClip registers a callback invoked after each feature class is clipped.
func (r *Runner) OnClip(fn func(model.ClipResult)) {
	r.onClip = fn
}

// Run executes the whole pipeline. On success it returns the run summary.
// On failure the returned error is always a *model.RunError; engine
// failures have already been reported on the message log, validation
// failures carry their descriptive messages.
func (r *Runner) Run(ctx context.Context, params model.RunParams) (summary *model.RunSummary, err error) {
	runID := r.newID()
	logger := r.logger.With(zap.String("run_id", runID))

	defer func() {
		if rec := recover(); rec != nil {
			err = &model.RunError{
				Kind:  model.KindEngine,
				Stage: stageFromContext(summary),
				Cause: fmt.Errorf("panic: %v", rec),
				Stack: string(debug.Stack()),
			}
			summary = nil
		}
		if err != nil {
			err = r.handleFailure(logger, err)
		}
	}()

	summary = &model.RunSummary{RunID: runID, Params: params, StartedAt: r.now()}
	if err := r.run(ctx, logger, params, summary); err != nil {
		return nil, err
	}
	summary.FinishedAt = r.now()
	return summary, nil
}

// stageFromContext guesses the stage a panic happened in from how far the
// summary got.
func stageFromContext(s *model.RunSummary) model.Stage {
	switch {
	case s == nil:
		return model.StageParams
	case s.Container.Name != "":
		return model.StageClip
	case s.ClipGeometry != "":
		return model.StageSetupOutput
	default:
		return model.StageResolveClip
	}
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, params model.RunParams, summary *model.RunSummary) error {
	if err := params.Validate(); err != nil {
		return model.NewValidationError(model.StageParams, fmt.Errorf("%w: %v", model.ErrInvalidParams, err))
	}
	gdbName, err := NormalizeGDBName(params.GDBName)
	if err != nil {
		return model.NewValidationError(model.StageSetupOutput, err)
	}

	clipLayer, count, err := r.ResolveClipArea(ctx, params.ClipSource, params.Query)
	if err != nil {
		return err
	}
	summary.SelectedClip = count
	logger.Debug("clip area resolved", zap.String("layer", clipLayer.Ref()), zap.Int("features", count))

	effective, distance, err := r.BufferClipArea(ctx, clipLayer, params.BufferDistance, summary.RunID)
	if err != nil {
		return err
	}
	summary.Buffer = distance
	summary.ClipGeometry = effective.Ref()

	container, err := r.SetupOutput(ctx, params.OutputWorkspace, gdbName)
	if err != nil {
		return err
	}
	summary.Container = container

	results, err := r.BatchClip(ctx, params.InputWorkspace, params.EffectiveWildcard(), params.FeatureType, effective, container)
	summary.Clipped = results
	return err
}

// ResolveClipArea builds the filtered clip view and makes sure it selects
// at least one feature. A zero count is a validation failure: the three
// "no selected features" messages are emitted and no output is created.
func (r *Runner) ResolveClipArea(ctx context.Context, source, query string) (engine.Layer, int, error) {
	layer, err := r.engine.MakeFeatureLayer(ctx, source, query, ClipLayerName)
	if err != nil {
		return engine.Layer{}, 0, model.NewEngineError(model.StageResolveClip, source, err)
	}

	count, err := r.engine.GetCount(ctx, layer)
	if err != nil {
		return engine.Layer{}, 0, model.NewEngineError(model.StageResolveClip, source, err)
	}

	if count == 0 {
		r.log.Error(MsgInvalidSQL)
		r.log.Error(MsgCouldNotClip)
		r.log.Error(MsgRunFailed)
		return engine.Layer{}, 0, model.NewValidationError(model.StageResolveClip, model.ErrNoSelectedFeatures)
	}
	return layer, count, nil
}

// BufferClipArea applies the optional buffer. A zero distance returns the
// input layer unchanged. Malformed distances are rejected in strict mode.
// Otherwise their digits are used with a warning, and text without
// digits disables the buffer.
func (r *Runner) BufferClipArea(ctx context.Context, layer engine.Layer, rawDistance, runID string) (engine.Layer, model.Distance, error) {
	distance, err := ParseDistance(rawDistance)
	if err != nil {
		if r.opts.StrictDistance {
			return engine.Layer{}, model.Distance{}, model.NewValidationError(model.StageBuffer, err)
		}
		recovered, ok := LenientDistance(rawDistance)
		if ok {
			r.log.Warning("Reading buffer distance %q as %s: %v", rawDistance, recovered, err)
		} else {
			r.log.Warning("Ignoring buffer distance %q: %v", rawDistance, err)
		}
		distance = recovered
	}

	if distance.IsZero() {
		return layer, distance, nil
	}

	out := "out_buff_" + shortID(runID)
	buffered, err := r.engine.Buffer(ctx, layer, distance, out)
	if err != nil {
		return engine.Layer{}, model.Distance{}, model.NewEngineError(model.StageBuffer, layer.Ref(), err)
	}
	r.log.Info("Buffer Distance: %s", distance)
	return buffered, distance, nil
}

// SetupOutput creates the output geodatabase. name must already be
// normalized.
func (r *Runner) SetupOutput(ctx context.Context, workspace, name string) (model.OutputContainer, error) {
	container, err := r.engine.CreateFileGDB(ctx, workspace, name)
	if err != nil {
		if errors.Is(err, model.ErrContainerExists) {
			return model.OutputContainer{}, model.NewValidationError(model.StageSetupOutput, err)
		}
		return model.OutputContainer{}, model.NewEngineError(model.StageSetupOutput, name, err)
	}
	r.log.Info("Created: %s", container.Name)
	return container, nil
}

// BatchClip enumerates the matching feature classes once and clips each
// into the container, in enumeration order. The first failure aborts the
// loop; the results clipped so far are returned with the error.
func (r *Runner) BatchClip(ctx context.Context, workspace, wildcard string, featureType model.FeatureType, clipLayer engine.Layer, container model.OutputContainer) ([]model.ClipResult, error) {
	classes, err := r.engine.ListFeatureClasses(ctx, workspace, wildcard, featureType)
	if err != nil {
		return nil, model.NewEngineError(model.StageEnumerate, workspace, err)
	}

	results := make([]model.ClipResult, 0, len(classes))
	for _, fc := range classes {
		if err := ctx.Err(); err != nil {
			return results, model.NewEngineError(model.StageClip, fc.Name, err)
		}

		dest := container.Destination(model.OutputName(fc.Name))
		if err := r.engine.Clip(ctx, fc, clipLayer, dest); err != nil {
			return results, model.NewEngineError(model.StageClip, fc.Name, err)
		}

		result := model.ClipResult{Source: fc.Name, Destination: dest}
		results = append(results, result)
		r.log.Info("Clipped: %s", fc.Name)
		if r.onClip != nil {
			r.onClip(result)
		}
	}

	r.log.Info(MsgCompleted)
	return results, nil
}

// handleFailure is the top-level error handler. It normalizes err into a
// *model.RunError, attaches the engine backlog and, for engine failures,
// emits the composite error report followed by the warning backlog.
func (r *Runner) handleFailure(logger *zap.Logger, err error) error {
	var runErr *model.RunError
	if !errors.As(err, &runErr) {
		runErr = &model.RunError{Kind: model.KindEngine, Cause: err}
	}
	runErr.Messages = r.log.Backlog()

	if runErr.Kind == model.KindValidation {
		logger.Debug("run rejected", zap.String("stage", string(runErr.Stage)), zap.Error(runErr.Cause))
		return runErr
	}

	warnings := r.log.Text(model.SeverityWarning)
	r.log.Error("%s", FormatReport(runErr, r.log.Text(model.SeverityError)))
	if warnings != "" {
		r.log.Info("%s", warnings)
	}
	return runErr
}

// shortID returns the first block of a UUID, enough to keep scratch
// dataset names unique per run.
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
