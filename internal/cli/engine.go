package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/config"
	"github.com/shinji-kodama/batch-clip/internal/docker"
	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/gdal"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// engineSettings builds the engine environment. workspace is the input
// workspace; relative clip sources and output paths resolve against it.
func engineSettings(cfg *config.Config, workspace string) (engine.Settings, error) {
	settings := engine.Settings{
		Overwrite:  cfg.Run.Overwrite,
		ScratchDir: cfg.Engine.ScratchDir,
	}
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("failed to resolve workspace %s: %w", workspace, err)
		}
		settings.Workspace = abs
	}
	return settings, nil
}

// newEngine builds the GDAL engine with the runner selected by
// engine.runner. The returned close function releases the Docker client
// when one was opened.
func newEngine(ctx context.Context, cfg *config.Config, workspace string, log *engine.MessageLog, logger *zap.Logger, runID string) (*gdal.Engine, func(), error) {
	settings, err := engineSettings(cfg, workspace)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitValidation, "invalid workspace", err)
	}

	var runner gdal.Runner
	closeFn := func() {}

	switch cfg.Engine.Runner {
	case config.RunnerDocker:
		c, err := docker.NewClient(cfg.Engine.DockerHost)
		if err != nil {
			return nil, nil, err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		logger.Debug("connected to Docker daemon", zap.String("image", cfg.Engine.Image))
		runner = docker.NewRunner(c.API(), cfg.Engine.Image, runID, logger)
		closeFn = func() { _ = c.Close() }
	default:
		runner = gdal.NewExecRunner(cfg.Engine.Ogr2Ogr, cfg.Engine.OgrInfo)
	}

	return gdal.New(runner, settings, log, logger), closeFn, nil
}
