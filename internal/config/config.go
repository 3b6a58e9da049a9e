// Package config provides configuration loading for batch-clip.
//
// Settings come from built-in defaults, an optional YAML file and
// BATCHCLIP_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Runner names accepted by engine.runner.
const (
	RunnerLocal  = "local"
	RunnerDocker = "docker"
)

// Log formats accepted by log.format.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds the complete batch-clip configuration.
type Config struct {
	Engine EngineConfig `koanf:"engine"`
	Run    RunConfig    `koanf:"run"`
	Log    LogConfig    `koanf:"log"`
}

// EngineConfig selects how the GDAL utilities are invoked.
type EngineConfig struct {
	Runner     string `koanf:"runner"`      // local or docker
	Ogr2Ogr    string `koanf:"ogr2ogr"`     // ogr2ogr binary for the local runner
	OgrInfo    string `koanf:"ogrinfo"`     // ogrinfo binary for the local runner
	Image      string `koanf:"image"`       // GDAL image for the docker runner
	DockerHost string `koanf:"docker_host"` // overrides DOCKER_HOST
	ScratchDir string `koanf:"scratch_dir"` // buffered clip areas; empty means the OS temp dir
}

// RunConfig holds batch behavior switches.
type RunConfig struct {
	// Overwrite replaces an existing output geodatabase. When false an
	// existing geodatabase fails the run before anything is clipped.
	Overwrite bool `koanf:"overwrite"`

	// StrictDistance rejects buffer distances that cannot be parsed
	// instead of warning and clipping with the unbuffered area.
	StrictDistance bool `koanf:"strict_distance"`

	// Report writes a YAML run summary next to the output geodatabase.
	Report bool `koanf:"report"`
}

// LogConfig controls the diagnostic logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultYAML is loaded before the config file so that booleans which
// default to true can still be switched off.
const defaultYAML = `
engine:
  runner: local
  ogr2ogr: ogr2ogr
  ogrinfo: ogrinfo
  image: ghcr.io/osgeo/gdal:ubuntu-small-latest
run:
  overwrite: true
  strict_distance: false
  report: false
log:
  level: warn
  format: console
`

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Engine.Runner {
	case RunnerLocal:
		if c.Engine.Ogr2Ogr == "" || c.Engine.OgrInfo == "" {
			errs = append(errs, errors.New("engine.ogr2ogr and engine.ogrinfo are required for the local runner"))
		}
	case RunnerDocker:
		if c.Engine.Image == "" {
			errs = append(errs, errors.New("engine.image is required for the docker runner"))
		}
	default:
		errs = append(errs, fmt.Errorf("engine.runner must be %q or %q, got %q", RunnerLocal, RunnerDocker, c.Engine.Runner))
	}

	switch c.Log.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", LogFormatConsole, LogFormatJSON, c.Log.Format))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// applyDefaults fills settings that an explicit empty value would
// otherwise leave blank.
func applyDefaults(cfg *Config) {
	if cfg.Engine.Runner == "" {
		cfg.Engine.Runner = RunnerLocal
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatConsole
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}
	cfg.Engine.Runner = strings.ToLower(cfg.Engine.Runner)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
}
