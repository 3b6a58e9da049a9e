package gdal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// OutputDriver is the OGR driver used for the output geodatabase.
const OutputDriver = "OpenFileGDB"

// scratchDriver is the OGR driver used for intermediate buffer output.
const scratchDriver = "GPKG"

// Engine implements engine.Engine on top of ogrinfo and ogr2ogr.
type Engine struct {
	runner   Runner
	settings engine.Settings
	log      *engine.MessageLog
	logger   *zap.Logger

	// layers caches ogrinfo summaries per dataset/layer for their
	// geometry column and coordinate system.
	layers map[string]layerSummary
}

// New creates a GDAL engine.
func New(runner Runner, settings engine.Settings, log *engine.MessageLog, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.ScratchDir == "" {
		settings.ScratchDir = os.TempDir()
	}
	return &Engine{
		runner:   runner,
		settings: settings,
		log:      log,
		logger:   logger,
		layers:   make(map[string]layerSummary),
	}
}

var _ engine.Engine = (*Engine)(nil)

// resolve makes path absolute against the configured workspace.
func (e *Engine) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if e.settings.Workspace != "" {
		return filepath.Join(e.settings.Workspace, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// run executes a command and forwards GDAL diagnostics to the message log.
func (e *Engine) run(ctx context.Context, cmd Command) (Result, error) {
	e.logger.Debug("running GDAL command", zap.String("command", cmd.String()))

	res, err := e.runner.Run(ctx, cmd)
	for _, m := range messagesFromStderr(res.Stderr) {
		e.log.Add(m.Severity, "%s", m.Text)
	}
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) && len(messagesFromStderr(toolErr.Stderr)) > 0 {
			return res, err
		}
		// No GDAL diagnostic was printed; record the failure itself so the
		// error report is never empty.
		e.log.Error("%v", err)
		return res, err
	}
	return res, nil
}

// MakeFeatureLayer creates a filtered view. GDAL has no persistent layer
// views, so the view is just the resolved source plus predicate; the
// source must exist.
func (e *Engine) MakeFeatureLayer(_ context.Context, source, where, name string) (engine.Layer, error) {
	dataset, layer := ParseSource(e.resolve(source))
	if _, err := os.Stat(dataset); err != nil {
		e.log.Error("ERROR: Dataset %s does not exist or is not supported", source)
		return engine.Layer{}, fmt.Errorf("failed to open clip source %s: %w", source, err)
	}
	return engine.Layer{Name: name, Dataset: dataset, Source: layer, Where: where}, nil
}

// summarize runs ogrinfo -so on a layer, optionally with a predicate.
func (e *Engine) summarize(ctx context.Context, dataset, layer, where string) (layerSummary, error) {
	args := []string{"-ro", "-so"}
	if where != "" {
		args = append(args, "-where", where)
	}
	args = append(args, dataset, layer)

	res, err := e.run(ctx, Command{Tool: ToolOgrInfo, Args: args, Dirs: []string{hostDir(dataset)}})
	if err != nil {
		return layerSummary{}, err
	}

	s, ok := parseLayerSummary(res.Stdout)
	if !ok {
		return layerSummary{}, fmt.Errorf("ogrinfo reported no feature count for %s:%s", dataset, layer)
	}
	e.layers[dataset+"|"+layer] = s
	return s, nil
}

// GetCount counts the features selected by the layer's predicate.
func (e *Engine) GetCount(ctx context.Context, layer engine.Layer) (int, error) {
	s, err := e.summarize(ctx, layer.Dataset, layer.Source, layer.Where)
	if err != nil {
		return 0, err
	}
	if s.Count < 0 {
		return 0, fmt.Errorf("feature count unavailable for %s", layer.Ref())
	}
	return s.Count, nil
}

// layerInfo returns the ogrinfo summary of a layer, querying ogrinfo when
// it has not been seen yet.
func (e *Engine) layerInfo(ctx context.Context, dataset, layer string) (layerSummary, error) {
	if s, ok := e.layers[dataset+"|"+layer]; ok {
		return s, nil
	}
	return e.summarize(ctx, dataset, layer, "")
}

// geometryColumnOf returns the geometry column for the SQLite dialect.
// Shapefiles report no column name; the dialect then exposes the geometry
// as "geometry".
func geometryColumnOf(s layerSummary) string {
	if s.GeometryColumn == "" {
		return "geometry"
	}
	return s.GeometryColumn
}

// bufferValue converts distance into the units of the layer's coordinate
// system. Unitless distances are already in data units. A linear distance
// on a geographic layer has no single conversion and is rejected.
func (e *Engine) bufferValue(distance model.Distance, crs layerCRS, ref string) (float64, error) {
	meters, linear := distance.Meters()
	switch {
	case distance.Unit == "" || distance.Unit == "Unknown":
		return distance.Value, nil
	case !linear:
		if crs.Kind != crsGeographic {
			e.log.Warning("Warning: unit %s has no fixed conversion, buffering by %g data units", distance.Unit, distance.Value)
		}
		return distance.Value, nil
	case crs.Kind == crsGeographic:
		e.log.Error("ERROR: %s uses a geographic coordinate system; buffer by DecimalDegrees or reproject the clip source", ref)
		return 0, fmt.Errorf("cannot buffer %s by %s: layer coordinates are in degrees", ref, distance)
	case crs.MetersPerUnit > 0:
		return meters / crs.MetersPerUnit, nil
	case crs.Kind == crsUnknown:
		e.log.Warning("Warning: %s has no coordinate system, assuming meters", ref)
		return meters, nil
	default:
		e.log.Warning("Warning: %s has no linear unit, assuming meters", ref)
		return meters, nil
	}
}

// Buffer writes the buffered geometries of layer to a scratch GeoPackage
// using the SQLite dialect's ST_Buffer, with the distance expressed in the
// layer's own units.
func (e *Engine) Buffer(ctx context.Context, layer engine.Layer, distance model.Distance, out string) (engine.Layer, error) {
	info, err := e.layerInfo(ctx, layer.Dataset, layer.Source)
	if err != nil {
		return engine.Layer{}, err
	}
	col := geometryColumnOf(info)

	value, err := e.bufferValue(distance, info.CRS, layer.Ref())
	if err != nil {
		return engine.Layer{}, err
	}
	e.logger.Debug("buffer distance converted",
		zap.String("distance", distance.String()),
		zap.String("layer_unit", info.CRS.UnitName),
		zap.Float64("value", value))

	if err := os.MkdirAll(e.settings.ScratchDir, 0755); err != nil {
		return engine.Layer{}, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	scratch := filepath.Join(e.settings.ScratchDir, out+".gpkg")
	if err := e.clearOutput(scratch); err != nil {
		return engine.Layer{}, err
	}

	sql := fmt.Sprintf(`SELECT ST_Buffer(%s, %s) AS geometry FROM %s`,
		quoteIdent(col), strconv.FormatFloat(value, 'f', -1, 64), quoteIdent(layer.Source))
	if layer.Where != "" {
		sql += " WHERE " + layer.Where
	}

	args := []string{"-f", scratchDriver, scratch, layer.Dataset, "-dialect", "SQLite", "-sql", sql, "-nln", out}
	cmd := Command{Tool: ToolOgr2Ogr, Args: args, Dirs: []string{hostDir(layer.Dataset), e.settings.ScratchDir}}
	if _, err := e.run(ctx, cmd); err != nil {
		return engine.Layer{}, err
	}

	return engine.Layer{Name: out, Dataset: scratch, Source: out}, nil
}

// clearOutput removes an existing output when overwriting is allowed.
func (e *Engine) clearOutput(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if !e.settings.Overwrite {
		return fmt.Errorf("%s: %w", path, model.ErrContainerExists)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove existing output %s: %w", path, err)
	}
	return nil
}

// seedLayer is the placeholder table written to create an empty
// geodatabase. It is dropped right after creation.
const seedLayer = "_batchclip_init"

// emptyCollection is an empty GeoJSON source for seeding a geodatabase.
const emptyCollection = `{"type":"FeatureCollection","features":[]}`

// CreateFileGDB creates an empty output geodatabase. The workspace must
// exist. An existing geodatabase is removed when overwriting is allowed
// and rejected otherwise. ogr2ogr cannot write a dataset without a layer,
// so a seed table is copied from an empty GeoJSON collection and dropped
// again.
func (e *Engine) CreateFileGDB(ctx context.Context, workspace, name string) (model.OutputContainer, error) {
	workspace = e.resolve(workspace)
	info, err := os.Stat(workspace)
	if err != nil {
		e.log.Error("ERROR: Output workspace %s does not exist", workspace)
		return model.OutputContainer{}, fmt.Errorf("failed to open output workspace: %w", err)
	}
	if !info.IsDir() {
		e.log.Error("ERROR: Output workspace %s is not a folder", workspace)
		return model.OutputContainer{}, fmt.Errorf("output workspace %s is not a directory", workspace)
	}

	container := model.OutputContainer{Workspace: workspace, Name: name}
	gdb := container.Path()
	if err := e.clearOutput(gdb); err != nil {
		return model.OutputContainer{}, err
	}

	if err := os.MkdirAll(e.settings.ScratchDir, 0755); err != nil {
		return model.OutputContainer{}, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	seed := filepath.Join(e.settings.ScratchDir, strings.TrimSuffix(name, filepath.Ext(name))+"_seed.geojson")
	if err := os.WriteFile(seed, []byte(emptyCollection), 0644); err != nil {
		return model.OutputContainer{}, fmt.Errorf("failed to write seed dataset: %w", err)
	}
	defer func() { _ = os.Remove(seed) }()

	create := Command{
		Tool: ToolOgr2Ogr,
		Args: []string{"-f", OutputDriver, gdb, seed, "-nln", seedLayer, "-nlt", "NONE"},
		Dirs: []string{workspace, e.settings.ScratchDir},
	}
	if _, err := e.run(ctx, create); err != nil {
		_ = os.RemoveAll(gdb)
		return model.OutputContainer{}, err
	}

	drop := Command{
		Tool: ToolOgrInfo,
		Args: []string{gdb, "-sql", "DROP TABLE " + seedLayer},
		Dirs: []string{workspace},
	}
	if _, err := e.run(ctx, drop); err != nil {
		e.logger.Warn("failed to drop seed table", zap.String("gdb", gdb), zap.Error(err))
	}
	return container, nil
}

// ListFeatureClasses lists the layers of workspace with ogrinfo -q and
// applies the wildcard and type filters. A folder workspace yields its
// shapefiles named "<layer>.shp"; a container workspace yields bare
// layer names.
func (e *Engine) ListFeatureClasses(ctx context.Context, workspace, wildcard string, featureType model.FeatureType) ([]model.FeatureClass, error) {
	workspace = e.resolve(workspace)
	res, err := e.run(ctx, Command{
		Tool: ToolOgrInfo,
		Args: []string{"-ro", "-q", workspace},
		Dirs: []string{hostDir(workspace), workspace},
	})
	if err != nil {
		return nil, err
	}

	folder := !isContainer(workspace)
	var classes []model.FeatureClass
	for _, l := range parseLayerList(res.Stdout) {
		ft, ok := featureTypeOf(l.Geometry)
		if !ok {
			continue
		}
		fc := model.FeatureClass{Name: l.Name, Dataset: workspace, Layer: l.Name, GeometryType: ft}
		if folder {
			fc.Name = l.Name + ".shp"
			fc.Dataset = filepath.Join(workspace, fc.Name)
		}
		classes = append(classes, fc)
	}

	filtered := engine.FilterFeatureClasses(classes, wildcard, featureType)
	e.logger.Debug("feature classes listed",
		zap.String("workspace", workspace),
		zap.Int("total", len(classes)),
		zap.Int("matching", len(filtered)))
	return filtered, nil
}

// Clip writes the part of in within clip to destination, a path of the
// form "<gdb>/<feature class>". Layers are added to an existing
// geodatabase; a missing one is created.
func (e *Engine) Clip(ctx context.Context, in model.FeatureClass, clip engine.Layer, destination string) error {
	gdb := filepath.Dir(destination)
	name := filepath.Base(destination)

	args := []string{"-f", OutputDriver}
	if _, err := os.Stat(gdb); err == nil {
		args = append(args, "-update")
	}
	if e.settings.Overwrite {
		args = append(args, "-overwrite")
	}
	args = append(args, gdb, in.Dataset, in.Layer, "-nln", name,
		"-clipsrc", clip.Dataset, "-clipsrclayer", clip.Source)
	if clip.Where != "" {
		args = append(args, "-clipsrcwhere", clip.Where)
	}

	dirs := []string{hostDir(gdb), hostDir(in.Dataset), hostDir(clip.Dataset)}
	_, err := e.run(ctx, Command{Tool: ToolOgr2Ogr, Args: args, Dirs: dirs})
	return err
}

// quoteIdent quotes an SQL identifier for the SQLite dialect.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
