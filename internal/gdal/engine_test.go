package gdal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// fakeRunner records commands and answers them from a response function.
type fakeRunner struct {
	commands []Command
	respond  func(cmd Command) (Result, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) (Result, error) {
	f.commands = append(f.commands, cmd)
	if f.respond == nil {
		return Result{}, nil
	}
	return f.respond(cmd)
}

func newTestEngine(t *testing.T, runner Runner, overwrite bool) (*Engine, *engine.MessageLog, string) {
	t.Helper()
	dir := t.TempDir()
	log := engine.NewMessageLog(nil)
	e := New(runner, engine.Settings{Workspace: dir, Overwrite: overwrite, ScratchDir: filepath.Join(dir, "scratch")}, log, nil)
	return e, log, dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

const summaryOutput = `INFO: Open of ` + "`bounds.shp'" + `
      using driver ` + "`ESRI Shapefile'" + ` successful.

Layer name: bounds
Geometry: Polygon
Feature Count: 12
Extent: (0.000000, 0.000000) - (10.000000, 10.000000)
`

func TestMakeFeatureLayer(t *testing.T) {
	e, log, dir := newTestEngine(t, &fakeRunner{}, true)
	touch(t, filepath.Join(dir, "bounds.shp"))

	layer, err := e.MakeFeatureLayer(context.Background(), "bounds.shp", "NAME = 'Kent'", "Clip_area_lyr")
	require.NoError(t, err)
	assert.Equal(t, engine.Layer{
		Name:    "Clip_area_lyr",
		Dataset: filepath.Join(dir, "bounds.shp"),
		Source:  "bounds",
		Where:   "NAME = 'Kent'",
	}, layer)

	_, err = e.MakeFeatureLayer(context.Background(), "missing.shp", "", "Clip_area_lyr")
	assert.Error(t, err)
	assert.Contains(t, log.Text(model.SeverityError), "missing.shp")
}

func TestGetCount(t *testing.T) {
	runner := &fakeRunner{respond: func(Command) (Result, error) {
		return Result{Stdout: summaryOutput}, nil
	}}
	e, _, dir := newTestEngine(t, runner, true)
	layer := engine.Layer{Dataset: filepath.Join(dir, "bounds.shp"), Source: "bounds", Where: "POP > 1000"}

	n, err := e.GetCount(context.Background(), layer)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	require.Len(t, runner.commands, 1)
	cmd := runner.commands[0]
	assert.Equal(t, ToolOgrInfo, cmd.Tool)
	assert.Equal(t, []string{"-ro", "-so", "-where", "POP > 1000", layer.Dataset, "bounds"}, cmd.Args)
	assert.Equal(t, []string{dir}, cmd.Dirs)
}

// TestGetCount_ToolFailure verifies that GDAL diagnostics land on the
// message log with the right severities.
func TestGetCount_ToolFailure(t *testing.T) {
	stderr := "Warning 1: field NAME truncated\nERROR 1: SQL Expression Parsing Error: syntax error\n"
	runner := &fakeRunner{respond: func(cmd Command) (Result, error) {
		return Result{Stderr: stderr}, &ToolError{Command: cmd, Stderr: stderr, Err: errors.New("exit status 1")}
	}}
	e, log, dir := newTestEngine(t, runner, true)

	_, err := e.GetCount(context.Background(), engine.Layer{Dataset: filepath.Join(dir, "b.shp"), Source: "b", Where: "NAME = "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ogrinfo failed: Warning 1: field NAME truncated")
	assert.Equal(t, "ERROR 1: SQL Expression Parsing Error: syntax error", log.Text(model.SeverityError))
	assert.Equal(t, "Warning 1: field NAME truncated", log.Text(model.SeverityWarning))
}

func TestGetCount_MissingBinary(t *testing.T) {
	runner := &fakeRunner{respond: func(cmd Command) (Result, error) {
		return Result{}, &ToolError{Command: cmd, Err: errors.New(`exec: "ogrinfo": executable file not found in $PATH`)}
	}}
	e, log, dir := newTestEngine(t, runner, true)

	_, err := e.GetCount(context.Background(), engine.Layer{Dataset: filepath.Join(dir, "b.shp"), Source: "b"})
	require.Error(t, err)
	assert.Contains(t, log.Text(model.SeverityError), "executable file not found")
}

// TestBuffer verifies the SQLite dialect statement, unit conversion and
// the scratch output location.
func TestBuffer(t *testing.T) {
	gdbSummary := "Layer name: counties\nGeometry: Multi Polygon\nFeature Count: 3\nGeometry Column = SHAPE\n"
	runner := &fakeRunner{respond: func(cmd Command) (Result, error) {
		if cmd.Tool == ToolOgrInfo {
			return Result{Stdout: gdbSummary}, nil
		}
		return Result{}, nil
	}}
	e, _, dir := newTestEngine(t, runner, true)
	gdb := filepath.Join(dir, "base.gdb")
	layer := engine.Layer{Name: "Clip_area_lyr", Dataset: gdb, Source: "counties", Where: "NAME = 'Kent'"}

	out, err := e.Buffer(context.Background(), layer, model.Distance{Value: 2, Unit: "Kilometers"}, "out_buff_1234")
	require.NoError(t, err)

	scratch := filepath.Join(dir, "scratch", "out_buff_1234.gpkg")
	assert.Equal(t, engine.Layer{Name: "out_buff_1234", Dataset: scratch, Source: "out_buff_1234"}, out)

	require.Len(t, runner.commands, 2)
	cmd := runner.commands[1]
	assert.Equal(t, ToolOgr2Ogr, cmd.Tool)
	assert.Equal(t, []string{
		"-f", "GPKG", scratch, gdb,
		"-dialect", "SQLite",
		"-sql", `SELECT ST_Buffer("SHAPE", 2000) AS geometry FROM "counties" WHERE NAME = 'Kent'`,
		"-nln", "out_buff_1234",
	}, cmd.Args)
	assert.Contains(t, cmd.Dirs, filepath.Join(dir, "scratch"))

	// The geometry column is cached after the first lookup.
	_, err = e.Buffer(context.Background(), layer, model.Distance{Value: 5}, "out_buff_5678")
	require.NoError(t, err)
	require.Len(t, runner.commands, 3)
	assert.Contains(t, runner.commands[2].Args, `SELECT ST_Buffer("SHAPE", 5) AS geometry FROM "counties" WHERE NAME = 'Kent'`)
}

func TestBuffer_ShapefileGeometryColumn(t *testing.T) {
	runner := &fakeRunner{respond: func(cmd Command) (Result, error) {
		if cmd.Tool == ToolOgrInfo {
			return Result{Stdout: summaryOutput}, nil
		}
		return Result{}, nil
	}}
	e, log, dir := newTestEngine(t, runner, true)
	layer := engine.Layer{Dataset: filepath.Join(dir, "bounds.shp"), Source: "bounds"}

	_, err := e.Buffer(context.Background(), layer, model.Distance{Value: 0.5, Unit: "DecimalDegrees"}, "buf")
	require.NoError(t, err)

	last := runner.commands[len(runner.commands)-1]
	assert.Contains(t, last.Args, `SELECT ST_Buffer("geometry", 0.5) AS geometry FROM "bounds"`)
	assert.Contains(t, log.Text(model.SeverityWarning), "DecimalDegrees")
}

// gdbRunner creates the ogr2ogr destination the way the OpenFileGDB
// driver does.
func gdbRunner() *fakeRunner {
	return &fakeRunner{respond: func(cmd Command) (Result, error) {
		if cmd.Tool == ToolOgr2Ogr {
			return Result{}, os.MkdirAll(cmd.Args[2], 0755)
		}
		return Result{}, nil
	}}
}

const statePlaneSummary = `Layer name: bounds
Geometry: Polygon
Feature Count: 4
Layer SRS WKT:
PROJCRS["NAD83 / New York Long Island (ftUS)",
    BASEGEOGCRS["NAD83",
        DATUM["North American Datum 1983",
            ELLIPSOID["GRS 1980",6378137,298.257222101,
                LENGTHUNIT["metre",1]]],
        PRIMEM["Greenwich",0,
            ANGLEUNIT["degree",0.0174532925199433]]],
    CONVERSION["SPCS83 New York Long Island zone (US Survey feet)",
        METHOD["Lambert Conic Conformal (2SP)",
            ID["EPSG",9802]],
        PARAMETER["False easting",984250,
            LENGTHUNIT["US survey foot",0.304800609601219]]],
    CS[Cartesian,2],
        AXIS["easting (X)",east,
            ORDER[1],
            LENGTHUNIT["US survey foot",0.304800609601219]],
        AXIS["northing (Y)",north,
            ORDER[2],
            LENGTHUNIT["US survey foot",0.304800609601219]],
    ID["EPSG",2263]]
Data axis to CRS axis mapping: 1,2
`

const geographicSummary = `Layer name: bounds
Geometry: Polygon
Feature Count: 4
Layer SRS WKT:
GEOGCRS["WGS 84",
    DATUM["World Geodetic System 1984",
        ELLIPSOID["WGS 84",6378137,298.257223563,
            LENGTHUNIT["metre",1]]],
    CS[ellipsoidal,2],
        AXIS["geodetic latitude (Lat)",north,
            ORDER[1],
            ANGLEUNIT["degree",0.0174532925199433]],
        AXIS["geodetic longitude (Lon)",east,
            ORDER[2],
            ANGLEUNIT["degree",0.0174532925199433]],
    ID["EPSG",4326]]
Data axis to CRS axis mapping: 2,1
`

func summaryRunner(summary string) *fakeRunner {
	return &fakeRunner{respond: func(cmd Command) (Result, error) {
		if cmd.Tool == ToolOgrInfo {
			return Result{Stdout: summary}, nil
		}
		return Result{}, nil
	}}
}

// TestBuffer_ConvertsToLayerUnits verifies that linear distances are
// expressed in the unit of the layer's coordinate system.
func TestBuffer_ConvertsToLayerUnits(t *testing.T) {
	runner := summaryRunner(statePlaneSummary)
	e, log, dir := newTestEngine(t, runner, true)
	layer := engine.Layer{Dataset: filepath.Join(dir, "bounds.shp"), Source: "bounds"}

	_, err := e.Buffer(context.Background(), layer, model.Distance{Value: 100, Unit: "Feet"}, "buf")
	require.NoError(t, err)
	sql := runner.commands[len(runner.commands)-1].Args[7]
	assert.True(t, strings.HasPrefix(sql, `SELECT ST_Buffer("geometry", 99.9998`), sql)

	_, err = e.Buffer(context.Background(), layer, model.Distance{Value: 1, Unit: "Kilometers"}, "buf")
	require.NoError(t, err)
	sql = runner.commands[len(runner.commands)-1].Args[7]
	assert.True(t, strings.HasPrefix(sql, `SELECT ST_Buffer("geometry", 3280.83`), sql)

	_, err = e.Buffer(context.Background(), layer, model.Distance{Value: 25}, "buf")
	require.NoError(t, err)
	assert.Equal(t, `SELECT ST_Buffer("geometry", 25) AS geometry FROM "bounds"`, runner.commands[len(runner.commands)-1].Args[7])
	assert.Empty(t, log.Messages(model.SeverityWarning))
}

func TestBuffer_GeographicLayer(t *testing.T) {
	runner := summaryRunner(geographicSummary)
	e, log, dir := newTestEngine(t, runner, true)
	layer := engine.Layer{Dataset: filepath.Join(dir, "bounds.shp"), Source: "bounds"}

	_, err := e.Buffer(context.Background(), layer, model.Distance{Value: 500, Unit: "Meters"}, "buf")
	require.Error(t, err)
	assert.Contains(t, log.Text(model.SeverityError), "geographic coordinate system")
	for _, cmd := range runner.commands {
		assert.Equal(t, ToolOgrInfo, cmd.Tool, "nothing is buffered")
	}

	_, err = e.Buffer(context.Background(), layer, model.Distance{Value: 0.01, Unit: "DecimalDegrees"}, "buf")
	require.NoError(t, err)
	assert.Equal(t, `SELECT ST_Buffer("geometry", 0.01) AS geometry FROM "bounds"`, runner.commands[len(runner.commands)-1].Args[7])
	assert.Empty(t, log.Messages(model.SeverityWarning))
}

func TestParseLayerCRS(t *testing.T) {
	crs := parseLayerCRS(statePlaneSummary)
	assert.Equal(t, crsProjected, crs.Kind)
	assert.Equal(t, "US survey foot", crs.UnitName)
	assert.InDelta(t, 0.304800609601219, crs.MetersPerUnit, 1e-15)

	assert.Equal(t, layerCRS{Kind: crsGeographic}, parseLayerCRS(geographicSummary))
	assert.Equal(t, layerCRS{}, parseLayerCRS(summaryOutput))

	wkt1 := "Layer SRS WKT:\n" +
		`PROJCS["NAD83 / UTM zone 18N",` + "\n" +
		`    GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101]],UNIT["degree",0.0174532925199433]],` + "\n" +
		`    PROJECTION["Transverse_Mercator"],` + "\n" +
		`    UNIT["metre",1,AUTHORITY["EPSG","9001"]]]` + "\n" +
		"Data axis to CRS axis mapping: 1,2\n"
	assert.Equal(t, layerCRS{Kind: crsProjected, UnitName: "metre", MetersPerUnit: 1}, parseLayerCRS(wkt1))
}

func TestCreateFileGDB(t *testing.T) {
	t.Run("fresh container", func(t *testing.T) {
		runner := gdbRunner()
		e, _, dir := newTestEngine(t, runner, false)
		c, err := e.CreateFileGDB(context.Background(), dir, "clip.gdb")
		require.NoError(t, err)
		assert.Equal(t, model.OutputContainer{Workspace: dir, Name: "clip.gdb"}, c)

		gdb := filepath.Join(dir, "clip.gdb")
		info, err := os.Stat(gdb)
		require.NoError(t, err, "the geodatabase exists before any clip")
		assert.True(t, info.IsDir())

		seed := filepath.Join(dir, "scratch", "clip_seed.geojson")
		require.Len(t, runner.commands, 2)
		assert.Equal(t, []string{"-f", "OpenFileGDB", gdb, seed, "-nln", "_batchclip_init", "-nlt", "NONE"}, runner.commands[0].Args)
		assert.Equal(t, []string{gdb, "-sql", "DROP TABLE _batchclip_init"}, runner.commands[1].Args)
		assert.Equal(t, ToolOgrInfo, runner.commands[1].Tool)

		_, statErr := os.Stat(seed)
		assert.True(t, os.IsNotExist(statErr), "the seed file is removed")
	})

	t.Run("existing container without overwrite", func(t *testing.T) {
		runner := gdbRunner()
		e, _, dir := newTestEngine(t, runner, false)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "clip.gdb"), 0755))
		_, err := e.CreateFileGDB(context.Background(), dir, "clip.gdb")
		assert.ErrorIs(t, err, model.ErrContainerExists)
		assert.Empty(t, runner.commands)
	})

	t.Run("existing container with overwrite", func(t *testing.T) {
		e, _, dir := newTestEngine(t, gdbRunner(), true)
		old := filepath.Join(dir, "clip.gdb", "a00000001.gdbtable")
		touch(t, old)
		_, err := e.CreateFileGDB(context.Background(), dir, "clip.gdb")
		require.NoError(t, err)

		_, statErr := os.Stat(old)
		assert.True(t, os.IsNotExist(statErr), "old contents are removed")
		_, statErr = os.Stat(filepath.Join(dir, "clip.gdb"))
		assert.NoError(t, statErr)
	})

	t.Run("creation failure", func(t *testing.T) {
		runner := &fakeRunner{respond: func(cmd Command) (Result, error) {
			stderr := "ERROR 1: Permission denied\n"
			return Result{Stderr: stderr}, &ToolError{Command: cmd, Stderr: stderr, Err: errors.New("exit status 1")}
		}}
		e, log, dir := newTestEngine(t, runner, true)
		_, err := e.CreateFileGDB(context.Background(), dir, "clip.gdb")
		require.Error(t, err)
		assert.Equal(t, "ERROR 1: Permission denied", log.Text(model.SeverityError))
		_, statErr := os.Stat(filepath.Join(dir, "clip.gdb"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("missing workspace", func(t *testing.T) {
		e, log, dir := newTestEngine(t, &fakeRunner{}, true)
		_, err := e.CreateFileGDB(context.Background(), filepath.Join(dir, "nope"), "clip.gdb")
		assert.Error(t, err)
		assert.Contains(t, log.Text(model.SeverityError), "does not exist")
	})
}

const listOutput = `1: roads (Line String)
2: parcels (Multi Polygon)
3: wells (3D Point)
4: owners (None)
5: road_signs (Point)
`

func TestListFeatureClasses_Folder(t *testing.T) {
	runner := &fakeRunner{respond: func(Command) (Result, error) {
		return Result{Stdout: listOutput}, nil
	}}
	e, _, dir := newTestEngine(t, runner, true)
	ws := filepath.Join(dir, "layers")

	classes, err := e.ListFeatureClasses(context.Background(), ws, "*", model.FeatureTypeAll)
	require.NoError(t, err)

	var names []string
	for _, c := range classes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"roads.shp", "parcels.shp", "wells.shp", "road_signs.shp"}, names)
	assert.Equal(t, model.FeatureClass{
		Name: "roads.shp", Dataset: filepath.Join(ws, "roads.shp"), Layer: "roads", GeometryType: model.FeatureTypePolyline,
	}, classes[0])

	classes, err = e.ListFeatureClasses(context.Background(), ws, "road*", model.FeatureTypePoint)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "road_signs.shp", classes[0].Name)
}

func TestListFeatureClasses_Geodatabase(t *testing.T) {
	runner := &fakeRunner{respond: func(Command) (Result, error) {
		return Result{Stdout: listOutput}, nil
	}}
	e, _, dir := newTestEngine(t, runner, true)
	gdb := filepath.Join(dir, "base.gdb")

	classes, err := e.ListFeatureClasses(context.Background(), gdb, "", model.FeatureTypePolygon)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, model.FeatureClass{Name: "parcels", Dataset: gdb, Layer: "parcels", GeometryType: model.FeatureTypePolygon}, classes[0])
	assert.Equal(t, []string{"-ro", "-q", gdb}, runner.commands[0].Args)
}

// TestClip verifies that the first clip creates the geodatabase and later
// clips update it.
func TestClip(t *testing.T) {
	runner := &fakeRunner{}
	e, _, dir := newTestEngine(t, runner, true)
	gdb := filepath.Join(dir, "out", "clip.gdb")
	require.NoError(t, os.MkdirAll(filepath.Dir(gdb), 0755))

	in := model.FeatureClass{Name: "roads.shp", Dataset: filepath.Join(dir, "in", "roads.shp"), Layer: "roads"}
	clipLayer := engine.Layer{Dataset: filepath.Join(dir, "bounds.shp"), Source: "bounds", Where: "NAME = 'Kent'"}

	require.NoError(t, e.Clip(context.Background(), in, clipLayer, filepath.Join(gdb, "roads")))
	assert.Equal(t, []string{
		"-f", "OpenFileGDB", "-overwrite", gdb, in.Dataset, "roads", "-nln", "roads",
		"-clipsrc", clipLayer.Dataset, "-clipsrclayer", "bounds", "-clipsrcwhere", "NAME = 'Kent'",
	}, runner.commands[0].Args)

	require.NoError(t, os.Mkdir(gdb, 0755))
	buffered := engine.Layer{Dataset: filepath.Join(dir, "scratch", "buf.gpkg"), Source: "buf"}
	require.NoError(t, e.Clip(context.Background(), in, buffered, filepath.Join(gdb, "roads")))
	args := strings.Join(runner.commands[1].Args, " ")
	assert.Contains(t, args, "-update -overwrite")
	assert.NotContains(t, args, "-clipsrcwhere")
	assert.ElementsMatch(t, []string{filepath.Join(dir, "out"), filepath.Join(dir, "in"), filepath.Join(dir, "scratch")}, runner.commands[1].Dirs)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		ref     string
		dataset string
		layer   string
	}{
		{"/data/roads.shp", "/data/roads.shp", "roads"},
		{"/data/base.gdb/counties", "/data/base.gdb", "counties"},
		{"/data/base.gdb/admin/counties", "/data/base.gdb", "counties"},
		{"/data/base.gpkg/zones", "/data/base.gpkg", "zones"},
		{"relative/base.GDB/x", "relative/base.GDB", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			dataset, layer := ParseSource(filepath.FromSlash(tt.ref))
			assert.Equal(t, filepath.FromSlash(tt.dataset), dataset)
			assert.Equal(t, tt.layer, layer)
		})
	}
}

func TestParseLayerList(t *testing.T) {
	layers := parseLayerList("INFO: Open of `x' using driver `OpenFileGDB' successful.\n1: a (Point, Polygon)\n2: b\n")
	require.Len(t, layers, 2)
	assert.Equal(t, listedLayer{Name: "a", Geometry: "Point"}, layers[0])
	assert.Equal(t, listedLayer{Name: "b", Geometry: ""}, layers[1])

	ft, ok := featureTypeOf("")
	assert.True(t, ok)
	assert.Equal(t, model.FeatureTypeAll, ft)
	_, ok = featureTypeOf("None")
	assert.False(t, ok)
	ft, _ = featureTypeOf("3D Measured Multi Line String")
	assert.Equal(t, model.FeatureTypePolyline, ft)
}

func TestToolError(t *testing.T) {
	err := &ToolError{
		Command: Command{Tool: ToolOgr2Ogr},
		Stderr:  "ERROR 1: Unable to open datasource\nmore\n",
		Err:     errors.New("exit status 1"),
	}
	assert.Equal(t, "ogr2ogr failed: ERROR 1: Unable to open datasource: exit status 1", err.Error())
	assert.Equal(t, "ogr2ogr -f GPKG", Command{Tool: ToolOgr2Ogr, Args: []string{"-f", "GPKG"}}.String())
}
