package gdal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

var (
	// featureCountRegex matches the "Feature Count: N" line of ogrinfo -so.
	featureCountRegex = regexp.MustCompile(`(?m)^Feature Count:\s*(-?\d+)\s*$`)

	// geometryColumnRegex matches "Geometry Column = SHAPE" (or
	// "Geometry Column 1 = ..." for multi-geometry layers).
	geometryColumnRegex = regexp.MustCompile(`(?m)^Geometry Column(?: 1)?\s*=\s*(\S+)\s*$`)

	// layerLineRegex matches the layer list of ogrinfo -q:
	//
	//	1: roads (Line String)
	//	2: admin_points (3D Point)
	//	3: lookup (None)
	layerLineRegex = regexp.MustCompile(`^\s*\d+:\s+(.+?)(?:\s+\(([^()]*)\))?\s*$`)

	// crsKindRegex finds the first horizontal CRS keyword of a WKT1 or
	// WKT2 definition. BASEGEOGCRS inside a PROJCRS does not match.
	crsKindRegex = regexp.MustCompile(`\b(PROJCRS|PROJCS|PROJECTEDCRS|GEOGCRS|GEOGCS|GEOGRAPHICCRS)\[`)

	// linearUnitRegex matches LENGTHUNIT["US survey foot",0.3048006] (WKT2)
	// and UNIT["metre",1] (WKT1), but not ANGLEUNIT.
	linearUnitRegex = regexp.MustCompile(`\b(?:LENGTH)?UNIT\["([^"]*)",\s*([0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)`)
)

// crsKind classifies the coordinate system of a layer.
type crsKind int

const (
	crsUnknown crsKind = iota
	crsProjected
	crsGeographic
)

// layerCRS is what the buffer stage needs to know about a layer's
// coordinate system.
type layerCRS struct {
	Kind          crsKind
	UnitName      string
	MetersPerUnit float64
}

// layerSummary is the information the engine needs from ogrinfo -so.
type layerSummary struct {
	Count          int
	GeometryColumn string
	CRS            layerCRS
}

// parseLayerSummary extracts the feature count and geometry column name.
// ok is false when no count line is present.
func parseLayerSummary(out string) (layerSummary, bool) {
	m := featureCountRegex.FindStringSubmatch(out)
	if m == nil {
		return layerSummary{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return layerSummary{}, false
	}

	s := layerSummary{Count: n}
	if g := geometryColumnRegex.FindStringSubmatch(out); g != nil {
		s.GeometryColumn = g[1]
	}
	s.CRS = parseLayerCRS(out)
	return s, true
}

// parseLayerCRS reads the "Layer SRS WKT:" block of ogrinfo -so. The
// block runs until the next line that starts in the first column. For a
// projected CRS the axis unit is the last linear unit of the definition;
// earlier ones belong to the ellipsoid and projection parameters.
func parseLayerCRS(out string) layerCRS {
	_, rest, found := strings.Cut(out, "Layer SRS WKT:\n")
	if !found {
		return layerCRS{}
	}

	var wkt strings.Builder
	for i, line := range strings.Split(rest, "\n") {
		if i > 0 && (line == "" || (line[0] != ' ' && line[0] != '\t')) {
			break
		}
		wkt.WriteString(line)
		wkt.WriteByte('\n')
	}

	m := crsKindRegex.FindStringSubmatch(wkt.String())
	if m == nil {
		return layerCRS{}
	}
	switch m[1] {
	case "GEOGCRS", "GEOGCS", "GEOGRAPHICCRS":
		return layerCRS{Kind: crsGeographic}
	}

	crs := layerCRS{Kind: crsProjected}
	units := linearUnitRegex.FindAllStringSubmatch(wkt.String(), -1)
	if len(units) > 0 {
		last := units[len(units)-1]
		if f, err := strconv.ParseFloat(last[2], 64); err == nil && f > 0 {
			crs.UnitName = last[1]
			crs.MetersPerUnit = f
		}
	}
	return crs
}

// listedLayer is one entry of ogrinfo -q output.
type listedLayer struct {
	Name     string
	Geometry string
}

// parseLayerList parses the numbered layer list of ogrinfo -q.
func parseLayerList(out string) []listedLayer {
	var layers []listedLayer
	for _, line := range strings.Split(out, "\n") {
		m := layerLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		geom := m[2]
		// Multi-geometry layers list every field: "(Point, Polygon)".
		if first, _, found := strings.Cut(geom, ","); found {
			geom = first
		}
		layers = append(layers, listedLayer{Name: m[1], Geometry: strings.TrimSpace(geom)})
	}
	return layers
}

// featureTypeOf maps an OGR geometry type name to a FeatureType. ok is
// false for layers without geometry (tables), which are not feature classes.
func featureTypeOf(ogrType string) (model.FeatureType, bool) {
	t := strings.ToLower(ogrType)
	for _, prefix := range []string{"3d ", "measured ", "3d measured "} {
		t = strings.TrimPrefix(t, prefix)
	}

	switch t {
	case "none":
		return "", false
	case "point":
		return model.FeatureTypePoint, true
	case "multi point":
		return model.FeatureTypeMultipoint, true
	case "line string", "multi line string", "circular string", "compound curve", "multi curve":
		return model.FeatureTypePolyline, true
	case "polygon", "multi polygon", "curve polygon", "multi surface":
		return model.FeatureTypePolygon, true
	case "tin", "polyhedral surface", "triangle":
		return model.FeatureTypeMultipatch, true
	default:
		// Unknown or unlisted geometry still holds features.
		return model.FeatureTypeAll, true
	}
}

// messagesFromStderr classifies GDAL diagnostic lines into severities.
// GDAL prefixes errors with "ERROR <n>:" and warnings with "Warning <n>:".
func messagesFromStderr(stderr string) []model.Message {
	var out []model.Message
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "ERROR"), strings.HasPrefix(line, "FAILURE"):
			out = append(out, model.Message{Severity: model.SeverityError, Text: line})
		case strings.HasPrefix(line, "Warning"):
			out = append(out, model.Message{Severity: model.SeverityWarning, Text: line})
		}
	}
	return out
}
