package model

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RunParams is the flat parameter set of a single batch clip run.
// The field order mirrors the positional parameters of the run command:
//
//	0 ClipSource, 1 Query, 2 BufferDistance, 3 OutputWorkspace,
//	4 GDBName, 5 InputWorkspace, 6 Wildcard, 7 FeatureType
//
// A RunParams value is never modified once the run has started.
type RunParams struct {
	// ClipSource references the boundary feature class or shapefile.
	ClipSource string `json:"clipSource" yaml:"clipSource"`

	// Query is an optional SQL predicate applied to ClipSource.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	// BufferDistance is the free-text buffer distance, e.g. "100 Meters".
	BufferDistance string `json:"bufferDistance,omitempty" yaml:"bufferDistance,omitempty"`

	// OutputWorkspace is the folder that will receive the new geodatabase.
	OutputWorkspace string `json:"outputWorkspace" yaml:"outputWorkspace"`

	// GDBName is the desired geodatabase name before normalization.
	GDBName string `json:"gdbName" yaml:"gdbName"`

	// InputWorkspace holds the feature classes to clip.
	InputWorkspace string `json:"inputWorkspace" yaml:"inputWorkspace"`

	// Wildcard filters feature class names ("*" or empty matches all).
	Wildcard string `json:"wildcard,omitempty" yaml:"wildcard,omitempty"`

	// FeatureType filters feature classes by geometry type.
	FeatureType FeatureType `json:"featureType,omitempty" yaml:"featureType,omitempty"`
}

// ParamCount is the number of positional run parameters.
const ParamCount = 8

// RunParamsFromArgs maps positional arguments onto RunParams. At least six
// arguments are required; wildcard and feature type are optional.
func RunParamsFromArgs(args []string) (RunParams, error) {
	if len(args) < 6 || len(args) > ParamCount {
		return RunParams{}, fmt.Errorf("expected 6 to %d positional parameters, got %d", ParamCount, len(args))
	}

	get := func(i int) string {
		if i < len(args) {
			return strings.TrimSpace(args[i])
		}
		return ""
	}

	ft, err := ParseFeatureType(get(7))
	if err != nil {
		return RunParams{}, err
	}

	return RunParams{
		ClipSource:      get(0),
		Query:           get(1),
		BufferDistance:  get(2),
		OutputWorkspace: get(3),
		GDBName:         get(4),
		InputWorkspace:  get(5),
		Wildcard:        get(6),
		FeatureType:     ft,
	}, nil
}

// Validate checks that every required parameter is present.
func (p RunParams) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"clip source", p.ClipSource},
		{"output workspace", p.OutputWorkspace},
		{"output geodatabase name", p.GDBName},
		{"input workspace", p.InputWorkspace},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must not be empty", r.name)
		}
	}
	if !p.FeatureType.IsValid() {
		return fmt.Errorf("invalid feature type %q", p.FeatureType)
	}
	return nil
}

// EffectiveWildcard returns the wildcard with the empty value mapped to "*".
func (p RunParams) EffectiveWildcard() string {
	if p.Wildcard == "" {
		return "*"
	}
	return p.Wildcard
}

// FeatureType restricts feature class enumeration to one geometry type.
// The empty value means all types.
type FeatureType string

const (
	FeatureTypeAll        FeatureType = ""
	FeatureTypePoint      FeatureType = "Point"
	FeatureTypeMultipoint FeatureType = "Multipoint"
	FeatureTypePolyline   FeatureType = "Polyline"
	FeatureTypePolygon    FeatureType = "Polygon"
	FeatureTypeMultipatch FeatureType = "Multipatch"
	FeatureTypeAnnotation FeatureType = "Annotation"
	FeatureTypeDimension  FeatureType = "Dimension"
)

// String returns the display name; FeatureTypeAll renders as "All".
func (f FeatureType) String() string {
	if f == FeatureTypeAll {
		return "All"
	}
	return string(f)
}

// IsValid checks whether the FeatureType is one of the predefined values.
func (f FeatureType) IsValid() bool {
	switch f {
	case FeatureTypeAll, FeatureTypePoint, FeatureTypeMultipoint, FeatureTypePolyline,
		FeatureTypePolygon, FeatureTypeMultipatch, FeatureTypeAnnotation, FeatureTypeDimension:
		return true
	default:
		return false
	}
}

// ParseFeatureType converts a string to a FeatureType, case-insensitively.
// "" and "all" map to FeatureTypeAll, "line" is accepted for Polyline.
func ParseFeatureType(s string) (FeatureType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FeatureTypeAll, nil
	case "point":
		return FeatureTypePoint, nil
	case "multipoint":
		return FeatureTypeMultipoint, nil
	case "polyline", "line":
		return FeatureTypePolyline, nil
	case "polygon":
		return FeatureTypePolygon, nil
	case "multipatch":
		return FeatureTypeMultipatch, nil
	case "annotation":
		return FeatureTypeAnnotation, nil
	case "dimension":
		return FeatureTypeDimension, nil
	default:
		return "", fmt.Errorf("invalid feature type: %q (valid: all, point, multipoint, polyline, polygon, multipatch, annotation, dimension)", s)
	}
}

// Distance is a parsed buffer distance. The zero Distance means no buffering.
type Distance struct {
	// Value is the numeric distance. Negative values shrink polygons.
	Value float64 `json:"value" yaml:"value"`

	// Unit is the linear unit as written by the user ("Meters", "km").
	// Empty means the units of the clip geometry's coordinate system.
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// IsZero reports whether the distance disables buffering.
func (d Distance) IsZero() bool {
	return d.Value == 0
}

// String formats the distance the way the engine expects it, e.g. "100 Meters".
func (d Distance) String() string {
	v := strconv.FormatFloat(d.Value, 'f', -1, 64)
	if d.Unit == "" {
		return v
	}
	return v + " " + d.Unit
}

// Severity is the level of an engine message. The numeric order matches
// the classic geoprocessing convention: 0 info, 1 warning, 2 error.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Message is a single entry on the engine message channel.
type Message struct {
	Severity Severity  `json:"severity" yaml:"severity"`
	Text     string    `json:"text" yaml:"text"`
	Time     time.Time `json:"time" yaml:"time"`
}

// OutputContainer is the file geodatabase that receives the clipped
// feature classes. It is created at run start, populated incrementally by
// the clip loop and left on disk after the process exits.
type OutputContainer struct {
	// Workspace is the folder the geodatabase lives in.
	Workspace string `json:"workspace" yaml:"workspace"`

	// Name is the normalized geodatabase name, always ending in ".gdb".
	Name string `json:"name" yaml:"name"`
}

// Path returns the full filesystem path of the geodatabase.
func (c OutputContainer) Path() string {
	return filepath.Join(c.Workspace, c.Name)
}

// Destination returns the path of a feature class inside the container.
func (c OutputContainer) Destination(featureClass string) string {
	return filepath.Join(c.Workspace, c.Name, featureClass)
}

// FeatureClass is one entry of the enumerated input workspace.
type FeatureClass struct {
	// Name is the feature class name as reported by the engine,
	// e.g. "roads.shp" or "gis.owner.roads".
	Name string `json:"name" yaml:"name"`

	// Dataset is the data source the feature class is read from.
	Dataset string `json:"dataset" yaml:"dataset"`

	// Layer is the layer name inside Dataset.
	Layer string `json:"layer" yaml:"layer"`

	// GeometryType is the engine-reported geometry type.
	GeometryType FeatureType `json:"geometryType,omitempty" yaml:"geometryType,omitempty"`
}

// OutputName strips the file extension and any qualifying prefix from a
// feature class name: "roads.shp" → "roads", "gis.owner.roads" → "roads".
func OutputName(name string) string {
	base := filepath.Base(name)
	for _, ext := range knownExtensions {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	return base
}

var knownExtensions = []string{".shp", ".gpkg", ".geojson", ".json", ".gml", ".kml", ".tab", ".mif", ".sqlite", ".fgb"}

// ClipResult records one clipped feature class.
type ClipResult struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
}

// RunSummary describes a completed run. It is printed by the CLI and
// optionally written next to the output container as a YAML report.
type RunSummary struct {
	RunID        string          `json:"runId" yaml:"runId"`
	Params       RunParams       `json:"params" yaml:"params"`
	SelectedClip int             `json:"selectedClipFeatures" yaml:"selectedClipFeatures"`
	Buffer       Distance        `json:"buffer" yaml:"buffer"`
	ClipGeometry string          `json:"clipGeometry" yaml:"clipGeometry"`
	Container    OutputContainer `json:"container" yaml:"container"`
	Clipped      []ClipResult    `json:"clipped" yaml:"clipped"`
	StartedAt    time.Time       `json:"startedAt" yaml:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt" yaml:"finishedAt"`
}
