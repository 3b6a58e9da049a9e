// Package engine defines the contract between the batch clip pipeline and
// the spatial engine that does the actual geometry work.
//
// The pipeline never touches geometry itself. It asks an Engine to build a
// filtered layer view, count it, buffer it, create the output geodatabase,
// enumerate feature classes and clip them. Everything the engine reports
// goes through a MessageLog, which plays the role of the geoprocessing
// message channel (info, warning and error severities).
package engine

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

// Layer is a named, possibly filtered, view over a feature source.
type Layer struct {
	// Name is the view name, e.g. "Clip_area_lyr".
	Name string

	// Dataset is the data source path the view reads from.
	Dataset string

	// Source is the layer inside Dataset.
	Source string

	// Where is the attribute predicate applied to Source. Empty selects all.
	Where string
}

// Ref returns a compact human-readable reference for logs and reports.
func (l Layer) Ref() string {
	ref := l.Dataset
	if l.Source != "" && !strings.EqualFold(l.Source, strings.TrimSuffix(filepath.Base(l.Dataset), filepath.Ext(l.Dataset))) {
		ref += ":" + l.Source
	}
	if l.Where != "" {
		ref += " [" + l.Where + "]"
	}
	return ref
}

// Settings replaces the process-wide geoprocessing environment. It is
// handed to an Engine once at construction.
type Settings struct {
	// Workspace is the default workspace used when a path is relative.
	Workspace string

	// Overwrite allows existing outputs (geodatabases, feature classes,
	// scratch datasets) to be replaced.
	Overwrite bool

	// ScratchDir receives intermediate datasets such as buffer output.
	ScratchDir string
}

// Engine is the spatial engine collaborator. All methods block until the
// underlying tool has finished.
type Engine interface {
	// MakeFeatureLayer creates a view named name over source, filtered by where.
	MakeFeatureLayer(ctx context.Context, source, where, name string) (Layer, error)

	// GetCount returns the number of features selected by the layer.
	GetCount(ctx context.Context, layer Layer) (int, error)

	// Buffer expands the layer's geometries by distance and returns a
	// layer over the buffered output named out.
	Buffer(ctx context.Context, layer Layer, distance model.Distance, out string) (Layer, error)

	// CreateFileGDB creates a file geodatabase named name in workspace.
	CreateFileGDB(ctx context.Context, workspace, name string) (model.OutputContainer, error)

	// ListFeatureClasses enumerates the feature classes of workspace whose
	// name matches wildcard and whose geometry matches featureType.
	ListFeatureClasses(ctx context.Context, workspace, wildcard string, featureType model.FeatureType) ([]model.FeatureClass, error)

	// Clip writes the part of in that lies within clip to destination.
	Clip(ctx context.Context, in model.FeatureClass, clip Layer, destination string) error
}

// MatchWildcard reports whether name matches a geoprocessing wildcard.
// Matching is case-insensitive; "*" and the empty pattern match everything.
func MatchWildcard(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}

// MatchFeatureType reports whether a feature class of geometry type got
// satisfies the filter want.
func MatchFeatureType(want, got model.FeatureType) bool {
	return want == model.FeatureTypeAll || want == got
}

// FilterFeatureClasses applies wildcard and type filters, keeping order.
func FilterFeatureClasses(classes []model.FeatureClass, wildcard string, featureType model.FeatureType) []model.FeatureClass {
	out := make([]model.FeatureClass, 0, len(classes))
	for _, fc := range classes {
		if MatchWildcard(wildcard, fc.Name) && MatchFeatureType(featureType, fc.GeometryType) {
			out = append(out, fc)
		}
	}
	return out
}
