package gdal

import (
	"path/filepath"
	"strings"
)

// containerExtensions are data sources that hold several layers and are
// addressed as "<container>/<layer>" (optionally with a feature dataset
// in between for file geodatabases).
var containerExtensions = []string{".gdb", ".gpkg", ".sqlite"}

// ParseSource splits a feature class reference into its data source and
// layer name.
//
//	/data/roads.shp                  → /data/roads.shp, roads
//	/data/base.gdb/counties          → /data/base.gdb, counties
//	/data/base.gdb/admin/counties    → /data/base.gdb, counties
//	/data/base.gpkg/zones            → /data/base.gpkg, zones
func ParseSource(ref string) (dataset, layer string) {
	clean := filepath.Clean(ref)
	parts := strings.Split(filepath.ToSlash(clean), "/")

	for i := len(parts) - 2; i >= 0; i-- {
		lower := strings.ToLower(parts[i])
		for _, ext := range containerExtensions {
			if strings.HasSuffix(lower, ext) {
				dataset = filepath.FromSlash(strings.Join(parts[:i+1], "/"))
				return dataset, parts[len(parts)-1]
			}
		}
	}

	base := filepath.Base(clean)
	return clean, strings.TrimSuffix(base, filepath.Ext(base))
}

// isContainer reports whether path names a multi-layer data source.
func isContainer(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range containerExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// hostDir returns the directory that must be visible for a command to
// read or write path. Container data sources are directories themselves
// (file geodatabases) or files, so the parent is used in both cases.
func hostDir(path string) string {
	return filepath.Dir(filepath.Clean(path))
}
