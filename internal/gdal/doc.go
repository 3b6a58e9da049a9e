// Package gdal implements the spatial engine on top of the GDAL/OGR
// vector utilities.
//
// The engine never links against GDAL. It shells out to ogrinfo (counts,
// layer listing, geometry column discovery) and ogr2ogr (buffering into a
// scratch GeoPackage, clipping into an OpenFileGDB geodatabase) through a
// Runner. ExecRunner runs the utilities installed on the host; the docker
// package provides a Runner that runs them in a GDAL container image.
//
// GDAL diagnostics on stderr ("ERROR 1: ...", "Warning 1: ...") are
// forwarded to the engine message log with the matching severity.
package gdal
