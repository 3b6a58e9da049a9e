// Package docker runs the GDAL utilities inside a container for hosts
// that have Docker but no local GDAL installation.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Pulling the GDAL image on first use
//   - One short-lived helper container per GDAL command, with bind mounts
//     for every directory the command touches
//   - Labels on helper containers so leftovers from interrupted runs can
//     be listed and removed by the cleanup command
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
