// Package model defines the domain types and value objects for the
// batch-clip CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (RunParams, Distance, OutputContainer, FeatureClass, etc.)
// live only for the duration of a single run; the only thing that outlives
// the process is the output geodatabase written by the spatial engine.
//
// The package also defines exit codes (ExitCode), the CLI error type
// (CLIError) and the structured pipeline failure (RunError).
package model
