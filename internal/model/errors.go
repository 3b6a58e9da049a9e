package model

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by validation RunErrors. Callers match them
// with errors.Is.
var (
	ErrNoSelectedFeatures = errors.New("no selected features")
	ErrInvalidDistance    = errors.New("invalid buffer distance")
	ErrInvalidGDBName     = errors.New("invalid geodatabase name")
	ErrContainerExists    = errors.New("output container already exists")
	ErrInvalidParams      = errors.New("invalid run parameters")
)

// ErrorKind separates expected, validated failures from engine failures.
type ErrorKind string

const (
	// KindValidation is a failure detected by the pipeline itself,
	// e.g. a predicate that selects nothing.
	KindValidation ErrorKind = "validation"

	// KindEngine is any failure reported by the spatial engine.
	KindEngine ErrorKind = "engine"
)

// Stage names the pipeline step a RunError originated in.
type Stage string

const (
	StageParams      Stage = "params"
	StageResolveClip Stage = "resolve-clip-area"
	StageBuffer      Stage = "buffer"
	StageSetupOutput Stage = "setup-output"
	StageEnumerate   Stage = "enumerate"
	StageClip        Stage = "clip"
)

// RunError is the structured result of a failed run.
type RunError struct {
	Kind  ErrorKind
	Stage Stage

	// Subject is the feature class or dataset being processed, if any.
	Subject string

	// Cause is the typed underlying error.
	Cause error

	// Messages is the engine message backlog captured at failure time.
	Messages []Message

	// Stack holds a goroutine stack when the failure was a recovered panic.
	Stack string
}

// Error satisfies the error interface.
func (e *RunError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s failure in %s (%s): %v", e.Kind, e.Stage, e.Subject, e.Cause)
	}
	return fmt.Sprintf("%s failure in %s: %v", e.Kind, e.Stage, e.Cause)
}

// Unwrap returns the cause for use with errors.Is/errors.As.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether err is a validation RunError.
func IsValidation(err error) bool {
	var runErr *RunError
	return errors.As(err, &runErr) && runErr.Kind == KindValidation
}

// NewValidationError creates a validation RunError.
func NewValidationError(stage Stage, cause error) *RunError {
	return &RunError{Kind: KindValidation, Stage: stage, Cause: cause}
}

// NewEngineError creates an engine RunError for the given subject.
func NewEngineError(stage Stage, subject string, cause error) *RunError {
	return &RunError{Kind: KindEngine, Stage: stage, Subject: subject, Cause: cause}
}

// ExitCode defines the CLI exit codes. Scripts can use them to tell a
// bad filter apart from an engine crash.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitValidation indicates a validation failure such as an SQL
	// predicate that selected no clip features.
	ExitValidation ExitCode = 2

	// ExitEngineError indicates the spatial engine failed.
	ExitEngineError ExitCode = 3

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while the docker runner is configured.
	ExitDockerNotRunning ExitCode = 4

	// ExitConfigError indicates the configuration could not be loaded.
	ExitConfigError ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
