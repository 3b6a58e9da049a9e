package gdal

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Tool names of the GDAL vector utilities the engine drives.
const (
	ToolOgrInfo = "ogrinfo"
	ToolOgr2Ogr = "ogr2ogr"
)

// Command is one invocation of a GDAL utility.
type Command struct {
	// Tool is ToolOgrInfo or ToolOgr2Ogr.
	Tool string

	// Args are the utility arguments, without the tool name.
	Args []string

	// Dirs lists the host directories the command reads or writes.
	// Runners that isolate the tool (containers) must make them visible.
	Dirs []string
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return c.Tool + " " + strings.Join(c.Args, " ")
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes GDAL commands. ExecRunner runs them on the host;
// docker.Runner runs them inside a GDAL container.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ToolError is returned when a GDAL utility exits unsuccessfully.
type ToolError struct {
	Command Command
	Stderr  string
	Err     error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command.Tool)
	if s := firstLine(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: %s", msg, s)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// ExecRunner runs GDAL utilities found on the host.
type ExecRunner struct {
	// Paths maps a tool name to its executable. Missing entries use the
	// tool name and rely on PATH lookup.
	Paths map[string]string
}

// NewExecRunner creates an ExecRunner with optional executable overrides.
func NewExecRunner(ogr2ogr, ogrinfo string) *ExecRunner {
	paths := make(map[string]string)
	if ogr2ogr != "" {
		paths[ToolOgr2Ogr] = ogr2ogr
	}
	if ogrinfo != "" {
		paths[ToolOgrInfo] = ogrinfo
	}
	return &ExecRunner{Paths: paths}
}

// Run executes cmd and captures stdout and stderr separately, so stderr
// can be turned into engine messages while stdout is parsed.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	bin := cmd.Tool
	if p, ok := r.Paths[cmd.Tool]; ok {
		bin = p
	}

	// #nosec G204 -- the tool is one of two fixed GDAL utilities.
	c := exec.CommandContext(ctx, bin, cmd.Args...)

	var stdout, stderr strings.Builder
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return res, &ToolError{Command: cmd, Stderr: res.Stderr, Err: err}
	}
	return res, nil
}
