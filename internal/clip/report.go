package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

// FormatReport renders the composite error report for an engine failure:
// the engine's error messages followed by the run error details.
//
//	ENGINE ERRORS:
//	<engine error messages>
//
//	RUN ERRORS:
//	Stage: clip (roads.shp)
//	Error Info:
//	     *exec.ExitError: exit status 1
func FormatReport(runErr *model.RunError, engineErrors string) string {
	var b strings.Builder

	b.WriteString("ENGINE ERRORS:\n")
	b.WriteString(engineErrors)
	b.WriteString("\n\nRUN ERRORS:\n")

	b.WriteString("Stage: ")
	if runErr.Stage != "" {
		b.WriteString(string(runErr.Stage))
	} else {
		b.WriteString("unknown")
	}
	if runErr.Subject != "" {
		fmt.Fprintf(&b, " (%s)", runErr.Subject)
	}
	b.WriteString("\nError Info:\n")
	fmt.Fprintf(&b, "     %s: %v\n", causeType(runErr.Cause), runErr.Cause)

	if runErr.Stack != "" {
		b.WriteString("Traceback Info:\n")
		b.WriteString(runErr.Stack)
		if !strings.HasSuffix(runErr.Stack, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// causeType names the innermost error type of the cause chain.
func causeType(err error) string {
	if err == nil {
		return "<nil>"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

// ReportPath returns the path of the YAML run report that accompanies a
// container: "<workspace>/<gdb stem>.batchclip.yaml".
func ReportPath(c model.OutputContainer) string {
	stem := strings.TrimSuffix(c.Name, GDBExtension)
	return filepath.Join(c.Workspace, stem+".batchclip.yaml")
}

// WriteSummary writes the run summary as YAML next to the container.
func WriteSummary(summary *model.RunSummary) (string, error) {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run summary: %w", err)
	}

	path := ReportPath(summary.Container)
	// 0644: reports are meant to be shared alongside the geodatabase.
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run report %s: %w", path, err)
	}
	return path, nil
}

// ReadSummary loads a YAML run report written by WriteSummary.
func ReadSummary(path string) (*model.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run report %s: %w", path, err)
	}
	var summary model.RunSummary
	if err := yaml.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse run report %s: %w", path, err)
	}
	return &summary, nil
}
