package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/batch-clip/internal/docker"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// fakeDockerAPI implements the container listing and removal calls used by
// cleanup. The embedded interface is nil, so any other call panics.
type fakeDockerAPI struct {
	docker.API
	containers []container.Summary
	removed    []string
	removeErr  map[string]error
}

func (f *fakeDockerAPI) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	return f.containers, nil
}

func (f *fakeDockerAPI) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	if err := f.removeErr[id]; err != nil {
		return err
	}
	f.removed = append(f.removed, id)
	return nil
}

func newFakeDockerAPI() *fakeDockerAPI {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeDockerAPI{
		containers: []container.Summary{
			{ID: "aaaaaaaaaaaaaaaaaaaa", State: "exited", Labels: docker.BuildLabels("run-1", "ogr2ogr", created)},
			{ID: "bbbbbbbbbbbbbbbbbbbb", State: "running", Labels: docker.BuildLabels("run-1", "ogrinfo", created)},
			{ID: "cccccccccccccccccccc", State: "created", Labels: docker.BuildLabels("run-2", "ogr2ogr", created)},
		},
		removeErr: map[string]error{},
	}
}

func TestCleanupHelpers_SkipsRunning(t *testing.T) {
	setJSONOutput(t, false)
	api := newFakeDockerAPI()

	var out bytes.Buffer
	require.NoError(t, cleanupHelpers(context.Background(), &out, api, &cleanupFlags{}))

	assert.Equal(t, []string{"aaaaaaaaaaaaaaaaaaaa", "cccccccccccccccccccc"}, api.removed)
	assert.Contains(t, out.String(), "Removed: aaaaaaaaaaaa (ogr2ogr, run run-1)")
	assert.Contains(t, out.String(), "Skipped running: bbbbbbbbbbbb (ogrinfo, run run-1)")
}

func TestCleanupHelpers_ForceDryRunJSON(t *testing.T) {
	setJSONOutput(t, true)
	api := newFakeDockerAPI()

	var out bytes.Buffer
	require.NoError(t, cleanupHelpers(context.Background(), &out, api, &cleanupFlags{force: true, dryRun: true}))
	assert.Empty(t, api.removed, "dry run removes nothing")

	var result cleanupResultJSON
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.DryRun)
	assert.Len(t, result.Removed, 3)
	assert.Empty(t, result.Skipped)
}

func TestCleanupHelpers_RemoveFailure(t *testing.T) {
	setJSONOutput(t, false)
	api := newFakeDockerAPI()
	api.removeErr["aaaaaaaaaaaaaaaaaaaa"] = errors.New("device busy")

	var out bytes.Buffer
	err := cleanupHelpers(context.Background(), &out, api, &cleanupFlags{})
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, ExitCodeFor(err))
	assert.Equal(t, []string{"cccccccccccccccccccc"}, api.removed, "cleanup continues after a failure")
	assert.Contains(t, out.String(), "WARNING: failed to remove container aaaaaaaaaaaa")
}

func TestCleanupHelpers_NoneFound(t *testing.T) {
	setJSONOutput(t, false)
	api := &fakeDockerAPI{}

	var out bytes.Buffer
	require.NoError(t, cleanupHelpers(context.Background(), &out, api, &cleanupFlags{}))
	assert.Equal(t, "No helper containers found.\n", out.String())
}
