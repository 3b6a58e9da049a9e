// container.go runs GDAL commands in short-lived helper containers and
// manages the helpers left behind by interrupted runs.
//
// Every helper is labeled with "batchclip.managed-by" so it can be told
// apart from unrelated containers on the same host, and with the run id
// of the batch that started it.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/gdal"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// DefaultImage is the GDAL image used when none is configured.
const DefaultImage = "ghcr.io/osgeo/gdal:ubuntu-small-latest"

// removeTimeout bounds helper removal, which runs even after the command
// context was cancelled.
const removeTimeout = 30 * time.Second

// API is the subset of the Docker SDK client the runner needs.
// *client.Client satisfies it.
type API interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// Runner implements gdal.Runner by running each command in a fresh
// container of a GDAL image. Directories listed in Command.Dirs are bind
// mounted at the same path, so host paths in the arguments resolve
// unchanged inside the container.
type Runner struct {
	api    API
	image  string
	runID  string
	logger *zap.Logger
	now    func() time.Time

	pullOnce sync.Once
	pullErr  error
}

var _ gdal.Runner = (*Runner)(nil)

// NewRunner returns a Runner that labels its helpers with runID.
// An empty img selects DefaultImage.
func NewRunner(api API, img, runID string, logger *zap.Logger) *Runner {
	if img == "" {
		img = DefaultImage
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		api:    api,
		image:  img,
		runID:  runID,
		logger: logger,
		now:    time.Now,
	}
}

// Image returns the GDAL image the runner uses.
func (r *Runner) Image() string { return r.image }

// Run executes cmd in a helper container and returns its demultiplexed
// output. A non-zero exit status is reported as a *gdal.ToolError carrying
// the container's stderr.
func (r *Runner) Run(ctx context.Context, cmd gdal.Command) (gdal.Result, error) {
	if err := r.ensureImage(ctx); err != nil {
		return gdal.Result{}, err
	}

	cfg := &container.Config{
		Image:  r.image,
		Cmd:    append([]string{cmd.Tool}, cmd.Args...),
		Labels: BuildLabels(r.runID, cmd.Tool, r.now()),
		User:   hostUser(),
	}
	hostCfg := &container.HostConfig{Mounts: bindMounts(cmd.Dirs)}

	created, err := r.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return gdal.Result{}, fmt.Errorf("failed to create helper container for %s: %w", cmd.Tool, err)
	}
	defer r.remove(created.ID)

	log := r.logger.With(zap.String("container", shortID(created.ID)), zap.String("tool", cmd.Tool))
	log.Debug("starting helper container", zap.String("command", cmd.String()))

	if err := r.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return gdal.Result{}, fmt.Errorf("failed to start helper container for %s: %w", cmd.Tool, err)
	}

	exitCode, err := r.wait(ctx, created.ID)
	if err != nil {
		return gdal.Result{}, err
	}

	res, err := r.logs(ctx, created.ID)
	if err != nil {
		return gdal.Result{}, err
	}
	log.Debug("helper container exited", zap.Int64("exit_code", exitCode))

	if exitCode != 0 {
		return res, &gdal.ToolError{
			Command: cmd,
			Stderr:  res.Stderr,
			Err:     fmt.Errorf("exit status %d", exitCode),
		}
	}
	return res, nil
}

// ensureImage pulls the image the first time it is needed if the daemon
// does not already have it.
func (r *Runner) ensureImage(ctx context.Context) error {
	r.pullOnce.Do(func() {
		images, err := r.api.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", r.image)),
		})
		if err != nil {
			r.pullErr = fmt.Errorf("failed to list images: %w", err)
			return
		}
		if len(images) > 0 {
			return
		}

		r.logger.Info("pulling GDAL image", zap.String("image", r.image))
		rc, err := r.api.ImagePull(ctx, r.image, image.PullOptions{})
		if err != nil {
			r.pullErr = fmt.Errorf("failed to pull image %s: %w", r.image, err)
			return
		}
		defer rc.Close()
		// The pull only completes once the progress stream is drained.
		if _, err := io.Copy(io.Discard, rc); err != nil {
			r.pullErr = fmt.Errorf("failed to pull image %s: %w", r.image, err)
		}
	})
	return r.pullErr
}

func (r *Runner) wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := r.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err == nil {
			err = errors.New("wait stream closed")
		}
		return 0, fmt.Errorf("failed waiting for helper container %s: %w", shortID(id), err)
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return 0, fmt.Errorf("helper container %s: %s", shortID(id), st.Error.Message)
		}
		return st.StatusCode, nil
	}
}

func (r *Runner) logs(ctx context.Context, id string) (gdal.Result, error) {
	rc, err := r.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return gdal.Result{}, fmt.Errorf("failed to read helper container logs: %w", err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return gdal.Result{}, fmt.Errorf("failed to demultiplex helper container logs: %w", err)
	}
	return gdal.Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (r *Runner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := r.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		r.logger.Warn("failed to remove helper container",
			zap.String("container", shortID(id)), zap.Error(err))
	}
}

// bindMounts turns the command's directories into bind mounts at identical
// paths. Duplicates, directories nested in another mounted directory and
// directories that do not exist yet are skipped.
func bindMounts(dirs []string) []mount.Mount {
	cleaned := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			continue
		}
		cleaned = append(cleaned, abs)
	}
	sort.Strings(cleaned)

	var mounts []mount.Mount
	var mounted []string
	for _, d := range cleaned {
		if coveredBy(d, mounted) {
			continue
		}
		mounted = append(mounted, d)
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: d, Target: d})
	}
	return mounts
}

func coveredBy(dir string, parents []string) bool {
	for _, p := range parents {
		if dir == p {
			return true
		}
		rel, err := filepath.Rel(p, dir)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// hostUser runs helpers as the invoking user so outputs are not owned by
// root. Windows has no numeric ids.
func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// ListManagedContainers returns every helper container carrying the
// batch-clip management label, stopped ones included. A non-empty runID
// narrows the result to one run.
func ListManagedContainers(ctx context.Context, api API, runID string) ([]HelperContainer, error) {
	args := filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue))
	if runID != "" {
		args.Add("label", LabelRunID+"="+runID)
	}

	containers, err := api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list helper containers", err)
	}

	helpers := make([]HelperContainer, 0, len(containers))
	for _, c := range containers {
		h, err := ParseLabels(c.Labels)
		if err != nil {
			continue
		}
		h.ID = c.ID
		h.State = string(c.State)
		if len(c.Names) > 0 {
			h.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		helpers = append(helpers, h)
	}
	return helpers, nil
}

// RemoveContainer removes a helper container. force also removes it
// while it is still running.
func RemoveContainer(ctx context.Context, api API, containerID string, force bool) error {
	if err := api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", shortID(containerID), err)
	}
	return nil
}
