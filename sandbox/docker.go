package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// containerWorkdir is where the per-sandbox scratch directory is mounted.
const containerWorkdir = "/sandbox"

// DockerDriver implements Driver by shelling out to the docker CLI.
// Each sandbox is a detached container parked on `sleep infinity`;
// commands run inside it via `docker exec` and teardown is a forced
// remove.
type DockerDriver struct {
	logger         *zap.Logger
	networkEnabled bool
	cmdRunner      CommandRunner
	fs             FileSystem
}

// DockerDriverOption defines a functional option for DockerDriver
type DockerDriverOption func(*DockerDriver)

// WithDockerCommandRunner sets the CommandRunner for DockerDriver
func WithDockerCommandRunner(cmdRunner CommandRunner) DockerDriverOption {
	return func(d *DockerDriver) {
		d.cmdRunner = cmdRunner
	}
}

// WithDockerFileSystem sets the FileSystem for DockerDriver
func WithDockerFileSystem(fs FileSystem) DockerDriverOption {
	return func(d *DockerDriver) {
		d.fs = fs
	}
}

// NewDockerDriver creates a new DockerDriver with default implementations and optional interfaces
func NewDockerDriver(logger *zap.Logger, networkEnabled bool, opts ...DockerDriverOption) *DockerDriver {
	driver := &DockerDriver{
		logger:         logger,
		networkEnabled: networkEnabled,
		cmdRunner:      &RealCommandRunner{}, // Default implementation
		fs:             &RealFileSystem{},    // Default implementation
	}

	for _, opt := range opts {
		opt(driver)
	}

	return driver
}

// Create provisions a detached container from the image with the given
// resource limits and no network access unless explicitly enabled.
func (d *DockerDriver) Create(ctx context.Context, image string, limits Limits, env map[string]string) (*Handle, error) {
	workdir, err := d.fs.MkdirTemp("", "runbox-exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", ErrUnavailable)
	}

	name := fmt.Sprintf("runbox-%d", time.Now().UnixNano())
	args := createArgs("docker", name, workdir, image, limits, env, d.networkEnabled)

	_, stderr, exitCode, err := d.cmdRunner.RunCommand(ctx, args)
	if err != nil || exitCode != 0 {
		if rmErr := d.fs.RemoveAll(workdir); rmErr != nil {
			d.logger.Error("failed to remove workdir after provisioning failure", zap.String("path", workdir), zap.Error(rmErr))
		}
		d.logger.Error("container provisioning failed",
			zap.String("image", image),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", strings.TrimSpace(stderr)),
			zap.Error(err))
		return nil, fmt.Errorf("provision %s: %s: %w", image, strings.TrimSpace(stderr), ErrUnavailable)
	}

	return &Handle{ID: name, workdir: workdir}, nil
}

// InjectFile places a file into the sandbox working directory.
func (d *DockerDriver) InjectFile(_ context.Context, h *Handle, name string, contents []byte) error {
	path := filepath.Join(h.workdir, name)
	if err := d.fs.WriteFile(path, contents, FilePermission); err != nil {
		return fmt.Errorf("inject %s: %v: %w", name, err, ErrUnavailable)
	}
	return nil
}

// Run executes argv inside the container bounded by the wall-clock
// timeout. On timeout the container is killed and RunOutput.Killed is
// set; partial output captured before the kill is preserved.
func (d *DockerDriver) Run(ctx context.Context, h *Handle, argv []string, timeout time.Duration) (RunOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"docker", "exec", "--workdir", containerWorkdir, h.ID}, argv...)
	stdout, stderr, exitCode, err := d.cmdRunner.RunCommand(runCtx, args)

	if runCtx.Err() == context.DeadlineExceeded {
		// Killing the exec client leaves the process alive inside the
		// container; take the whole container down.
		if _, _, _, killErr := d.cmdRunner.RunCommand(ctx, []string{"docker", "kill", h.ID}); killErr != nil {
			d.logger.Warn("failed to kill container after timeout", zap.String("container", h.ID), zap.Error(killErr))
		}
		return RunOutput{Stdout: stdout, Stderr: stderr, Killed: true}, nil
	}

	if err != nil {
		return RunOutput{}, fmt.Errorf("exec in %s: %v: %w", h.ID, err, ErrUnavailable)
	}

	return RunOutput{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// Destroy force-removes the container and deletes its scratch directory.
func (d *DockerDriver) Destroy(ctx context.Context, h *Handle) error {
	_, stderr, exitCode, err := d.cmdRunner.RunCommand(ctx, []string{"docker", "rm", "-f", h.ID})

	// The workdir is removed regardless of how container removal went.
	rmErr := d.fs.RemoveAll(h.workdir)

	if err != nil || exitCode != 0 {
		return fmt.Errorf("remove container %s: %s (%v)", h.ID, strings.TrimSpace(stderr), err)
	}
	if rmErr != nil {
		return fmt.Errorf("remove workdir %s: %w", h.workdir, rmErr)
	}
	return nil
}

// createArgs builds the container-create command line shared by the
// docker and podman drivers. The scratch workdir stays writable for
// compile output, so the container keeps its image default user.
func createArgs(binary, name, workdir, image string, limits Limits, env map[string]string, networkEnabled bool) []string {
	network := "none" // Disable network by default
	if networkEnabled {
		network = "bridge"
	}

	args := []string{
		binary, "run", "-d",
		"--name", name,
		"-v", fmt.Sprintf("%s:%s", workdir, containerWorkdir),
		"--workdir", containerWorkdir,
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--cpus", strconv.FormatFloat(limits.CPUs, 'f', -1, 64),
		"--pids-limit", strconv.Itoa(limits.PidsLimit),
		"--network", network,
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL", // Drop all capabilities
	}

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, env[key]))
	}

	return append(args, image, "sleep", "infinity")
}
