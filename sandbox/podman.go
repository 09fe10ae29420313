package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PodmanDriver implements Driver by shelling out to the podman CLI.
// Behavior mirrors DockerDriver; podman's CLI is argument-compatible
// for the subset of commands used here.
type PodmanDriver struct {
	logger         *zap.Logger
	networkEnabled bool
	cmdRunner      CommandRunner
	fs             FileSystem
}

// PodmanDriverOption defines a functional option for PodmanDriver
type PodmanDriverOption func(*PodmanDriver)

// WithPodmanCommandRunner sets the CommandRunner for PodmanDriver
func WithPodmanCommandRunner(cmdRunner CommandRunner) PodmanDriverOption {
	return func(p *PodmanDriver) {
		p.cmdRunner = cmdRunner
	}
}

// WithPodmanFileSystem sets the FileSystem for PodmanDriver
func WithPodmanFileSystem(fs FileSystem) PodmanDriverOption {
	return func(p *PodmanDriver) {
		p.fs = fs
	}
}

// NewPodmanDriver creates a new PodmanDriver with default implementations and optional interfaces
func NewPodmanDriver(logger *zap.Logger, networkEnabled bool, opts ...PodmanDriverOption) *PodmanDriver {
	driver := &PodmanDriver{
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

// Create provisions a detached container from the image with the given limits.
func (p *PodmanDriver) Create(ctx context.Context, image string, limits Limits, env map[string]string) (*Handle, error) {
	workdir, err := p.fs.MkdirTemp("", "runbox-exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", ErrUnavailable)
	}

	name := fmt.Sprintf("runbox-%d", time.Now().UnixNano())
	args := createArgs("podman", name, workdir, image, limits, env, p.networkEnabled)

	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, args)
	if err != nil || exitCode != 0 {
		if rmErr := p.fs.RemoveAll(workdir); rmErr != nil {
			p.logger.Error("failed to remove workdir after provisioning failure", zap.String("path", workdir), zap.Error(rmErr))
		}
		p.logger.Error("container provisioning failed",
			zap.String("image", image),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", strings.TrimSpace(stderr)),
			zap.Error(err))
		return nil, fmt.Errorf("provision %s: %s: %w", image, strings.TrimSpace(stderr), ErrUnavailable)
	}

	return &Handle{ID: name, workdir: workdir}, nil
}

// InjectFile places a file into the sandbox working directory.
func (p *PodmanDriver) InjectFile(_ context.Context, h *Handle, name string, contents []byte) error {
	path := filepath.Join(h.workdir, name)
	if err := p.fs.WriteFile(path, contents, FilePermission); err != nil {
		return fmt.Errorf("inject %s: %v: %w", name, err, ErrUnavailable)
	}
	return nil
}

// Run executes argv inside the container bounded by the wall-clock timeout.
func (p *PodmanDriver) Run(ctx context.Context, h *Handle, argv []string, timeout time.Duration) (RunOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"podman", "exec", "--workdir", containerWorkdir, h.ID}, argv...)
	stdout, stderr, exitCode, err := p.cmdRunner.RunCommand(runCtx, args)

	if runCtx.Err() == context.DeadlineExceeded {
		if _, _, _, killErr := p.cmdRunner.RunCommand(ctx, []string{"podman", "kill", h.ID}); killErr != nil {
			p.logger.Warn("failed to kill container after timeout", zap.String("container", h.ID), zap.Error(killErr))
		}
		return RunOutput{Stdout: stdout, Stderr: stderr, Killed: true}, nil
	}

	if err != nil {
		return RunOutput{}, fmt.Errorf("exec in %s: %v: %w", h.ID, err, ErrUnavailable)
	}

	return RunOutput{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// Destroy force-removes the container and deletes its scratch directory.
func (p *PodmanDriver) Destroy(ctx context.Context, h *Handle) error {
	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, []string{"podman", "rm", "-f", h.ID})

	rmErr := p.fs.RemoveAll(h.workdir)

	if err != nil || exitCode != 0 {
		return fmt.Errorf("remove container %s: %s (%v)", h.ID, strings.TrimSpace(stderr), err)
	}
	if rmErr != nil {
		return fmt.Errorf("remove workdir %s: %w", h.workdir, rmErr)
	}
	return nil
}
