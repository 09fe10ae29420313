package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// LocalDriver implements Driver by running commands directly on the
// host (WARNING: no isolation; development only, gated behind
// sandbox.enable_local_backend). Resource limits are not enforced
// beyond the wall-clock timeout.
type LocalDriver struct {
	logger *zap.Logger
	fs     FileSystem
}

// LocalDriverOption defines a functional option for LocalDriver
type LocalDriverOption func(*LocalDriver)

// WithLocalFileSystem sets the FileSystem for LocalDriver
func WithLocalFileSystem(fs FileSystem) LocalDriverOption {
	return func(l *LocalDriver) {
		l.fs = fs
	}
}

// NewLocalDriver creates a new LocalDriver
func NewLocalDriver(logger *zap.Logger, opts ...LocalDriverOption) *LocalDriver {
	driver := &LocalDriver{
		logger: logger,
		fs:     &RealFileSystem{}, // Default implementation
	}

	for _, opt := range opts {
		opt(driver)
	}

	return driver
}

// Create allocates a scratch directory; there is no container. The
// image reference is ignored and the limits are advisory.
func (l *LocalDriver) Create(_ context.Context, image string, _ Limits, _ map[string]string) (*Handle, error) {
	workdir, err := l.fs.MkdirTemp("", "runbox-exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", ErrUnavailable)
	}
	l.logger.Debug("local sandbox created", zap.String("workdir", workdir), zap.String("ignored_image", image))
	return &Handle{ID: filepath.Base(workdir), workdir: workdir}, nil
}

// InjectFile places a file into the scratch directory.
func (l *LocalDriver) InjectFile(_ context.Context, h *Handle, name string, contents []byte) error {
	path := filepath.Join(h.workdir, name)
	if err := l.fs.WriteFile(path, contents, FilePermission); err != nil {
		return fmt.Errorf("inject %s: %v: %w", name, err, ErrUnavailable)
	}
	return nil
}

// Run executes argv in the scratch directory bounded by the timeout.
func (l *LocalDriver) Run(ctx context.Context, h *Handle, argv []string, timeout time.Duration) (RunOutput, error) {
	if len(argv) == 0 {
		return RunOutput{}, fmt.Errorf("empty command: %w", ErrUnavailable)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec // Development-only backend
	cmd.Dir = h.workdir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return RunOutput{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), Killed: true}, nil
	}

	exitCode := 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return RunOutput{}, fmt.Errorf("exec: %v: %w", err, ErrUnavailable)
		}
	}

	return RunOutput{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), ExitCode: exitCode}, nil
}

// Destroy deletes the scratch directory.
func (l *LocalDriver) Destroy(_ context.Context, h *Handle) error {
	if err := l.fs.RemoveAll(h.workdir); err != nil {
		return fmt.Errorf("remove workdir %s: %w", h.workdir, err)
	}
	return nil
}
