package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the container runtime cannot provision
// or operate a sandbox (image missing, daemon down, injection failure).
// Callers match it with errors.Is.
var ErrUnavailable = errors.New("sandbox unavailable")

// Limits are the resource constraints applied to one sandbox.
type Limits struct {
	CPUs      float64
	MemoryMB  int
	PidsLimit int
}

// Handle identifies one provisioned sandbox. It is owned by a single
// request for its whole lifetime and must be passed to Destroy exactly
// once, on every path, after Create succeeds.
type Handle struct {
	ID      string
	workdir string
}

// Workdir returns the host-side scratch directory bound into the sandbox.
func (h *Handle) Workdir() string {
	return h.workdir
}

// RunOutput is the captured outcome of one command run inside a sandbox.
// Killed is set when the command was forcibly terminated at its time
// limit; ExitCode is meaningless in that case.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Killed   bool
}

// Driver is the capability boundary to the external container runtime.
// Implementations provision isolated environments, inject files, run
// commands under a wall-clock limit, and destroy environments. All
// methods are safe for concurrent use across distinct handles.
type Driver interface {
	Create(ctx context.Context, image string, limits Limits, env map[string]string) (*Handle, error)
	InjectFile(ctx context.Context, h *Handle, name string, contents []byte) error
	Run(ctx context.Context, h *Handle, argv []string, timeout time.Duration) (RunOutput, error)
	Destroy(ctx context.Context, h *Handle) error
}
