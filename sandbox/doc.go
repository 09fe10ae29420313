// Package sandbox provides isolated execution environments for
// untrusted code.
//
// The sandbox package defines the Driver interface, the capability
// boundary to the external container runtime, and concrete drivers for
// Docker, Podman, and local execution (for development). A driver
// provisions an ephemeral environment from an image with resource
// limits and no network access, injects files, runs commands under a
// wall-clock limit, and destroys the environment.
//
// Usage:
//
//	driver, err := sandbox.NewDriver(logger, cfg)
//	h, err := driver.Create(ctx, "python:3.11-slim", sandbox.Limits{CPUs: 1, MemoryMB: 512, PidsLimit: 128}, nil)
//	defer driver.Destroy(ctx, h)
package sandbox
