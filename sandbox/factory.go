package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// NewDriver creates the sandbox driver selected by the configuration
func NewDriver(logger *zap.Logger, cfg *config.Config) (Driver, error) {
	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerDriver(logger, cfg.Sandbox.NetworkEnabled), nil
	case "podman":
		return NewPodmanDriver(logger, cfg.Sandbox.NetworkEnabled), nil
	case "local":
		return NewLocalDriver(logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
