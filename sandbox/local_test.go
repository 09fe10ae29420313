package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/runbox/config"
)

func factoryConfig(backend string) *config.Config {
	return &config.Config{Sandbox: config.SandboxConfig{Backend: backend}}
}

func TestLocalDriverLifecycle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	driver := NewLocalDriver(logger)

	h, err := driver.Create(context.Background(), "ignored:latest", testLimits(), nil)
	require.NoError(t, err)
	require.NotNil(t, h)

	require.NoError(t, driver.InjectFile(context.Background(), h, "hello.txt", []byte("hi")))

	t.Run("RunCapturesOutput", func(t *testing.T) {
		out, runErr := driver.Run(context.Background(), h, []string{"sh", "-c", "cat hello.txt"}, 5*time.Second)
		require.NoError(t, runErr)
		assert.Equal(t, "hi", out.Stdout)
		assert.Equal(t, 0, out.ExitCode)
		assert.False(t, out.Killed)
	})

	t.Run("RunNonZeroExit", func(t *testing.T) {
		out, runErr := driver.Run(context.Background(), h, []string{"sh", "-c", "exit 3"}, 5*time.Second)
		require.NoError(t, runErr)
		assert.Equal(t, 3, out.ExitCode)
	})

	t.Run("RunTimeout", func(t *testing.T) {
		start := time.Now()
		out, runErr := driver.Run(context.Background(), h, []string{"sleep", "10"}, 100*time.Millisecond)
		require.NoError(t, runErr)
		assert.True(t, out.Killed)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("EmptyCommand", func(t *testing.T) {
		_, runErr := driver.Run(context.Background(), h, nil, time.Second)
		assert.ErrorIs(t, runErr, ErrUnavailable)
	})

	require.NoError(t, driver.Destroy(context.Background(), h))
}

func TestNewDriverFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Docker", func(t *testing.T) {
		driver, err := NewDriver(logger, factoryConfig("docker"))
		require.NoError(t, err)
		assert.IsType(t, &DockerDriver{}, driver)
	})

	t.Run("Podman", func(t *testing.T) {
		driver, err := NewDriver(logger, factoryConfig("podman"))
		require.NoError(t, err)
		assert.IsType(t, &PodmanDriver{}, driver)
	})

	t.Run("Local", func(t *testing.T) {
		driver, err := NewDriver(logger, factoryConfig("local"))
		require.NoError(t, err)
		assert.IsType(t, &LocalDriver{}, driver)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := NewDriver(logger, factoryConfig("kubernetes"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported backend")
	})
}
