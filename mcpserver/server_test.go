package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/orchestrator"
	"github.com/isdmx/runbox/registry"
)

// MockExecutor implements Executor for testing
type MockExecutor struct {
	result orchestrator.Result
	err    error
}

func (m *MockExecutor) Execute(_ context.Context, _ orchestrator.Request) (orchestrator.Result, error) {
	return m.result, m.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Sandbox: config.SandboxConfig{
			Backend:                 "docker",
			MaxConcurrentExecutions: 4,
			QueueWaitSec:            30,
			TimeoutSec:              10,
			CompileTimeoutSec:       5,
			MemoryMB:                512,
			CPUs:                    1.0,
			PidsLimit:               128,
			OutputCapKB:             64,
			MaxCodeKB:               128,
		},
		Logging: config.LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Languages: map[string]config.Language{
			"python": {
				Image:      "python:3.11-slim",
				SourceFile: "main.py",
				RunCmd:     "python3 {src}",
			},
		},
	}
}

func testRegistry(t *testing.T, cfg *config.Config) *registry.Registry {
	t.Helper()
	reg, err := registry.NewFromConfig(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	return reg
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	reg := testRegistry(t, cfg)
	mockExecutor := &MockExecutor{}

	server, err := New(cfg, logger, reg, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.Equal(t, mockExecutor, server.executor)
	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.GetMCPServer())
}

func TestMarshalResult(t *testing.T) {
	t.Run("SuccessWithExitCode", func(t *testing.T) {
		exit := 0
		body, err := marshalResult(orchestrator.Result{
			Status:   orchestrator.StatusSuccess,
			Stdout:   "2\n",
			Stderr:   "",
			ExitCode: &exit,
			Elapsed:  1500000000, // 1.5s
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"Success","stdout":"2\n","stderr":"","exit_code":0,"elapsed_ms":1500}`, body)
	})

	t.Run("TimedOutHasNullExitCode", func(t *testing.T) {
		body, err := marshalResult(orchestrator.Result{
			Status: orchestrator.StatusTimedOut,
			Stdout: "partial",
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"TimedOut","stdout":"partial","stderr":"","exit_code":null,"elapsed_ms":0}`, body)
	})

	t.Run("FailureStatusSerializes", func(t *testing.T) {
		body, err := marshalResult(orchestrator.Result{
			Status: orchestrator.StatusUnknownLanguage,
		})
		require.NoError(t, err)
		assert.Contains(t, body, `"status":"UnknownLanguage"`)
	})
}
