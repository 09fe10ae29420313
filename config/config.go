package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Sandbox       SandboxConfig       `mapstructure:"sandbox"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Languages     map[string]Language `mapstructure:"languages"`
	LanguagesFile string              `mapstructure:"languages_file"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox and orchestration configuration
type SandboxConfig struct {
	Backend                 string  `mapstructure:"backend"`
	MaxConcurrentExecutions int     `mapstructure:"max_concurrent_executions"`
	QueueWaitSec            int     `mapstructure:"queue_wait_sec"`
	TimeoutSec              int     `mapstructure:"timeout_sec"`
	CompileTimeoutSec       int     `mapstructure:"compile_timeout_sec"`
	MemoryMB                int     `mapstructure:"memory_mb"`
	CPUs                    float64 `mapstructure:"cpus"`
	PidsLimit               int     `mapstructure:"pids_limit"`
	OutputCapKB             int     `mapstructure:"output_cap_kb"`
	MaxCodeKB               int     `mapstructure:"max_code_kb"`
	NetworkEnabled          bool    `mapstructure:"network_enabled"`
	EnableLocalBackend      bool    `mapstructure:"enable_local_backend"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Language describes one execution profile entry. Commands are templates
// with {src} and {bin} placeholders, expanded by the registry. A language
// without a compile_cmd is run-only. Zero-valued limits inherit the
// sandbox-wide defaults.
type Language struct {
	Image       string            `mapstructure:"image" yaml:"image"`
	SourceFile  string            `mapstructure:"source_file" yaml:"source_file"`
	CompileCmd  string            `mapstructure:"compile_cmd" yaml:"compile_cmd"`
	RunCmd      string            `mapstructure:"run_cmd" yaml:"run_cmd"`
	TimeoutSec  int               `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MemoryMB    int               `mapstructure:"memory_mb" yaml:"memory_mb"`
	CPUs        float64           `mapstructure:"cpus" yaml:"cpus"`
	Environment map[string]string `mapstructure:"environment" yaml:"environment"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("sandbox.backend", "docker")
	viper.SetDefault("sandbox.max_concurrent_executions", 4)
	viper.SetDefault("sandbox.queue_wait_sec", 30)
	viper.SetDefault("sandbox.timeout_sec", 10)
	viper.SetDefault("sandbox.compile_timeout_sec", 5)
	viper.SetDefault("sandbox.memory_mb", 512)
	viper.SetDefault("sandbox.cpus", 1.0)
	viper.SetDefault("sandbox.pids_limit", 128)
	viper.SetDefault("sandbox.output_cap_kb", 64)
	viper.SetDefault("sandbox.max_code_kb", 128)
	viper.SetDefault("sandbox.network_enabled", false)
	viper.SetDefault("sandbox.enable_local_backend", false)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	// Python defaults
	viper.SetDefault("languages.python.image", "python:3.11-slim")
	viper.SetDefault("languages.python.source_file", "main.py")
	viper.SetDefault("languages.python.run_cmd", "python3 {src}")

	// Node.js defaults
	viper.SetDefault("languages.nodejs.image", "node:20-alpine")
	viper.SetDefault("languages.nodejs.source_file", "index.js")
	viper.SetDefault("languages.nodejs.run_cmd", "node {src}")

	// Go defaults
	viper.SetDefault("languages.go.image", "golang:1.23-alpine")
	viper.SetDefault("languages.go.source_file", "main.go")
	viper.SetDefault("languages.go.compile_cmd", "go build -o {bin} {src}")
	viper.SetDefault("languages.go.run_cmd", "./{bin}")

	// C++ defaults
	viper.SetDefault("languages.cpp.image", "gcc:13")
	viper.SetDefault("languages.cpp.source_file", "main.cpp")
	viper.SetDefault("languages.cpp.compile_cmd", "g++ -std=c++17 -O2 -o {bin} {src}")
	viper.SetDefault("languages.cpp.run_cmd", "./{bin}")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Sandbox.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("sandbox.max_concurrent_executions must be positive, got: %d", c.Sandbox.MaxConcurrentExecutions)
	}

	if c.Sandbox.QueueWaitSec <= 0 {
		return fmt.Errorf("sandbox.queue_wait_sec must be positive, got: %d", c.Sandbox.QueueWaitSec)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.CompileTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.compile_timeout_sec must be positive, got: %d", c.Sandbox.CompileTimeoutSec)
	}

	// The compile phase is not the user's program under test; it gets a
	// strictly shorter budget than the run phase.
	if c.Sandbox.CompileTimeoutSec >= c.Sandbox.TimeoutSec {
		return fmt.Errorf("sandbox.compile_timeout_sec must be shorter than sandbox.timeout_sec, got: %d >= %d",
			c.Sandbox.CompileTimeoutSec, c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUs <= 0 {
		return fmt.Errorf("sandbox.cpus must be positive, got: %f", c.Sandbox.CPUs)
	}

	if c.Sandbox.OutputCapKB <= 0 {
		return fmt.Errorf("sandbox.output_cap_kb must be positive, got: %d", c.Sandbox.OutputCapKB)
	}

	if c.Sandbox.MaxCodeKB <= 0 {
		return fmt.Errorf("sandbox.max_code_kb must be positive, got: %d", c.Sandbox.MaxCodeKB)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	return nil
}

// GetTimeout returns the run-phase time limit as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetCompileTimeout returns the compile-phase time limit as a duration
func (c *Config) GetCompileTimeout() time.Duration {
	return time.Duration(c.Sandbox.CompileTimeoutSec) * time.Second
}

// GetQueueWait returns the admission queue-wait timeout as a duration
func (c *Config) GetQueueWait() time.Duration {
	return time.Duration(c.Sandbox.QueueWaitSec) * time.Second
}

// OutputCapBytes returns the captured-output truncation cap in bytes
func (c *Config) OutputCapBytes() int {
	return c.Sandbox.OutputCapKB * 1024
}

// MaxCodeBytes returns the maximum accepted source length in bytes
func (c *Config) MaxCodeBytes() int {
	return c.Sandbox.MaxCodeKB * 1024
}
