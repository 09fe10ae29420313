// Package main is the entry point for the runbox MCP server.
//
// The runbox server executes untrusted user code in isolated, ephemeral
// containers and returns captured output, exit status, and timing. The
// server supports both stdio and HTTP transports, bounds concurrent
// executions, and enforces per-language resource and time limits.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/admission"
	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/mcpserver"
	"github.com/isdmx/runbox/orchestrator"
	"github.com/isdmx/runbox/registry"
	"github.com/isdmx/runbox/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Language profile registry
			registry.NewFromConfig,

			// Sandbox driver based on config
			sandbox.NewDriver,

			// Admission controller bounding concurrent sandboxes
			admission.NewFromConfig,

			// Execution orchestrator
			orchestrator.New,
			func(o *orchestrator.Orchestrator) mcpserver.Executor { return o },

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
