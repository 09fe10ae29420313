// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. Production mode emits JSON with ISO8601 timestamps,
// development mode emits colored console output.
package logger
