// Package mcpserver provides the Model Context Protocol (MCP) server
// implementation.
//
// The mcpserver package exposes the execute_code tool over MCP using
// the mark3labs/mcp-go library. The tool accepts a code snippet and a
// language identifier, hands them to the orchestrator, and returns the
// serialized execution result.
package mcpserver
