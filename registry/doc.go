// Package registry provides the language profile registry.
//
// The registry package maps language identifiers to immutable execution
// profiles: sandbox image, source file name, optional compile command,
// run command, and resource limits. Profiles come from configuration,
// optionally merged with a standalone YAML profile file, and are built
// once at process start. Lookup is exact-match and case-sensitive.
package registry
