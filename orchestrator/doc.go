// Package orchestrator implements the execution pipeline for untrusted
// code.
//
// For each request the orchestrator resolves the language profile,
// acquires an admission slot, provisions a sandbox through the driver,
// injects the source, runs the optional compile step and the run step
// under their time limits, classifies the outcome, and tears the
// sandbox down unconditionally. Compile failures, runtime failures, and
// timeouts are normal results; only unknown languages, admission
// timeouts, and infrastructure failures surface as errors.
package orchestrator
