// Package observability provides an OpenTelemetry-based metrics
// extension for Corda. The MetricsExtension implements lifecycle hooks
// to record node-wide counters for run start, suspension, resume,
// completion, errored halt, removal, record insert, and signal publish
// events.
//
// For per-execution tracing and metrics, see the transition package:
// transition.Tracing() and transition.Metrics().
package observability
