// Package observability provides an OpenTelemetry-based metrics extension
// for Approve. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for workflow start, completion, cancellation, and
// failure, plus task creation, transition, escalation, and overdue events,
// and a histogram of workflow duration.
package observability
