// Package observability provides the structured logger, Prometheus metrics
// and OpenTelemetry tracer shared by the server and the agent.
package observability
