// Package observability provides the logging, metrics and tracing used
// across an experiment run.
//
//  1. Logging - slog records tagged with run, experiment, condition and
//     participant ids, with credential redaction
//  2. Metrics - Prometheus counters on a private registry, optionally written
//     to a textfile when the run ends
//  3. Tracing - OpenTelemetry spans for runs, sessions and generation calls,
//     exported over OTLP gRPC when an endpoint is configured
//
// Every type tolerates a nil receiver so that library code can accept
// optional instrumentation without guarding each call.
package observability
