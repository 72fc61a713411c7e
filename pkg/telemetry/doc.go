// Package telemetry counts what a matrix run did and exports the counts in the Prometheus format.
// Supported metrics include:
// - channels by outcome (buildmatrix_channels_total)
// - platform jobs by test status (buildmatrix_platform_jobs_total)
// - probe runs and their latency (buildmatrix_probe_runs_total, buildmatrix_probe_duration_seconds)
// - registry lookups by outcome (buildmatrix_registry_queries_total)
//
// The metrics live on a private registry and can be written to a node-exporter textfile or pushed to a pushgateway.
package telemetry
