// Package metrics defines the server's Prometheus collectors and serves them
// at /metrics.
package metrics
