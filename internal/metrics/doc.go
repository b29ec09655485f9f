// Package metrics defines the coordinator's Prometheus collectors.
//
// Collectors are package globals updated by the scanner and coordinator
// packages. InitMetrics registers them once on the registry the coordinator
// serves at /metrics.
package metrics
