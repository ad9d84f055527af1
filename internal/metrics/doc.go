// Package metrics defines the Prometheus instruments for sessions, ingestion,
// recognition, translation and outbound messages.
package metrics
