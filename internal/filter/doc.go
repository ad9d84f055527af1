// Package filter implements the per-connection low-pass stage applied to
// inbound PCM before segmentation. Coefficients are designed once at startup
// and shared read-only; each connection owns its own filter State.
package filter
