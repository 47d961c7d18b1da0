// Package metrics renders experiment reports and server counters in the
// Prometheus text exposition format.
package metrics
