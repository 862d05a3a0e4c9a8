// Package otel exposes engine counters and latency histograms as
// OpenTelemetry observable instruments.
//
// [New] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. One callback reads the
// engine snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
