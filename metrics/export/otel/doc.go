// Package otel publishes client metrics through OpenTelemetry observable instruments.
//
// [NewExporter] registers an Int64ObservableCounter per client counter and an
// Int64ObservableGauge per cumulative latency bucket. One callback reads
// [civiclens.Client.MetricsSnapshot] on each collection cycle. Callers own the
// MeterProvider.
package otel
