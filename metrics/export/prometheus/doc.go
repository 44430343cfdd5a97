// Package prometheus renders client metrics in Prometheus text exposition format.
//
// Counters are named civiclens_*_total; the attempt latency histogram is
// civiclens_fetch_attempt_latency_seconds. Nothing is registered globally; callers
// mount [Exporter.Handler] where they like.
package prometheus
