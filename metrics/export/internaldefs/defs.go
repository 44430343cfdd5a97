package internaldefs

import (
	"github.com/MrEthical07/civiclens"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   civiclens.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   civiclens.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: civiclens.MetricSessionAuthenticated, Name: "civiclens_session_authenticated_total", Help: "Transitions into the authenticated phase."},
	{ID: civiclens.MetricSessionAnonymous, Name: "civiclens_session_anonymous_total", Help: "Transitions into the anonymous phase."},
	{ID: civiclens.MetricProviderError, Name: "civiclens_provider_error_total", Help: "Errors reported by the identity provider."},
	{ID: civiclens.MetricSignInFailure, Name: "civiclens_sign_in_failure_total", Help: "Failed sign-in requests."},
	{ID: civiclens.MetricSignUpFailure, Name: "civiclens_sign_up_failure_total", Help: "Failed sign-up requests."},
	{ID: civiclens.MetricSnapshotWriteSuccess, Name: "civiclens_snapshot_write_success_total", Help: "Persisted session snapshots."},
	{ID: civiclens.MetricSnapshotWriteFailure, Name: "civiclens_snapshot_write_failure_total", Help: "Snapshot writes rejected by the store."},
	{ID: civiclens.MetricSnapshotWriteDropped, Name: "civiclens_snapshot_write_dropped_total", Help: "Snapshot writes dropped on a full queue."},
	{ID: civiclens.MetricGuardRedirect, Name: "civiclens_guard_redirect_total", Help: "Fallback redirects issued by the route guard."},
	{ID: civiclens.MetricGuardPreAdmit, Name: "civiclens_guard_preadmit_total", Help: "Optimistic entries into the protected route."},
	{ID: civiclens.MetricFetchAttemptFailure, Name: "civiclens_fetch_attempt_failure_total", Help: "Failed candidate attempts."},
	{ID: civiclens.MetricFetchSuccess, Name: "civiclens_fetch_success_total", Help: "Fetch calls answered by some candidate."},
	{ID: civiclens.MetricFetchUnreachable, Name: "civiclens_fetch_unreachable_total", Help: "Fetch calls for which every candidate failed."},
	{ID: civiclens.MetricFetchCanceled, Name: "civiclens_fetch_canceled_total", Help: "Fetch calls abandoned by the caller."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: civiclens.MetricFetchAttemptLatency, Name: "civiclens_fetch_attempt_latency_seconds", Help: "Per-candidate attempt latency."},
}

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 10

// HistogramBounds are the Prometheus le labels, in seconds.
var HistogramBounds = [BucketCount]string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"10",
	"+Inf",
}

// HistogramBoundSuffix are the bounds as instrument-name suffixes.
var HistogramBoundSuffix = [BucketCount]string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"10",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
