package civiclens

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a client metric.
type MetricID uint16

const (
	// MetricSessionAuthenticated counts transitions into the authenticated phase.
	MetricSessionAuthenticated MetricID = iota
	// MetricSessionAnonymous counts transitions into the anonymous phase.
	MetricSessionAnonymous
	// MetricProviderError counts errors reported by the identity provider.
	MetricProviderError
	MetricSignInFailure
	MetricSignUpFailure
	MetricSnapshotWriteSuccess
	MetricSnapshotWriteFailure
	MetricSnapshotWriteDropped
	// MetricGuardRedirect counts fallback redirects issued by the route guard.
	MetricGuardRedirect
	MetricGuardPreAdmit
	// MetricFetchAttemptFailure counts failed candidate attempts, not failed calls.
	MetricFetchAttemptFailure
	MetricFetchSuccess
	MetricFetchUnreachable
	MetricFetchCanceled
	// MetricFetchAttemptLatency is the per-attempt latency histogram.
	MetricFetchAttemptLatency
	metricIDCount
)

const (
	histBucketCount = 10
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus the fetch latency histogram. A nil
// or disabled *Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricFetchAttemptLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricFetchAttemptLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the counter for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every metric. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricFetchAttemptLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricFetchAttemptLatency].buckets[i])
		}
		s.Histograms[MetricFetchAttemptLatency] = buckets
	}
	return s
}

// bucketIndex maps d onto upper bounds 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s,
// 10s and +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	case ms <= 5000:
		return 7
	case ms <= 10000:
		return 8
	default:
		return 9
	}
}
