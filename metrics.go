package sessionguard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	// MetricSignUpSuccess counts accounts created.
	MetricSignUpSuccess MetricID = iota
	// MetricSignUpFailure counts sign-ups that failed for any reason.
	MetricSignUpFailure
	// MetricSignUpDuplicate counts sign-ups refused because the e-mail is taken.
	MetricSignUpDuplicate
	// MetricSignInSuccess counts sessions started by sign-in.
	MetricSignInSuccess
	// MetricSignInFailure counts rejected sign-ins, rate limiting excluded.
	MetricSignInFailure
	// MetricSignInRateLimited counts sign-ins refused by the Redis throttle.
	MetricSignInRateLimited
	// MetricRefreshSuccess counts completed refresh rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes that did not rotate.
	MetricRefreshFailure
	// MetricRefreshExpired counts refreshes presenting an expired token.
	MetricRefreshExpired
	// MetricRefreshReuseDetected counts refreshes presenting an already consumed token.
	MetricRefreshReuseDetected
	// MetricSignOut counts single-session sign-outs.
	MetricSignOut
	// MetricSignOutAll counts revocations of every session of a user.
	MetricSignOutAll
	// MetricAccountLocked counts accounts locked by reuse or replay escalation.
	MetricAccountLocked
	// MetricSelfServiceSend counts committed verify, recover and reset sends.
	MetricSelfServiceSend
	// MetricSelfServiceSendSilent counts sends for unknown e-mails answered without effect.
	MetricSelfServiceSendSilent
	// MetricSelfServiceRateLimited counts sends refused by the attempt limiter or password guess throttle.
	MetricSelfServiceRateLimited
	// MetricSelfServiceConfirmSuccess counts confirms that applied their flow.
	MetricSelfServiceConfirmSuccess
	// MetricSelfServiceConfirmFailure counts confirms that failed, replays included.
	MetricSelfServiceConfirmFailure
	// MetricSelfServiceConfirmDuplicate counts benign repeat confirms inside the replay window.
	MetricSelfServiceConfirmDuplicate
	// MetricSelfServiceReplayDetected counts confirm tokens presented after their request was consumed.
	MetricSelfServiceReplayDetected
	// MetricMailQueued counts mail jobs accepted by the queue.
	MetricMailQueued
	// MetricMailSent counts mail jobs the mailer delivered.
	MetricMailSent
	// MetricMailFailed counts mail jobs the mailer rejected.
	MetricMailFailed
	// MetricMailDropped counts mail jobs refused by a full or closed queue.
	MetricMailDropped
	// MetricSignInLatency is the sign-in latency histogram.
	MetricSignInLatency
	// MetricRefreshLatency is the refresh latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters gated by cfg. Latency histograms need both
// Enabled and EnableLatencyHistograms.
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

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram of a latency metric. Other ids are
// ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricSignInLatency, MetricRefreshLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricSignInLatency || id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
