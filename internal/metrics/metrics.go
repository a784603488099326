package metrics

import "sync/atomic"

// MetricID identifies a single counter slot.
type MetricID uint16

const (
	MetricTokenIssued MetricID = iota
	MetricTokenVerified
	MetricTokenVerifyFailure
	MetricTokenRevoked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricFamilyRevoked
	MetricRateLimitHit
	MetricRateLimitFailOpen
	MetricDelayApplied
	MetricSessionCreated
	MetricSessionRevoked
	MetricPoolRejected
	MetricPoolWorkerCrashed
	MetricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls metric collection. When Enabled is false every operation
// is a no-op.
type Config struct {
	Enabled bool
}

// Metrics holds the counter slots. Safe for concurrent use; a nil Metrics
// is valid and records nothing.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters [MetricIDCount]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc atomically increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Snapshot returns a consistent-enough copy for export. Individual counters
// are read atomically; cross-counter skew is acceptable.
func (m *Metrics) Snapshot() Snapshot {
	var snap Snapshot
	if m == nil || !m.enabled {
		return snap
	}
	for i := MetricID(0); i < MetricIDCount; i++ {
		snap.Counters[i] = atomic.LoadUint64(&m.counters[i].value)
	}
	return snap
}
