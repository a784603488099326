package authcore

import internalmetrics "github.com/TSavo/authcore/internal/metrics"

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricTokenIssued          = internalmetrics.MetricTokenIssued
	MetricTokenVerified        = internalmetrics.MetricTokenVerified
	MetricTokenVerifyFailure   = internalmetrics.MetricTokenVerifyFailure
	MetricTokenRevoked         = internalmetrics.MetricTokenRevoked
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected = internalmetrics.MetricRefreshReuseDetected
	MetricFamilyRevoked        = internalmetrics.MetricFamilyRevoked
	MetricRateLimitHit         = internalmetrics.MetricRateLimitHit
	MetricRateLimitFailOpen    = internalmetrics.MetricRateLimitFailOpen
	MetricDelayApplied         = internalmetrics.MetricDelayApplied
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionRevoked       = internalmetrics.MetricSessionRevoked
	MetricPoolRejected         = internalmetrics.MetricPoolRejected
	MetricPoolWorkerCrashed    = internalmetrics.MetricPoolWorkerCrashed

	// MetricCount is the number of defined counters.
	MetricCount = internalmetrics.MetricIDCount
)

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
