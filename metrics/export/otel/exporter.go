package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	authcore "github.com/TSavo/authcore"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// counterDef binds a metric id to its exported name.
type counterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var counterDefs = []counterDef{
	{authcore.MetricTokenIssued, "authcore_tokens_issued_total", "Access/refresh pairs minted."},
	{authcore.MetricTokenVerified, "authcore_tokens_verified_total", "Successful full verifications."},
	{authcore.MetricTokenVerifyFailure, "authcore_token_verify_failures_total", "Failed token verifications."},
	{authcore.MetricTokenRevoked, "authcore_tokens_revoked_total", "Tokens blacklisted before expiry."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful refresh rotations."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failures_total", "Failed refresh rotations."},
	{authcore.MetricRefreshReuseDetected, "authcore_refresh_reuse_detected_total", "Refresh token replays caught."},
	{authcore.MetricFamilyRevoked, "authcore_token_families_revoked_total", "Token families collapsed."},
	{authcore.MetricRateLimitHit, "authcore_rate_limit_hits_total", "Requests rejected by rate limiting."},
	{authcore.MetricRateLimitFailOpen, "authcore_rate_limit_fail_open_total", "Rate checks allowed due to store failure."},
	{authcore.MetricDelayApplied, "authcore_progressive_delays_total", "Progressive delays applied."},
	{authcore.MetricSessionCreated, "authcore_sessions_created_total", "Sessions registered."},
	{authcore.MetricSessionRevoked, "authcore_sessions_revoked_total", "Sessions revoked."},
	{authcore.MetricPoolRejected, "authcore_pool_rejected_total", "Verification tasks rejected by backpressure."},
	{authcore.MetricPoolWorkerCrashed, "authcore_pool_workers_replaced_total", "Workers replaced after a task panic."},
}

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authcore.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter bridges engine counters into an OTel meter.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers observable counters for every engine metric plus
// the audit-drop counter.
func NewExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource is NewExporter for any snapshot source, which
// keeps tests off a fully built engine.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+1)
	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"authcore_audit_dropped_total",
		metric.WithDescription("Security events dropped by dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration

	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
