package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	authcore "github.com/TSavo/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
	calls    int
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	f.calls++
	return f.snapshot
}

func (f *fakeSource) AuditDropped() uint64 {
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", m.Name)
			}
			for _, dp := range sum.DataPoints {
				values[m.Name] = dp.Value
			}
		}
	}
	return values
}

func TestExporterObservesEngineCounters(t *testing.T) {
	source := &fakeSource{dropped: 7}
	source.snapshot.Counters[authcore.MetricTokenIssued] = 42
	source.snapshot.Counters[authcore.MetricRefreshReuseDetected] = 3

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	exporter, err := NewExporterFromSource(meter, source)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	values := collect(t, reader)

	if values["authcore_tokens_issued_total"] != 42 {
		t.Fatalf("tokens issued: %d", values["authcore_tokens_issued_total"])
	}
	if values["authcore_refresh_reuse_detected_total"] != 3 {
		t.Fatalf("reuse detected: %d", values["authcore_refresh_reuse_detected_total"])
	}
	if values["authcore_refresh_failures_total"] != 0 {
		t.Fatalf("untouched counter: %d", values["authcore_refresh_failures_total"])
	}
	if values["authcore_audit_dropped_total"] != 7 {
		t.Fatalf("audit dropped: %d", values["authcore_audit_dropped_total"])
	}
}

func TestExporterReflectsCounterGrowth(t *testing.T) {
	source := &fakeSource{}
	source.snapshot.Counters[authcore.MetricRateLimitHit] = 1

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	exporter, err := NewExporterFromSource(meter, source)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	if values := collect(t, reader); values["authcore_rate_limit_hits_total"] != 1 {
		t.Fatalf("first collection: %d", values["authcore_rate_limit_hits_total"])
	}

	source.snapshot.Counters[authcore.MetricRateLimitHit] = 5

	if values := collect(t, reader); values["authcore_rate_limit_hits_total"] != 5 {
		t.Fatalf("second collection: %d", values["authcore_rate_limit_hits_total"])
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestCloseStopsObservation(t *testing.T) {
	source := &fakeSource{}
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	exporter, err := NewExporterFromSource(meter, source)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}

	collect(t, reader)
	before := source.calls

	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	_ = reader.Collect(context.Background(), &rm)

	if source.calls != before {
		t.Fatal("source observed after Close")
	}

	// Closing twice is harmless.
	if err := exporter.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
