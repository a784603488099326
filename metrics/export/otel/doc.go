// Package otel exports authcore's in-process counters through an
// OpenTelemetry meter. The exporter registers observable counters that
// read a [authcore.MetricsSnapshot] on every collection; the engine's hot
// path stays allocation-free and never touches the OTel SDK.
package otel
