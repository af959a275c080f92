// Package observe provides the interpreter's OpenTelemetry metrics.
//
// Instruments are created from a [metric.MeterProvider] so tests can supply a
// noop or manual-reader provider. A nil *Metrics is a valid recorder that drops
// everything, which keeps optional wiring out of the call sites.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zhouzirui/clinic-interpreter/backend"

// Gateway outcomes.
const (
	OutcomeLive     = "live"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics holds all instruments recorded by the relay.
type Metrics struct {
	ActiveSessions  metric.Int64UpDownCounter
	Utterances      metric.Int64Counter
	GatewayRequests metric.Int64Counter
	GatewayDuration metric.Float64Histogram
	ProtocolErrors  metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("interpreter.sessions.active",
		metric.WithDescription("Number of open conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("interpreter.utterances",
		metric.WithDescription("Utterances appended to transcripts."),
	); err != nil {
		return nil, err
	}
	if met.GatewayRequests, err = m.Int64Counter("interpreter.gateway.requests",
		metric.WithDescription("Translation and summarization calls by outcome."),
	); err != nil {
		return nil, err
	}
	if met.GatewayDuration, err = m.Float64Histogram("interpreter.gateway.duration",
		metric.WithDescription("Latency of translation and summarization calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("interpreter.protocol.errors",
		metric.WithDescription("Inbound frames answered with an error frame."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// RecordUtterance counts a transcript append.
func (m *Metrics) RecordUtterance(ctx context.Context, role string, repeat bool) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.Bool("repeat", repeat),
	))
}

// RecordGateway counts one gateway call and its latency.
func (m *Metrics) RecordGateway(ctx context.Context, gateway, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("outcome", outcome),
	))
	m.GatewayDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("gateway", gateway),
	))
}

// RecordProtocolError counts an error frame sent back to a client.
func (m *Metrics) RecordProtocolError(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
