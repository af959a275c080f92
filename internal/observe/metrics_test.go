package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect err: %v", err)
	}

	out := make(map[string]metricdata.Aggregation)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetricsRecordGateway(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	met, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics err: %v", err)
	}

	ctx := context.Background()
	met.RecordGateway(ctx, "translation", OutcomeFallback, 20*time.Millisecond)
	met.RecordGateway(ctx, "translation", OutcomeFallback, 30*time.Millisecond)
	met.SessionOpened(ctx)

	data := collect(t, reader)

	requests, ok := data["interpreter.gateway.requests"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected gateway request sum, got %T", data["interpreter.gateway.requests"])
	}
	if len(requests.DataPoints) != 1 || requests.DataPoints[0].Value != 2 {
		t.Fatalf("unexpected gateway request points: %+v", requests.DataPoints)
	}

	sessions, ok := data["interpreter.sessions.active"].(metricdata.Sum[int64])
	if !ok || len(sessions.DataPoints) != 1 || sessions.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected active sessions: %+v", data["interpreter.sessions.active"])
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var met *Metrics
	ctx := context.Background()

	met.SessionOpened(ctx)
	met.SessionClosed(ctx)
	met.RecordUtterance(ctx, "doctor", false)
	met.RecordGateway(ctx, "summary", OutcomeLive, time.Second)
	met.RecordProtocolError(ctx, "invalid_json")
}
