package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newManualMetrics returns Metrics backed by a manual reader so tests can
// inspect what was recorded.
func newManualMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumPoints(t *testing.T, m metricdata.Metrics) []metricdata.DataPoint[int64] {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: unexpected data type %T", m.Name, m.Data)
	}
	return sum.DataPoints
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/availability", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/book", 500, 50*time.Millisecond)
	metrics.RecordRateLimited(ctx, "/book")
}

func TestMetrics_RecordBooking(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordBooking(ctx, "committed")
	m.RecordBooking(ctx, "committed")
	m.RecordBooking(ctx, "stale")

	got := collect(t, reader)
	points := sumPoints(t, got["bookings_total"])

	counts := make(map[string]int64)
	for _, p := range points {
		v, _ := p.Attributes.Value(attribute.Key(attrResult))
		counts[v.AsString()] = p.Value
	}
	if counts["committed"] != 2 || counts["stale"] != 1 {
		t.Errorf("unexpected booking counts: %v", counts)
	}
}

func TestMetrics_RecordSlotsGenerated(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordSlotsGenerated(ctx, 12)
	m.RecordSlotsGenerated(ctx, 0)

	got := collect(t, reader)
	hist, ok := got["slots_generated"].Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", got["slots_generated"].Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(hist.DataPoints))
	}
	if hist.DataPoints[0].Count != 2 || hist.DataPoints[0].Sum != 12 {
		t.Errorf("count=%d sum=%d, want 2 and 12", hist.DataPoints[0].Count, hist.DataPoints[0].Sum)
	}
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	tests := []struct {
		name         string
		detailed     bool
		wantCalendar bool
	}{
		{name: "calendar label omitted by default", detailed: false, wantCalendar: false},
		{name: "calendar label with detailed labels", detailed: true, wantCalendar: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newManualMetrics(t, tt.detailed)
			m.RecordGoogleAPIOperation(context.Background(), OperationFreeBusy, StatusTimeout, "primary", 2*time.Second)

			points := sumPoints(t, collect(t, reader)["google_api_operations_total"])
			if len(points) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(points))
			}
			attrs := points[0].Attributes
			if v, _ := attrs.Value(attribute.Key(attrService)); v.AsString() != ServiceCalendar {
				t.Errorf("service = %q", v.AsString())
			}
			if v, _ := attrs.Value(attribute.Key(attrStatus)); v.AsString() != StatusTimeout {
				t.Errorf("status = %q", v.AsString())
			}
			_, hasCalendar := attrs.Value(attribute.Key(attrCalendar))
			if hasCalendar != tt.wantCalendar {
				t.Errorf("calendar label present = %v, want %v", hasCalendar, tt.wantCalendar)
			}
		})
	}
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordToolInvocation(ctx, "scheduling_find_slots", StatusSuccess, 100*time.Millisecond)
	m.RecordToolInvocation(ctx, "scheduling_book_slot", StatusError, 500*time.Millisecond)

	points := sumPoints(t, collect(t, reader)["mcp_tool_invocations_total"])
	if len(points) != 2 {
		t.Errorf("expected 2 data points, got %d", len(points))
	}
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", "/availability", 200, 100*time.Millisecond)
	metrics.RecordRateLimited(ctx, "/book")
	metrics.RecordGoogleAPIOperation(ctx, OperationInsert, StatusSuccess, "primary", 200*time.Millisecond)
	metrics.RecordSlotsGenerated(ctx, 3)
	metrics.RecordBooking(ctx, "committed")
	metrics.RecordToolInvocation(ctx, "test_tool", StatusSuccess, 100*time.Millisecond)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Should not panic
	m.RecordHTTPRequest(ctx, "GET", "/availability", 200, time.Millisecond)
	m.RecordSlotsGenerated(ctx, 1)
	m.RecordBooking(ctx, "failed")
}
