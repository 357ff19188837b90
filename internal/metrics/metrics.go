// Package metrics exposes MCPHub's OpenTelemetry metrics through a
// Prometheus-scrapable /metrics endpoint, built around a meter-provider
// and a small instrument set: a connector-connected gauge, a dispatcher
// call histogram, and counters for tool calls and smart-routing searches.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/mcphub-dev/mcphub"

// Recorder holds the OTel instruments MCPHub records against. All fields are
// safe for concurrent use.
type Recorder struct {
	provider *sdkmetric.MeterProvider

	connectorConnected metric.Int64UpDownCounter
	toolCallDuration    metric.Float64Histogram
	toolCalls           metric.Int64Counter
	smartSearches       metric.Int64Counter
}

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// New builds a Recorder backed by a Prometheus exporter bridge and registers
// it as the global OTel meter provider. Call Shutdown on process exit.
func New() (*Recorder, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m := provider.Meter(meterName)
	r := &Recorder{provider: provider}

	if r.connectorConnected, err = m.Int64UpDownCounter("mcphub.connector.connected",
		metric.WithDescription("Number of connectors currently connected, by server name (1 added on connect, 1 subtracted on disconnect).")); err != nil {
		return nil, err
	}
	if r.toolCallDuration, err = m.Float64Histogram("mcphub.tool_call.duration",
		metric.WithDescription("Latency of dispatched tool calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if r.toolCalls, err = m.Int64Counter("mcphub.tool_call.count",
		metric.WithDescription("Total dispatched tool calls, by server/tool/status.")); err != nil {
		return nil, err
	}
	if r.smartSearches, err = m.Int64Counter("mcphub.smart_search.count",
		metric.WithDescription("Total smart-routing searches, by outcome (auto-invoked/ambiguous/no-match/error).")); err != nil {
		return nil, err
	}
	return r, nil
}

// Shutdown flushes and stops the underlying meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// Handler returns the Prometheus scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.Handler()
}

// SetConnectorConnected records a connector's transition (delta is +1 on
// connect, -1 on disconnect) so the gauge reflects current connected count.
func (r *Recorder) SetConnectorConnected(ctx context.Context, server string, delta int64) {
	if r == nil {
		return
	}
	r.connectorConnected.Add(ctx, delta, metric.WithAttributes(attribute.String("server", server)))
}

// RecordToolCall records one dispatched tool call's latency and outcome.
func (r *Recorder) RecordToolCall(ctx context.Context, server, tool, status string, seconds float64) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	r.toolCallDuration.Record(ctx, seconds, attrs)
	r.toolCalls.Add(ctx, 1, attrs)
}

// RecordSmartSearch records one smart-routing search's outcome.
func (r *Recorder) RecordSmartSearch(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.smartSearches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
