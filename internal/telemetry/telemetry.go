// Package telemetry exposes ledger counters through OpenTelemetry with a
// Prometheus exporter.
package telemetry

import (
	"context"
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "bountygraph"

var (
	AttrOp     = attribute.Key("op")
	AttrResult = attribute.Key("result")
	AttrFlow   = attribute.Key("flow")
)

// Provider owns the meter provider and the /metrics handler.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// InitMeterProvider installs a global MeterProvider backed by a dedicated
// Prometheus registry.
func InitMeterProvider(ctx context.Context, serviceName string) (*Provider, error) {
	if serviceName == "" {
		serviceName = "bountygraph"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	return &Provider{
		MeterProvider: provider,
		Handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}, nil
}

func (p *Provider) Meter() metric.Meter {
	return p.MeterProvider.Meter(meterName)
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}

// Metrics records ledger operations. A nil *Metrics is a no-op.
type Metrics struct {
	ops      metric.Int64Counter
	lamports metric.Int64Counter
}

func NewMetrics(m metric.Meter) (*Metrics, error) {
	ops, err := m.Int64Counter("bountygraph_operations_total", metric.WithDescription("Ledger operations by op and result code"))
	if err != nil {
		return nil, err
	}
	lamports, err := m.Int64Counter("bountygraph_lamports_moved_total", metric.WithDescription("Lamports moved by flow (fund, claim, resolve, deposit)"), metric.WithUnit("{lamport}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{ops: ops, lamports: lamports}, nil
}

// RecordOp counts one operation; result is "ok" or the rejection code.
func (m *Metrics) RecordOp(ctx context.Context, op, result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.ops.Add(ctx, 1, metric.WithAttributes(AttrOp.String(op), AttrResult.String(result)))
}

func (m *Metrics) RecordLamports(ctx context.Context, flow string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	if amount > math.MaxInt64 {
		amount = math.MaxInt64
	}
	m.lamports.Add(ctx, int64(amount), metric.WithAttributes(AttrFlow.String(flow)))
}
