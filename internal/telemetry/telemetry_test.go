package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordOp(context.Background(), "claim", "")
	m.RecordLamports(context.Background(), "claim", 10)
}

func TestRecordOpAndLamports(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter(meterName))
	require.NoError(t, err)

	m.RecordOp(ctx, "claim", "")
	m.RecordOp(ctx, "claim", "EMPTY_ESCROW")
	m.RecordLamports(ctx, "claim", 1000)
	m.RecordLamports(ctx, "claim", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			data, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok, md.Name)
			for _, dp := range data.DataPoints {
				sums[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), sums["bountygraph_operations_total"])
	assert.Equal(t, int64(1000), sums["bountygraph_lamports_moved_total"])
}

func TestInitMeterProviderServesMetrics(t *testing.T) {
	ctx := context.Background()
	p, err := InitMeterProvider(ctx, "telemetry-test")
	require.NoError(t, err)
	defer p.Shutdown(ctx)

	m, err := NewMetrics(p.Meter())
	require.NoError(t, err)
	m.RecordOp(ctx, "fund", "")

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bountygraph_operations"), rec.Body.String())
}
