package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: ExporterConfig{Type: "carrier-pigeon"}})
	assert.Error(t, err)
}

func TestSetupMetrics_RecordsCounters(t *testing.T) {
	reader := sdk.NewManualReader()
	provider := sdk.NewMeterProvider(sdk.WithReader(reader))

	require.NoError(t, SetupMetrics(provider, "test"))

	ctx := context.Background()
	RecordVeto(ctx, "posts", "insert")
	RecordVeto(ctx, "posts", "insert")
	RecordReaped(ctx, "posts", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]int64{}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					found[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(2), found["dochooks.operations.vetoed"])
	assert.NotContains(t, found, "dochooks.reaper.removed")
}
