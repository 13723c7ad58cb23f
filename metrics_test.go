package wasmvm

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_ObserveCall_CountsCallsAndTraps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeCall(false)
	m.observeCall(true)

	require.Equal(t, float64(2), counterValue(t, m.calls))
	require.Equal(t, float64(1), counterValue(t, m.traps))
}

func TestMetrics_ObserveCacheHit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeCacheHit()
	require.Equal(t, float64(1), counterValue(t, m.cacheHits))
}

func TestMetrics_NilReceiver_IsNoOp(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.observeCall(true)
		m.observeCacheHit()
	})
}

func TestRuntime_WithMetrics_CountsRealCallsAndCacheHits(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	cfg := NewRuntimeConfig().WithMetrics(metrics).WithCache(NewCache())
	r := NewRuntimeWithConfig(ctx, cfg)
	defer r.Close(ctx)

	wasmBytes := []byte("m")
	info := addModuleInfo()
	compiled, err := r.CompileModule(ctx, wasmBytes, info, newSimpleArtifact(addFn()))
	require.NoError(t, err)
	_, err = r.CompileModule(ctx, wasmBytes, info, newSimpleArtifact(addFn()))
	require.NoError(t, err)
	require.Equal(t, float64(1), counterValue(t, metrics.cacheHits))

	mod, err := r.InstantiateModule(ctx, compiled, nil, nil)
	require.NoError(t, err)
	_, err = mod.ExportedFunction("add").Call(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, float64(1), counterValue(t, metrics.calls))
	require.Equal(t, float64(0), counterValue(t, metrics.traps))
}
