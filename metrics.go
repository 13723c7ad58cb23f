package wasmvm

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters a Runtime increments when configured with
// RuntimeConfig.WithMetrics. A nil *Metrics (the default) disables every
// increment, so a caller that never asks for metrics pays nothing beyond one
// nil check per call.
type Metrics struct {
	calls     prometheus.Counter
	traps     prometheus.Counter
	cacheHits prometheus.Counter
}

// NewMetrics registers three counters (calls, traps, cache hits) against reg
// and returns a Metrics ready to pass to RuntimeConfig.WithMetrics. Passing a
// fresh prometheus.NewRegistry() keeps these counters out of the default
// global registry, letting a host embed more than one Runtime without label
// collisions.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasm_calls_total",
			Help: "Total number of exported function calls made through this runtime.",
		}),
		traps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasm_traps_total",
			Help: "Total number of calls that returned a RuntimeError{Kind: RuntimeErrorTrap}.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasm_cache_hits_total",
			Help: "Total number of CompileModule calls served from the compilation cache.",
		}),
	}
	reg.MustRegister(m.calls, m.traps, m.cacheHits)
	return m
}

func (m *Metrics) observeCall(trapped bool) {
	if m == nil {
		return
	}
	m.calls.Inc()
	if trapped {
		m.traps.Inc()
	}
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
