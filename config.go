package wasmvm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wasmvm/wasmvm/internal/wasm"
)

// RuntimeConfig controls the behavior of a Runtime, set with NewRuntimeConfig.
type RuntimeConfig struct {
	enabledFeatures wasm.Features
	tunables        wasm.Tunables
	ctx             context.Context
	cache           Cache
	log             *logrus.Logger
	metrics         *Metrics
	nanCanonical    bool
}

// NewRuntimeConfig returns a RuntimeConfig configured for the WebAssembly
// 1.0 (20191205) feature set and this platform's default Tunables (see
// wasm.DefaultTunables).
func NewRuntimeConfig() *RuntimeConfig {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return &RuntimeConfig{
		enabledFeatures: wasm.Features20191205,
		tunables:        wasm.DefaultTunables(),
		ctx:             context.Background(),
		log:             log,
	}
}

// WithLogger replaces the diagnostic logger used for non-fatal anomalies:
// compilation-cache entries that can't be reused, and similar host-operator
// visible warnings. It is never consulted on the call gate's hot path. A nil
// logger disables these warnings entirely.
func (c *RuntimeConfig) WithLogger(log *logrus.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.log = log
	return ret
}

// WithMetrics wires m's counters into every call and cache lookup made by
// Runtimes built from this config. Nil (the default, see NewRuntimeConfig)
// disables the increments.
func (c *RuntimeConfig) WithMetrics(m *Metrics) *RuntimeConfig {
	ret := c.clone()
	ret.metrics = m
	return ret
}

// WithNaNCanonicalization forces every float32/float64 result returned
// across the call gate (C6) to a canonical NaN bit pattern whenever it is
// NaN, trading the minor cost of an IsNaN check per float result for
// reproducible output across hosts that might otherwise observe whichever
// NaN payload a particular arithmetic operation happened to produce.
// Disabled by default.
func (c *RuntimeConfig) WithNaNCanonicalization(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.nanCanonical = enabled
	return ret
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithContext records ctx on the config; a nil ctx is recorded as
// context.Background. Runtimes built from the config do not read it: a start
// function runs with context.Background, and Function.Call replaces a nil
// ctx with context.Background.
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithCache shares one Cache's compiled Modules across every Runtime
// created from this config.
func (c *RuntimeConfig) WithCache(ca Cache) *RuntimeConfig {
	ret := c.clone()
	ret.cache = ca
	return ret
}

// WithFinishedFeatures enables every proposal that has reached Stage 4,
// beyond the WebAssembly 1.0 baseline.
func (c *RuntimeConfig) WithFinishedFeatures() *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = wasm.FeaturesFinished
	return ret
}

// WithFeatureMutableGlobal toggles the mutable-globals proposal, which
// defaults to enabled as it finished before WebAssembly 1.0.
func (c *RuntimeConfig) WithFeatureMutableGlobal(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMutableGlobal, enabled)
	return ret
}

// WithFeatureSignExtensionOps toggles the sign-extension-ops proposal.
func (c *RuntimeConfig) WithFeatureSignExtensionOps(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureSignExtensionOps, enabled)
	return ret
}

// WithFeatureMultiValue toggles the multi-value proposal.
func (c *RuntimeConfig) WithFeatureMultiValue(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMultiValue, enabled)
	return ret
}

// WithFeatureBulkMemoryOperations toggles the bulk-memory-operations
// proposal (passive data/element segments, memory.copy, table.init, ...).
func (c *RuntimeConfig) WithFeatureBulkMemoryOperations(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureBulkMemoryOperations, enabled)
	return ret
}

// WithFeatureReferenceTypes toggles the reference-types proposal
// (externref, table operations beyond funcref).
func (c *RuntimeConfig) WithFeatureReferenceTypes(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureReferenceTypes, enabled)
	return ret
}

// WithFeatureExceptionHandling toggles the exception-handling proposal
// (tags, try/catch), gating the trap subsystem's exception path (C7).
func (c *RuntimeConfig) WithFeatureExceptionHandling(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureExceptionHandling, enabled)
	return ret
}

// WithMemoryStaticBoundPages overrides the static memory bound (C4): a
// memory whose declared maximum is at most this many pages gets the static
// style, which reserves this many pages up front; a memory with no maximum,
// or a larger one, gets the dynamic style.
func (c *RuntimeConfig) WithMemoryStaticBoundPages(pages uint64) *RuntimeConfig {
	ret := c.clone()
	ret.tunables.StaticMemoryBoundPages = pages
	return ret
}

// WithMemoryGuardBytes overrides both the static and dynamic memory guard
// region sizes (C4). Use a smaller value to reduce address space reserved
// per memory at some cost to how aggressively unchecked accesses can be
// optimized by a real generated-code backend.
func (c *RuntimeConfig) WithMemoryGuardBytes(n uint64) *RuntimeConfig {
	ret := c.clone()
	ret.tunables.StaticMemoryGuardBytes = n
	ret.tunables.DynamicMemoryGuardBytes = n
	return ret
}

// ModuleConfig configures how a CompiledModule is turned into an Instance:
// its visible name and which function, if any, runs automatically at
// instantiation.
type ModuleConfig struct {
	name                  string
	overrideStartFunction *string
}

// NewModuleConfig returns a ModuleConfig with no name override and the
// module's declared start function (if any) left intact.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{}
}

func (c *ModuleConfig) clone() *ModuleConfig {
	ret := *c
	return &ret
}

// WithName overrides the module's name, which otherwise defaults to what
// was decoded from its own metadata.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	ret := c.clone()
	ret.name = name
	return ret
}

// WithStartFunction overrides which exported function, by name, runs
// automatically once instantiation's import resolution and segment
// application steps complete. Pass "" to suppress even a declared start
// function.
func (c *ModuleConfig) WithStartFunction(name string) *ModuleConfig {
	ret := c.clone()
	ret.overrideStartFunction = &name
	return ret
}
