// Package rhema wires every kernel component into a single constructible
// unit: safety, coordination, storage, cache, search, proactive context,
// pattern execution, synthesis, telemetry, and resilience. Kernel is the
// single composition root built from this module's own components.
package rhema

import (
	"context"
	"fmt"

	"github.com/fugue-ai/rhema-sub012/cache"
	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/coordinator"
	"github.com/fugue-ai/rhema-sub012/embedding"
	"github.com/fugue-ai/rhema-sub012/objectstore"
	"github.com/fugue-ai/rhema-sub012/pattern"
	"github.com/fugue-ai/rhema-sub012/proactive"
	"github.com/fugue-ai/rhema-sub012/resilience"
	"github.com/fugue-ai/rhema-sub012/rhlog"
	"github.com/fugue-ai/rhema-sub012/safety"
	"github.com/fugue-ai/rhema-sub012/search"
	"github.com/fugue-ai/rhema-sub012/synthesis"
	"github.com/fugue-ai/rhema-sub012/telemetry"
	"github.com/fugue-ai/rhema-sub012/vectorstore"
)

// Kernel is the fully wired repository-scoped knowledge/coordination
// runtime: every component constructed and handed its collaborators, ready
// for an embedding application to drive.
type Kernel struct {
	Config *config.Config
	Logger rhlog.Logger

	Safety      *safety.Validator
	Coordinator *coordinator.Coordinator

	ObjectStore objectstore.Store
	VectorStore vectorstore.Store
	Embedder    embedding.Embedder

	Cache     *cache.Cache
	Search    *search.Engine
	Proactive *proactive.Manager

	Pattern   *pattern.Executor
	Synthesis *synthesis.Synthesizer

	Telemetry *telemetry.Provider
	Metrics   map[string]*telemetry.Registry

	CircuitBreaker *resilience.CircuitBreaker
	RetryConfig    *resilience.RetryConfig

	shutdown []func(context.Context) error
}

// Dependencies supplies the external capabilities a Kernel requires: a
// vector store, an embedding capability, and an object store. A caller that
// passes nil for any of these gets the in-process reference implementation
// this module ships (vectorstore.MemoryStore, embedding.Deterministic,
// objectstore.MemoryStore) - adequate for single-instance operation and for
// every component's tests, per those packages' own doc comments.
type Dependencies struct {
	VectorStore vectorstore.Store
	Embedder    embedding.Embedder
	ObjectStore objectstore.Store
}

// New builds a Kernel from cfg, logger, and deps. Building the telemetry
// provider starts its export pipeline; New does not start the cache or
// proactive warming loops or the pattern executor's metrics sampler - call
// Start for those once the caller is ready to run background work.
func New(ctx context.Context, cfg *config.Config, logger rhlog.Logger, deps Dependencies) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = rhlog.NoOpLogger{}
	}

	vstore := deps.VectorStore
	if vstore == nil {
		vstore = vectorstore.NewMemoryStore(cfg.VectorStore)
	}
	embedder := deps.Embedder
	if embedder == nil {
		embedder = embedding.NewDeterministic(cfg.VectorStore.Dimension)
	}
	ostore := deps.ObjectStore
	if ostore == nil {
		ostore = objectstore.NewMemoryStore()
	}

	validator := safety.NewValidator(cfg.MaxDependencies)
	coord := coordinator.New(cfg, rhlog.Component(logger, "coordinator"))

	c := cache.New(cfg.Cache, ostore, vstore, rhlog.Component(logger, "cache"))
	searchEngine := search.New(embedder, vstore, c, cfg.Search)
	proactiveMgr := proactive.New(searchEngine, c, cfg.Proactive, rhlog.Component(logger, "proactive"))

	patternExec := pattern.NewExecutor(cfg.Pattern, cfg.EventQueueDepth, rhlog.Component(logger, "pattern"))
	synth := synthesis.New(synthesis.DefaultConfig())

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.ProviderConfig{
		ServiceName: "rhema-kernel",
		Exporter:    telemetry.ExporterStdout,
	}, cfg.EventQueueDepth)
	if err != nil {
		return nil, fmt.Errorf("rhema: build telemetry provider: %w", err)
	}

	metrics := map[string]*telemetry.Registry{
		"cache":       telemetryProvider.Registry("cache", 0),
		"coordinator": telemetryProvider.Registry("coordinator", 0),
		"search":      telemetryProvider.Registry("search", 0),
		"proactive":   telemetryProvider.Registry("proactive", 0),
		"pattern":     telemetryProvider.Registry("pattern", 0),
		"synthesis":   telemetryProvider.Registry("synthesis", 0),
	}

	cb := resilience.New(resilience.DefaultConfig())

	k := &Kernel{
		Config:         cfg,
		Logger:         logger,
		Safety:         validator,
		Coordinator:    coord,
		ObjectStore:    ostore,
		VectorStore:    vstore,
		Embedder:       embedder,
		Cache:          c,
		Search:         searchEngine,
		Proactive:      proactiveMgr,
		Pattern:        patternExec,
		Synthesis:      synth,
		Telemetry:      telemetryProvider,
		Metrics:        metrics,
		CircuitBreaker: cb,
		RetryConfig:    resilience.DefaultRetryConfig(),
	}
	return k, nil
}

// Start launches every component's background loop: the cache's
// intelligent-warming loop, the proactive warming loop, and the pattern
// executor's periodic metrics sampling. Pattern events go to
// Pattern.Monitor; no component publishes to Telemetry.Events.
func (k *Kernel) Start(ctx context.Context) {
	k.Cache.StartWarming(ctx)
	k.Proactive.StartWarmingLoop(ctx)
	k.Pattern.StartMetricsSampling(ctx)
	k.shutdown = append(k.shutdown, func(context.Context) error {
		k.Proactive.Close()
		return nil
	})
}

// Close stops the proactive warming loop and flushes the telemetry
// provider. The cache warming loop and the metrics sampler stop when the
// ctx given to Start is cancelled. Safe to call once; subsequent calls are
// no-ops on the component side (Proactive.Close is itself idempotent).
func (k *Kernel) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range k.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := k.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("rhema: shutdown errors: %v", errs)
	}
	return nil
}

// Snapshot returns the current coordinator Snapshot the Safety validator
// checks mutations against: a pure, side-effect-free view exposing
// predicate functions over immutable state.
func (k *Kernel) Snapshot() safety.Snapshot {
	return k.Coordinator.Snapshot()
}
