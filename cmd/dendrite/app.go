package main

import (
	"context"

	"github.com/gradrix/dendrite/internal/config"
	"github.com/gradrix/dendrite/internal/discovery"
	"github.com/gradrix/dendrite/internal/engine"
	"github.com/gradrix/dendrite/internal/improvement"
	"github.com/gradrix/dendrite/internal/learner"
	"github.com/gradrix/dendrite/internal/lifecycle"
	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/loop"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/monitor"
	"github.com/gradrix/dendrite/internal/orchestrator"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/recovery"
	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/relstore/memstore"
	"github.com/gradrix/dendrite/internal/sandbox"
	"github.com/gradrix/dendrite/internal/schema"
	"github.com/gradrix/dendrite/internal/telemetry"
	"github.com/gradrix/dendrite/internal/toolplugin"
	"github.com/gradrix/dendrite/internal/vectorindex"
)

// app bundles every wired component for the CLI's ask/demo/serve/status
// subcommands. Production deployments would swap memstore/MemIndex/Stub for
// the postgres/qdrant/anthropic adapters; this wiring always uses the
// in-memory ones so the CLI runs with zero external dependencies.
type app struct {
	cfg          config.Config
	telemetry    telemetry.Bundle
	store        relstore.Store
	registry     *registry.Registry
	factory      *toolplugin.FactorySource
	deployer     *factoryDeployer
	discovery    *discovery.Discovery
	cache        *pathwaycache.Cache
	orchestrator *orchestrator.Orchestrator
	lifecycle    *lifecycle.Manager
	monitor      *monitor.Monitor
	improvement  *improvement.Engine
	loop         *loop.Loop
	engine       engine.Engine
}

// executeGoal schedules goalText's execution through the app's Engine
// (in-memory by default, Temporal in a worker-backed deployment), so `ask`
// and `demo` gain durable-workflow semantics for free if the CLI is ever
// pointed at a Temporal-backed app.
func (a *app) executeGoal(ctx context.Context, goalText string) (orchestrator.Result, error) {
	out, err := a.engine.Run(ctx, "goal:"+goalText, func(ctx context.Context) (any, error) {
		return a.orchestrator.Execute(ctx, goalText)
	})
	if err != nil {
		return orchestrator.Result{}, err
	}
	return out.(orchestrator.Result), nil
}

type registryToolSource struct{ reg *registry.Registry }

func (s registryToolSource) Definition(_ context.Context, tool model.ToolName) (toolplugin.Definition, bool, error) {
	e, ok := s.reg.Get(tool)
	return e.Definition, ok, nil
}

func newApp(cfg config.Config) *app {
	tel := telemetry.NewNoop()
	store := memstore.New()

	factory := toolplugin.NewFactorySource(demoTools())
	reg := registry.New(factory)
	deployer := newFactoryDeployer(factory)
	for _, e := range demoTools() {
		deployer.seed(e.Definition.Name, e.Source)
	}

	llm := llmclient.NewStub(96, demoResponses())
	index := vectorindex.NewMemIndex()
	disc := discovery.New(index, store, reg, llm)
	cache := pathwaycache.New(cfg.CacheSimilarityThreshold, nil)
	learn := learner.New(store, llm, cfg.PatternSimilarityThreshold)
	validator := schema.NewValidator()
	runtime := sandbox.NewInProcess(demoFuncs())

	policy := recovery.Policy{
		RetryCap: cfg.RetryCap, FallbackCap: cfg.FallbackCap,
		BaseBackoff: cfg.RetryBaseBackoff, BackoffFactor: cfg.RetryFactor,
	}
	orch := orchestrator.New(store, reg, disc, cache, learn, runtime, validator, llm, tel, policy, cfg.ToolTimeout)

	lifecycleMgr := lifecycle.New(reg, store, cache, tel, lifecycle.Policy{
		ArchiveAfter: cfg.ArchiveAfter, ArchiveUsageBelow: cfg.ArchiveUsageBelow,
		AlertSuccessRateMin: cfg.AlertSuccessRateMin, AlertUsesMin: cfg.AlertUsesMin,
	})

	mon := monitor.New(store, cache, deployer, tel, monitor.Policy{
		MonitoringWindow: cfg.MonitoringWindow, BaselineWindow: cfg.BaselineWindow,
		FastRollbackWindow: cfg.FastRollbackWindow, RegressionThreshold: cfg.RegressionThreshold,
		MinExecutions: cfg.MinExecutions,
	})

	improveEngine := improvement.New(store, runtime, deployer, mon, cache, llm, improvement.Gates{
		ShadowAgreementMin: cfg.ShadowAgreementMin, ReplayPassMin: cfg.ReplayPassMin,
		SyntheticPassMin: cfg.SyntheticPassMin, ReplaySampleSize: cfg.ReplaySampleSize,
	})

	bgLoop := loop.New(lifecycleMgr, store, cache, improveEngine, registryToolSource{reg}, tel, loop.Policy{
		CheckInterval: cfg.CheckInterval, MaintenanceInterval: cfg.MaintenanceInterval,
		ImprovementThreshold: cfg.ImprovementThreshold, MinExecutionsForAnalysis: cfg.MinExecutionsForAnalysis,
		MaxOpportunitiesPerCycle: cfg.MaxOpportunitiesPerCycle,
	})

	return &app{
		cfg: cfg, telemetry: tel, store: store, registry: reg, factory: factory, deployer: deployer,
		discovery: disc, cache: cache, orchestrator: orch, lifecycle: lifecycleMgr, monitor: mon,
		improvement: improveEngine, loop: bgLoop, engine: engine.NewInMemory(),
	}
}

// bootstrap refreshes the registry and indexes every catalogued tool's
// description into the vector index, so Find has candidates to rank before
// any goal executes.
func (a *app) bootstrap(ctx context.Context) error {
	if _, err := a.registry.Refresh(ctx); err != nil {
		return err
	}
	for _, tool := range a.registry.List() {
		e, ok := a.registry.Get(tool)
		if !ok {
			continue
		}
		if err := a.discovery.IndexTool(ctx, tool, e.Definition.Description); err != nil {
			return err
		}
	}
	return nil
}
