// Package improvement implements the improvement engine (C9): selecting a
// testing strategy for a candidate tool rewrite, gating it, and deploying
// it with a backup of the previous version (spec §4.6).
package improvement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/sandbox"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

// Strategy is the closed set of testing strategies, tried in priority order:
// shadow > replay > synthetic > manual (spec §4.6).
type Strategy string

const (
	StrategyShadow    Strategy = "shadow"
	StrategyReplay    Strategy = "replay"
	StrategySynthetic Strategy = "synthetic"
	StrategyManual    Strategy = "manual"
)

// Gates holds the pass thresholds for each strategy (spec §4.6).
type Gates struct {
	ShadowAgreementMin float64
	ReplayPassMin      float64
	SyntheticPassMin   float64
	ReplaySampleSize   int
}

// Deployer installs a candidate tool's source as the live version and can
// restore a previous version from backup. The implementation in this module,
// cmd/dendrite's factoryDeployer, keeps tool sources in memory; none writes
// to the tool directory.
type Deployer interface {
	Deploy(ctx context.Context, tool model.ToolName, source []byte) error
	Backup(ctx context.Context, tool model.ToolName) ([]byte, error)
	Restore(ctx context.Context, tool model.ToolName, backup []byte) error
}

// MonitorHandoff starts post-deploy monitoring for a freshly deployed
// version, implemented by internal/monitor.
type MonitorHandoff interface {
	StartMonitoring(ctx context.Context, tool model.ToolName, deployedVersion, previousVersion int) error
}

// Engine runs the improvement algorithm for one tool at a time.
type Engine struct {
	store    relstore.Store
	sandbox  sandbox.Runtime
	deployer Deployer
	monitor  MonitorHandoff
	cache    *pathwaycache.Cache
	llm      llmclient.Backend
	gates    Gates
}

// New builds an Engine over its collaborators.
func New(store relstore.Store, runtime sandbox.Runtime, deployer Deployer, monitor MonitorHandoff, cache *pathwaycache.Cache, llm llmclient.Backend, gates Gates) *Engine {
	return &Engine{store: store, sandbox: runtime, deployer: deployer, monitor: monitor, cache: cache, llm: llm, gates: gates}
}

// Report is the outcome of one Improve call.
type Report struct {
	Deployed   bool
	VersionID  int
	Strategy   Strategy
	GateResult string
}

// Improve generates a candidate rewrite for tool, tests it with the
// highest-priority strategy its characteristics support, and deploys it if
// the corresponding gate passes (spec §4.6).
func (e *Engine) Improve(ctx context.Context, def toolplugin.Definition, reason string) (Report, error) {
	candidateSource, err := e.generateCandidate(ctx, def, reason)
	if err != nil {
		return Report{}, fmt.Errorf("improvement: generate candidate: %w", err)
	}
	candidateHash := contentHash(candidateSource)

	strategy := selectStrategy(def.Characteristics)
	passed, gateDetail, err := e.test(ctx, def, candidateSource, strategy)
	if err != nil {
		return Report{}, fmt.Errorf("improvement: test strategy %s: %w", strategy, err)
	}

	attempt := model.ImprovementAttempt{
		ID: uuid.NewString(), Tool: def.Name, Reason: reason, CandidateHash: candidateHash,
		Strategy: string(strategy), GateResult: gateDetail, CreatedAt: time.Now(),
	}

	if !passed {
		attempt.Status = "failed"
		_ = e.store.SaveImprovementAttempt(ctx, attempt)
		return Report{Deployed: false, Strategy: strategy, GateResult: gateDetail}, nil
	}

	report, err := e.deploy(ctx, def, candidateSource, candidateHash)
	if err != nil {
		attempt.Status = "failed"
		_ = e.store.SaveImprovementAttempt(ctx, attempt)
		return Report{}, fmt.Errorf("improvement: deploy: %w", err)
	}
	attempt.Status = "succeeded"
	attempt.DeployedVersion = report.VersionID
	_ = e.store.SaveImprovementAttempt(ctx, attempt)
	report.Strategy = strategy
	report.GateResult = gateDetail
	return report, nil
}

// selectStrategy picks the highest-priority strategy a tool's declared
// characteristics support: shadow > replay > synthetic > manual.
func selectStrategy(ch *toolplugin.Characteristics) Strategy {
	if ch == nil {
		return StrategyManual
	}
	if ch.SafeForShadowTesting {
		return StrategyShadow
	}
	if ch.TestDataAvailable {
		return StrategyReplay
	}
	if !ch.RequiresMocking {
		return StrategySynthetic
	}
	return StrategyManual
}

func (e *Engine) test(ctx context.Context, def toolplugin.Definition, candidate []byte, strategy Strategy) (bool, string, error) {
	switch strategy {
	case StrategyShadow:
		return e.testShadow(ctx, def, candidate)
	case StrategyReplay:
		return e.testReplay(ctx, def, candidate)
	case StrategySynthetic:
		return e.testSynthetic(ctx, def, candidate)
	default:
		return false, "manual review required, not auto-deployable", nil
	}
}

// testShadow runs the candidate alongside the live tool against its recent
// real invocations and requires ShadowAgreementMin agreement on output.
func (e *Engine) testShadow(ctx context.Context, def toolplugin.Definition, candidate []byte) (bool, string, error) {
	recent, err := e.store.RecentInvocationsByTool(ctx, def.Name, e.gates.ReplaySampleSize)
	if err != nil {
		return false, "", err
	}
	if len(recent) == 0 {
		return false, "no recent invocations to shadow against", nil
	}
	agree := 0
	for _, inv := range recent {
		result, err := e.sandbox.Run(ctx, sandbox.Invocation{Tool: "candidate:" + string(def.Name), Params: inv.Params})
		if err == nil && result.Success && outputsAgree(result.Output, inv.Output) {
			agree++
		}
	}
	rate := float64(agree) / float64(len(recent))
	detail := fmt.Sprintf("shadow agreement %.2f over %d calls", rate, len(recent))
	return rate >= e.gates.ShadowAgreementMin, detail, nil
}

// testReplay re-runs the candidate against the tool's most recent recorded
// invocations (up to ReplaySampleSize; declared test cases are not used
// here) and requires both ReplayPassMin pass
// rate and zero regressions against the old recorded result on the same
// inputs (spec §4.6 step 4) — a candidate that runs but silently returns a
// different answer than the live tool did must fail the gate exactly like
// testShadow's outputsAgree check does for the shadow strategy.
func (e *Engine) testReplay(ctx context.Context, def toolplugin.Definition, candidate []byte) (bool, string, error) {
	recent, err := e.store.RecentInvocationsByTool(ctx, def.Name, e.gates.ReplaySampleSize)
	if err != nil {
		return false, "", err
	}
	if len(recent) == 0 {
		return false, "no recorded invocations available for replay", nil
	}
	passed := 0
	regressions := 0
	for _, inv := range recent {
		result, err := e.sandbox.Run(ctx, sandbox.Invocation{Tool: "candidate:" + string(def.Name), Params: inv.Params})
		success := err == nil && result.Success
		if success {
			passed++
		}
		if inv.Success && (!success || !outputsAgree(result.Output, inv.Output)) {
			regressions++
		}
	}
	rate := float64(passed) / float64(len(recent))
	detail := fmt.Sprintf("replay pass rate %.2f over %d calls, %d regressions", rate, len(recent), regressions)
	return rate >= e.gates.ReplayPassMin && regressions == 0, detail, nil
}

// testSynthetic runs the candidate against the tool's declared TestCases
// and requires a perfect pass rate (SyntheticPassMin defaults to 1.0).
func (e *Engine) testSynthetic(ctx context.Context, def toolplugin.Definition, candidate []byte) (bool, string, error) {
	if len(def.TestCases) == 0 {
		return false, "no synthetic test cases declared", nil
	}
	passed := 0
	for _, tc := range def.TestCases {
		result, err := e.sandbox.Run(ctx, sandbox.Invocation{Tool: "candidate:" + string(def.Name), Params: tc.Params})
		if err == nil && result.Success && outputsAgree(result.Output, tc.Expected) {
			passed++
		}
	}
	rate := float64(passed) / float64(len(def.TestCases))
	detail := fmt.Sprintf("synthetic pass rate %.2f over %d cases", rate, len(def.TestCases))
	return rate >= e.gates.SyntheticPassMin, detail, nil
}

func (e *Engine) deploy(ctx context.Context, def toolplugin.Definition, candidate []byte, candidateHash string) (Report, error) {
	backup, err := e.deployer.Backup(ctx, def.Name)
	if err != nil {
		return Report{}, fmt.Errorf("backup before deploy: %w", err)
	}
	if err := e.deployer.Deploy(ctx, def.Name, candidate); err != nil {
		return Report{}, fmt.Errorf("deploy candidate: %w", err)
	}

	previous, err := e.store.LatestToolVersion(ctx, def.Name)
	previousVersion := 0
	if err == nil {
		previousVersion = previous.Version
	}
	version := model.ToolVersion{
		Tool: def.Name, Version: previousVersion + 1, ContentHash: candidateHash,
		AuthorKind: "generated", Reason: "improvement engine auto-deploy", CreatedAt: time.Now(),
	}
	if err := e.store.AppendToolVersion(ctx, version); err != nil {
		_ = e.deployer.Restore(ctx, def.Name, backup)
		return Report{}, fmt.Errorf("record version: %w", err)
	}

	e.cache.InvalidateByHash(ctx, def.Name, candidateHash)
	if err := e.monitor.StartMonitoring(ctx, def.Name, version.Version, previousVersion); err != nil {
		return Report{}, fmt.Errorf("start monitoring: %w", err)
	}
	return Report{Deployed: true, VersionID: version.Version}, nil
}

func (e *Engine) generateCandidate(ctx context.Context, def toolplugin.Definition, reason string) ([]byte, error) {
	text, err := e.llm.Complete(ctx, llmclient.Prompt{
		System: "Rewrite the tool implementation to address the stated failure reason. Return only source code.",
		User:   fmt.Sprintf("tool=%s reason=%s", def.Name, reason),
	})
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func outputsAgree(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
