// Package loop implements the autonomous loop (C11): a ticker-driven
// background cycle that reconciles tool lifecycle, detects improvement
// opportunities up to a per-cycle cap, recomputes tool statistics hourly, and
// runs periodic maintenance (spec §4.8). The loop does not check deployment
// health; monitor.Monitor runs those checks in its own goroutine per
// deployment session.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/gradrix/dendrite/internal/improvement"
	"github.com/gradrix/dendrite/internal/lifecycle"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/telemetry"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

// Improver runs the improvement engine for one tool, implemented by
// internal/improvement.Engine.
type Improver interface {
	Improve(ctx context.Context, def toolplugin.Definition, reason string) (improvement.Report, error)
}

// ToolSource resolves a tool name to its discoverable Definition, used when
// the loop decides a tool is worth improving.
type ToolSource interface {
	Definition(ctx context.Context, tool model.ToolName) (toolplugin.Definition, bool, error)
}

// Policy holds the loop's cadence and opportunity-detection thresholds
// (spec §4.8).
type Policy struct {
	CheckInterval            time.Duration
	MaintenanceInterval      time.Duration
	ImprovementThreshold     float64
	MinExecutionsForAnalysis int
	MaxOpportunitiesPerCycle int
}

// Loop drives the background cycle.
type Loop struct {
	lifecycle  *lifecycle.Manager
	store      relstore.Store
	cache      *pathwaycache.Cache
	improver   Improver
	toolSource ToolSource
	telemetry  telemetry.Bundle
	policy     Policy
}

// New builds a Loop over its collaborators.
func New(lifecycleMgr *lifecycle.Manager, store relstore.Store, cache *pathwaycache.Cache, improver Improver, toolSource ToolSource, tel telemetry.Bundle, policy Policy) *Loop {
	return &Loop{lifecycle: lifecycleMgr, store: store, cache: cache, improver: improver, toolSource: toolSource, telemetry: tel, policy: policy}
}

// Run blocks, driving check cycles, the hourly tool-statistics recompute, and
// maintenance cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	checkTicker := time.NewTicker(l.policy.CheckInterval)
	statsTicker := time.NewTicker(time.Hour)
	maintenanceTicker := time.NewTicker(l.policy.MaintenanceInterval)
	defer checkTicker.Stop()
	defer statsTicker.Stop()
	defer maintenanceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkTicker.C:
			if err := l.runCheckCycle(ctx); err != nil {
				l.telemetry.Log.Error(ctx, "loop: check cycle failed", "err", err)
			}
		case <-statsTicker.C:
			if _, err := l.recomputeToolStatistics(ctx); err != nil {
				l.telemetry.Log.Error(ctx, "loop: tool statistics recompute failed", "err", err)
			}
		case <-maintenanceTicker.C:
			l.runMaintenanceCycle(ctx)
		}
	}
}

// runCheckCycle runs one check_interval tick: lifecycle reconciliation
// followed by opportunity detection, capped at MaxOpportunitiesPerCycle
// (spec §4.8).
func (l *Loop) runCheckCycle(ctx context.Context) error {
	alerts, err := l.lifecycle.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("loop: reconcile: %w", err)
	}

	opportunities := l.detectOpportunities(ctx)
	attempted := 0
	for _, tool := range opportunities {
		if attempted >= l.policy.MaxOpportunitiesPerCycle {
			l.telemetry.Log.Info(ctx, "loop: opportunity cap reached this cycle", "cap", l.policy.MaxOpportunitiesPerCycle)
			break
		}
		def, ok, err := l.toolSource.Definition(ctx, tool)
		if err != nil || !ok {
			continue
		}
		if _, err := l.improver.Improve(ctx, def, "autonomous improvement threshold breached"); err != nil {
			l.telemetry.Log.Error(ctx, "loop: improvement attempt failed", "tool", string(tool), "err", err)
		}
		attempted++
	}

	for _, alert := range alerts {
		l.telemetry.Log.Warn(ctx, "loop: tool alert surfaced", "tool", string(alert.Tool), "success_rate", alert.SuccessRate)
	}
	return nil
}

// detectOpportunities finds tools whose success rate has fallen below
// ImprovementThreshold with enough volume to judge (spec §4.8).
func (l *Loop) detectOpportunities(ctx context.Context) []model.ToolName {
	names, err := l.store.ListToolNames(ctx)
	if err != nil {
		return nil
	}
	var opportunities []model.ToolName
	for _, name := range names {
		stats, err := l.store.GetToolStatistics(ctx, name)
		if err != nil {
			continue
		}
		if stats.Total >= l.policy.MinExecutionsForAnalysis && stats.SuccessRate() < l.policy.ImprovementThreshold {
			opportunities = append(opportunities, name)
		}
	}
	return opportunities
}

// runMaintenanceCycle evicts stale invalid pathways, the auto-cleanup task
// spec §4.8 schedules on maintenance_interval, and recomputes ToolStatistics
// from the invocation log per §4.9.
func (l *Loop) runMaintenanceCycle(ctx context.Context) {
	evicted := l.cache.EvictInvalid(l.policy.MaintenanceInterval)

	recomputed, err := l.recomputeToolStatistics(ctx)
	if err != nil {
		l.telemetry.Log.Error(ctx, "loop: tool statistics recompute failed", "err", err)
	}

	l.telemetry.Log.Info(ctx, "loop: maintenance cycle complete",
		"pathways_evicted", evicted, "tools_recomputed", recomputed)
}
