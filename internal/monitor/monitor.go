// Package monitor implements the deployment monitor (C10): post-deploy
// health checks on a three-tier schedule (immediate/fast/standard) and
// rollback on regression (spec §4.7).
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/telemetry"
)

// Restorer rolls a tool's deployed source back to a previous version.
// Implemented by the same deployer the improvement engine uses.
type Restorer interface {
	RestoreVersion(ctx context.Context, tool model.ToolName, version int) error
}

// Policy holds the monitor's window and threshold configuration (spec §4.7).
type Policy struct {
	MonitoringWindow    time.Duration
	BaselineWindow      time.Duration
	FastRollbackWindow  time.Duration
	RegressionThreshold float64
	MinExecutions       int
}

// Monitor tracks active deployment-monitoring sessions, one goroutine each.
type Monitor struct {
	store     relstore.Store
	cache     *pathwaycache.Cache
	restorer  Restorer
	telemetry telemetry.Bundle
	policy    Policy

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds a Monitor over its collaborators.
func New(store relstore.Store, cache *pathwaycache.Cache, restorer Restorer, tel telemetry.Bundle, policy Policy) *Monitor {
	return &Monitor{store: store, cache: cache, restorer: restorer, telemetry: tel, policy: policy, cancels: make(map[string]context.CancelFunc)}
}

// StartMonitoring opens a monitoring session for a freshly deployed version
// and spawns its supervising goroutine, satisfying
// improvement.MonitorHandoff.
func (m *Monitor) StartMonitoring(ctx context.Context, tool model.ToolName, deployedVersion, previousVersion int) error {
	now := time.Now()
	baselineStats, err := m.store.GetToolStatistics(ctx, tool)
	baselineSuccess := 0.0
	if err == nil {
		baselineSuccess = baselineStats.SuccessRate()
	}

	session := model.DeploymentSession{
		ID: uuid.NewString(), Tool: tool, DeployedVersion: deployedVersion, PreviousVersion: previousVersion,
		WindowStart: now, WindowEnd: now.Add(m.policy.MonitoringWindow),
		BaselineStart: now.Add(-m.policy.BaselineWindow), BaselineSuccess: baselineSuccess,
		Status: "monitoring",
	}
	if err := m.store.SaveDeploymentSession(ctx, session); err != nil {
		return fmt.Errorf("monitor: save session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[session.ID] = cancel
	m.mu.Unlock()

	go m.supervise(runCtx, session)
	return nil
}

// supervise polls on progressively longer intervals across the three
// tiers — immediate (<1min), fast (<1hr), standard (remainder of the
// monitoring window) — rolling back as soon as any tier's check fails.
func (m *Monitor) supervise(ctx context.Context, session model.DeploymentSession) {
	defer m.clearCancel(session.ID)

	tiers := []struct {
		name     string
		deadline time.Duration
		interval time.Duration
	}{
		{"immediate", time.Minute, 10 * time.Second},
		{"fast", m.policy.FastRollbackWindow, time.Minute},
		{"standard", m.policy.MonitoringWindow, 10 * time.Minute},
	}

	for _, tier := range tiers {
		deadline := time.Now().Add(tier.deadline)
		ticker := time.NewTicker(tier.interval)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				rolledBack, err := m.check(ctx, session, tier.name)
				if err != nil {
					m.telemetry.Log.Error(ctx, "monitor: health check failed", "tool", string(session.Tool), "err", err)
					continue
				}
				if rolledBack {
					ticker.Stop()
					return
				}
			}
		}
		ticker.Stop()
	}

	session.Status = "completed"
	_ = m.store.SaveDeploymentSession(ctx, session)
}

// Tier-specific constants for the immediate and fast rollback triggers
// (spec §4.7). The standard tier has no fixed constant of its own: it
// evaluates Policy.RegressionThreshold over Policy.MinExecutions.
const (
	immediateConsecutiveFailures = 3
	fastTierMinSamples           = 10
	fastTierAbsoluteRegression   = 0.30
)

// check dispatches to the tier-specific trigger condition: immediate tiers
// watch for load-time/signature failures and consecutive-failure runs on the
// handful of calls since deploy, fast tiers watch for a gross absolute
// failure-rate swing over the last fastTierMinSamples calls, and the
// standard tier watches for a smaller but sustained drop against baseline
// over the tool's all-time statistics (spec §4.7).
func (m *Monitor) check(ctx context.Context, session model.DeploymentSession, tier string) (bool, error) {
	switch tier {
	case "immediate":
		return m.checkImmediate(ctx, session)
	case "fast":
		return m.checkFast(ctx, session)
	default:
		return m.checkStandard(ctx, session)
	}
}

// checkImmediate rolls back on the first sign of trouble after deploy: a
// load-time error or signature-mismatch exception on any of the most recent
// calls, or immediateConsecutiveFailures consecutive failures outright.
func (m *Monitor) checkImmediate(ctx context.Context, session model.DeploymentSession) (bool, error) {
	recent, err := m.store.RecentInvocationsByTool(ctx, session.Tool, immediateConsecutiveFailures)
	if err != nil || len(recent) == 0 {
		return false, nil
	}

	reason := ""
	for _, inv := range recent {
		if inv.Error != nil && (inv.Error.Kind == "load_error" || inv.Error.Kind == "signature_mismatch") {
			reason = fmt.Sprintf("immediate-tier %s on %q", inv.Error.Kind, inv.Tool)
			break
		}
	}
	if reason == "" && len(recent) == immediateConsecutiveFailures {
		allFailed := true
		for _, inv := range recent {
			if inv.Success {
				allFailed = false
				break
			}
		}
		if allFailed {
			reason = fmt.Sprintf("immediate-tier %d consecutive failures", immediateConsecutiveFailures)
		}
	}

	observed := observedRate(recent)
	if err := m.recordHealthCheck(ctx, session, "immediate", observed, reason != ""); err != nil {
		return false, err
	}
	if reason == "" {
		return false, nil
	}
	return true, m.rollback(ctx, session, reason)
}

// checkFast rolls back when the recent failure rate over fastTierMinSamples
// calls exceeds baseline by more than fastTierAbsoluteRegression, an
// absolute threshold distinct from the standard tier's RegressionThreshold.
func (m *Monitor) checkFast(ctx context.Context, session model.DeploymentSession) (bool, error) {
	recent, err := m.store.RecentInvocationsByTool(ctx, session.Tool, fastTierMinSamples)
	if err != nil || len(recent) < fastTierMinSamples {
		return false, nil
	}

	observed := observedRate(recent)
	regressed := session.BaselineSuccess-observed > fastTierAbsoluteRegression
	if err := m.recordHealthCheck(ctx, session, "fast", observed, regressed); err != nil {
		return false, err
	}
	if !regressed {
		return false, nil
	}
	reason := fmt.Sprintf("fast-tier regression: observed %.2f vs baseline %.2f over last %d calls (>%.0f%% absolute)",
		observed, session.BaselineSuccess, len(recent), fastTierAbsoluteRegression*100)
	return true, m.rollback(ctx, session, reason)
}

// checkStandard rolls back when the tool's all-time success rate has
// drifted more than Policy.RegressionThreshold below baseline, once the
// tool's statistics row counts at least Policy.MinExecutions calls. That row
// covers every recorded call, including calls made before the deploy; it is
// not a rolling window over post-deploy calls.
func (m *Monitor) checkStandard(ctx context.Context, session model.DeploymentSession) (bool, error) {
	stats, err := m.store.GetToolStatistics(ctx, session.Tool)
	if err != nil {
		return false, nil // no invocations yet, nothing to evaluate.
	}
	if stats.Total < m.policy.MinExecutions {
		return false, nil
	}

	observed := stats.SuccessRate()
	regressed := session.BaselineSuccess-observed > m.policy.RegressionThreshold
	if err := m.recordHealthCheck(ctx, session, "standard", observed, regressed); err != nil {
		return false, err
	}
	if !regressed {
		return false, nil
	}
	reason := fmt.Sprintf("standard-tier regression: observed %.2f vs baseline %.2f", observed, session.BaselineSuccess)
	return true, m.rollback(ctx, session, reason)
}

func (m *Monitor) recordHealthCheck(ctx context.Context, session model.DeploymentSession, tier string, observed float64, regressed bool) error {
	verdict := "ok"
	if regressed {
		verdict = "rollback"
	}
	if err := m.store.AppendDeploymentHealthCheck(ctx, model.DeploymentHealthCheck{
		SessionID: session.ID, At: time.Now(), Tier: tier,
		ObservedRate: observed, BaselineRate: session.BaselineSuccess, Verdict: verdict,
	}); err != nil {
		return fmt.Errorf("monitor: append health check: %w", err)
	}
	return nil
}

func observedRate(invocations []model.ToolInvocation) float64 {
	if len(invocations) == 0 {
		return 0
	}
	success := 0
	for _, inv := range invocations {
		if inv.Success {
			success++
		}
	}
	return float64(success) / float64(len(invocations))
}

func (m *Monitor) rollback(ctx context.Context, session model.DeploymentSession, reason string) error {
	if err := m.restorer.RestoreVersion(ctx, session.Tool, session.PreviousVersion); err != nil {
		return fmt.Errorf("monitor: restore version: %w", err)
	}
	m.cache.InvalidateByTool(ctx, session.Tool)

	session.Status = "rolled_back"
	if err := m.store.SaveDeploymentSession(ctx, session); err != nil {
		return fmt.Errorf("monitor: save session after rollback: %w", err)
	}
	if err := m.store.SaveDeploymentRollback(ctx, model.DeploymentRollback{
		SessionID: session.ID, RestoredVersion: session.PreviousVersion, Reason: reason, At: time.Now(),
	}); err != nil {
		return fmt.Errorf("monitor: save rollback record: %w", err)
	}
	m.telemetry.Log.Warn(ctx, "deployment rolled back", "tool", string(session.Tool), "reason", reason)
	return nil
}

func (m *Monitor) clearCancel(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, sessionID)
}

// StopAll cancels every active monitoring goroutine, used on shutdown.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
}
