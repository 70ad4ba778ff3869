// Package lifecycle implements the tool lifecycle manager (C8): reconciling
// the registry against the tool directory, alerting on degraded tools, and
// archiving long-deleted low-value tools (spec §4.5).
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/telemetry"
)

// Alert is emitted for a tool whose recent success rate has degraded.
type Alert struct {
	Tool        model.ToolName
	SuccessRate float64
	Uses        int
}

// Policy bounds the reconcile algorithm's thresholds (spec §4.5).
type Policy struct {
	ArchiveAfter        time.Duration
	ArchiveUsageBelow   int
	AlertSuccessRateMin float64
	AlertUsesMin        int
}

// Manager reconciles tool lifecycle state.
type Manager struct {
	registry  *registry.Registry
	store     relstore.Store
	cache     *pathwaycache.Cache
	telemetry telemetry.Bundle
	policy    Policy
}

// New builds a Manager over its collaborators.
func New(reg *registry.Registry, store relstore.Store, cache *pathwaycache.Cache, tel telemetry.Bundle, policy Policy) *Manager {
	return &Manager{registry: reg, store: store, cache: cache, telemetry: tel, policy: policy}
}

// Reconcile runs the five-step algorithm: (1) refresh the registry from its
// source, (2) diff the new catalogue against lifecycle records to detect
// deletions/restorations, (3) invalidate pathways for deleted tools,
// (4) surface degraded-success alerts, (5) archive long-deleted low-value
// tools (spec §4.5).
func (m *Manager) Reconcile(ctx context.Context) ([]Alert, error) {
	before := m.registry.Snapshot()
	if _, err := m.registry.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("lifecycle: refresh registry: %w", err)
	}
	after := m.registry.Snapshot()
	now := time.Now()

	for name, oldHash := range before {
		newHash, stillPresent := after[name]
		if !stillPresent {
			if err := m.markDeleted(ctx, name, now); err != nil {
				return nil, err
			}
			m.cache.InvalidateByTool(ctx, name)
			continue
		}
		if newHash != oldHash {
			m.cache.InvalidateByHash(ctx, name, newHash)
		}
	}
	for name := range after {
		if _, wasPresent := before[name]; !wasPresent {
			if err := m.markRestoredOrNew(ctx, name, now); err != nil {
				return nil, err
			}
		}
	}

	alerts, err := m.collectAlerts(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.archiveStale(ctx, now); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Restore reactivates a tool whose lifecycle status is deleted or archived,
// without waiting for the next reconcile pass (spec §4.5 explicit restore
// operation).
func (m *Manager) Restore(ctx context.Context, tool model.ToolName, reason string) error {
	record, err := m.store.GetLifecycleRecord(ctx, tool)
	if err != nil {
		return fmt.Errorf("lifecycle: get record for restore: %w", err)
	}
	return m.transition(ctx, record, model.LifecycleActive, reason)
}

func (m *Manager) markDeleted(ctx context.Context, tool model.ToolName, _ time.Time) error {
	record, err := m.store.GetLifecycleRecord(ctx, tool)
	if err == relstore.ErrNotFound {
		record = model.ToolLifecycleRecord{Tool: tool, Status: model.LifecycleActive}
	} else if err != nil {
		return fmt.Errorf("lifecycle: get record: %w", err)
	}
	if record.Status == model.LifecycleDeleted {
		return nil
	}
	return m.transition(ctx, record, model.LifecycleDeleted, "source file removed from tool directory")
}

func (m *Manager) markRestoredOrNew(ctx context.Context, tool model.ToolName, _ time.Time) error {
	record, err := m.store.GetLifecycleRecord(ctx, tool)
	if err == relstore.ErrNotFound {
		record = model.ToolLifecycleRecord{Tool: tool, Status: model.LifecycleActive, StatusChangedAt: time.Now()}
		return m.store.PutLifecycleRecord(ctx, record)
	}
	if err != nil {
		return fmt.Errorf("lifecycle: get record: %w", err)
	}
	if record.Status == model.LifecycleActive {
		return nil
	}
	return m.transition(ctx, record, model.LifecycleActive, "source file reappeared in tool directory")
}

func (m *Manager) transition(ctx context.Context, record model.ToolLifecycleRecord, to model.LifecycleStatus, reason string) error {
	now := time.Now()
	record.Transitions = append(record.Transitions, model.LifecycleTransition{
		From: record.Status, To: to, Reason: reason, At: now,
	})
	record.Status = to
	record.StatusChangedAt = now
	record.Reason = reason
	return m.store.PutLifecycleRecord(ctx, record)
}

func (m *Manager) collectAlerts(ctx context.Context) ([]Alert, error) {
	names, err := m.store.ListToolNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list tool names: %w", err)
	}
	var alerts []Alert
	for _, name := range names {
		stats, err := m.store.GetToolStatistics(ctx, name)
		if err != nil {
			continue
		}
		if stats.Total >= m.policy.AlertUsesMin && stats.SuccessRate() < m.policy.AlertSuccessRateMin {
			alerts = append(alerts, Alert{Tool: name, SuccessRate: stats.SuccessRate(), Uses: stats.Total})
			m.telemetry.Log.Warn(ctx, "tool success rate degraded", "tool", string(name), "success_rate", stats.SuccessRate())
		}
	}
	return alerts, nil
}

func (m *Manager) archiveStale(ctx context.Context, now time.Time) error {
	records, err := m.store.ListLifecycleRecords(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: list records: %w", err)
	}
	for _, record := range records {
		if record.Status != model.LifecycleDeleted {
			continue
		}
		if now.Sub(record.StatusChangedAt) < m.policy.ArchiveAfter {
			continue
		}
		stats, err := m.store.GetToolStatistics(ctx, record.Tool)
		if err != nil {
			stats = model.ToolStatistics{}
		}
		if stats.Total >= m.policy.ArchiveUsageBelow {
			continue
		}
		if err := m.transition(ctx, record, model.LifecycleArchived, "deleted and low-usage past archive window"); err != nil {
			return err
		}
	}
	return nil
}
