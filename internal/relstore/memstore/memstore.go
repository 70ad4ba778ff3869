// Package memstore is an in-memory implementation of relstore.Store.
// Suitable for development, testing, and the `demo` CLI subcommand.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/relstore"
)

// Store is an in-memory, concurrency-safe relstore.Store.
type Store struct {
	mu sync.RWMutex

	executions  map[string]model.GoalExecution
	invocations map[string][]model.ToolInvocation // keyed by goal execution id
	byTool      map[model.ToolName][]model.ToolInvocation

	stats     map[model.ToolName]model.ToolStatistics
	lifecycle map[model.ToolName]model.ToolLifecycleRecord
	versions  map[model.ToolName][]model.ToolVersion
	patterns  map[string]model.DecompositionPattern // keyed by normalised goal text

	improvementAttempts map[model.ToolName][]model.ImprovementAttempt
	deploymentSessions  map[string]model.DeploymentSession
	healthChecks        map[string][]model.DeploymentHealthCheck
	rollbacks           map[string][]model.DeploymentRollback

	toolLocks sync.Map // model.ToolName -> *sync.Mutex
}

var _ relstore.Store = (*Store)(nil)

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		executions:          make(map[string]model.GoalExecution),
		invocations:         make(map[string][]model.ToolInvocation),
		byTool:              make(map[model.ToolName][]model.ToolInvocation),
		stats:               make(map[model.ToolName]model.ToolStatistics),
		lifecycle:           make(map[model.ToolName]model.ToolLifecycleRecord),
		versions:            make(map[model.ToolName][]model.ToolVersion),
		patterns:            make(map[string]model.DecompositionPattern),
		improvementAttempts: make(map[model.ToolName][]model.ImprovementAttempt),
		deploymentSessions:  make(map[string]model.DeploymentSession),
		healthChecks:        make(map[string][]model.DeploymentHealthCheck),
		rollbacks:           make(map[string][]model.DeploymentRollback),
	}
}

// SaveGoalExecution stores exec. Goal executions are write-once by contract;
// the store does not itself reject a second write for the same ID since the
// orchestrator never issues one.
func (s *Store) SaveGoalExecution(_ context.Context, exec model.GoalExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec
	return nil
}

// SaveToolInvocations appends invocations, preserving call order.
func (s *Store) SaveToolInvocations(_ context.Context, invocations []model.ToolInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range invocations {
		s.invocations[inv.GoalExecutionID] = append(s.invocations[inv.GoalExecutionID], inv)
		s.byTool[inv.Tool] = append(s.byTool[inv.Tool], inv)
	}
	return nil
}

// ListToolInvocations returns invocations for goalExecutionID ordered by start time.
func (s *Store) ListToolInvocations(_ context.Context, goalExecutionID string) ([]model.ToolInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]model.ToolInvocation(nil), s.invocations[goalExecutionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// RecentInvocationsByTool returns up to limit most recent invocations for tool.
func (s *Store) RecentInvocationsByTool(_ context.Context, tool model.ToolName, limit int) ([]model.ToolInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.byTool[tool]
	sorted := append([]model.ToolInvocation(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartedAt.After(sorted[j].StartedAt) })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// CountGoalExecutions returns the total number of execution records.
func (s *Store) CountGoalExecutions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.executions), nil
}

// GetToolStatistics returns the recomputed aggregate for tool.
func (s *Store) GetToolStatistics(_ context.Context, tool model.ToolName) (model.ToolStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[tool]
	if !ok {
		return model.ToolStatistics{}, relstore.ErrNotFound
	}
	return st, nil
}

// PutToolStatistics replaces the aggregate row for stats.Tool.
func (s *Store) PutToolStatistics(_ context.Context, stats model.ToolStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.Tool] = stats
	return nil
}

// ListToolNames returns every tool name that has at least one invocation.
func (s *Store) ListToolNames(_ context.Context) ([]model.ToolName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]model.ToolName, 0, len(s.byTool))
	for n := range s.byTool {
		names = append(names, n)
	}
	return names, nil
}

// GetLifecycleRecord returns the lifecycle record for tool.
func (s *Store) GetLifecycleRecord(_ context.Context, tool model.ToolName) (model.ToolLifecycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lifecycle[tool]
	if !ok {
		return model.ToolLifecycleRecord{}, relstore.ErrNotFound
	}
	return r, nil
}

// PutLifecycleRecord replaces the lifecycle record for record.Tool.
func (s *Store) PutLifecycleRecord(_ context.Context, record model.ToolLifecycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifecycle[record.Tool] = record
	return nil
}

// ListLifecycleRecords returns every lifecycle record.
func (s *Store) ListLifecycleRecords(_ context.Context) ([]model.ToolLifecycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ToolLifecycleRecord, 0, len(s.lifecycle))
	for _, r := range s.lifecycle {
		out = append(out, r)
	}
	return out, nil
}

// AppendToolVersion appends version to tool's version history.
func (s *Store) AppendToolVersion(_ context.Context, version model.ToolVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[version.Tool] = append(s.versions[version.Tool], version)
	return nil
}

// LatestToolVersion returns the highest-numbered version for tool.
func (s *Store) LatestToolVersion(_ context.Context, tool model.ToolName) (model.ToolVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.versions[tool]
	if len(versions) == 0 {
		return model.ToolVersion{}, relstore.ErrNotFound
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.Version > latest.Version {
			latest = v
		}
	}
	return latest, nil
}

// ListToolVersions returns every version recorded for tool, unordered.
func (s *Store) ListToolVersions(_ context.Context, tool model.ToolName) ([]model.ToolVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ToolVersion(nil), s.versions[tool]...), nil
}

// UpsertDecompositionPattern collapses pattern into the existing row sharing
// its normalised goal text, incrementing UsageCount, or inserts a new row.
// The subgoal list of an existing row is never replaced (spec §3).
func (s *Store) UpsertDecompositionPattern(_ context.Context, pattern model.DecompositionPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalise(pattern.GoalText)
	existing, ok := s.patterns[key]
	if !ok {
		pattern.UsageCount = 1
		s.patterns[key] = pattern
		return nil
	}
	existing.UsageCount++
	existing.Success = pattern.Success
	existing.ExecutionTime = pattern.ExecutionTime
	existing.ToolsUsed = pattern.ToolsUsed
	existing.EfficiencyScore = pattern.EfficiencyScore
	existing.LastUsedAt = pattern.LastUsedAt
	s.patterns[key] = existing
	return nil
}

// ListDecompositionPatterns returns every stored pattern.
func (s *Store) ListDecompositionPatterns(_ context.Context) ([]model.DecompositionPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DecompositionPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out, nil
}

// SaveImprovementAttempt appends attempt to tool's attempt history.
func (s *Store) SaveImprovementAttempt(_ context.Context, attempt model.ImprovementAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.improvementAttempts[attempt.Tool] = append(s.improvementAttempts[attempt.Tool], attempt)
	return nil
}

// ListImprovementAttempts returns every attempt recorded for tool.
func (s *Store) ListImprovementAttempts(_ context.Context, tool model.ToolName) ([]model.ImprovementAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ImprovementAttempt(nil), s.improvementAttempts[tool]...), nil
}

// SaveDeploymentSession stores or replaces session.
func (s *Store) SaveDeploymentSession(_ context.Context, session model.DeploymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deploymentSessions[session.ID] = session
	return nil
}

// GetDeploymentSession returns the session with id.
func (s *Store) GetDeploymentSession(_ context.Context, id string) (model.DeploymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.deploymentSessions[id]
	if !ok {
		return model.DeploymentSession{}, relstore.ErrNotFound
	}
	return sess, nil
}

// ListActiveDeploymentSessions returns every session with status "monitoring".
func (s *Store) ListActiveDeploymentSessions(_ context.Context) ([]model.DeploymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DeploymentSession
	for _, sess := range s.deploymentSessions {
		if sess.Status == "monitoring" {
			out = append(out, sess)
		}
	}
	return out, nil
}

// AppendDeploymentHealthCheck appends check to its session's append-only history.
func (s *Store) AppendDeploymentHealthCheck(_ context.Context, check model.DeploymentHealthCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthChecks[check.SessionID] = append(s.healthChecks[check.SessionID], check)
	return nil
}

// SaveDeploymentRollback records rollback for its session.
func (s *Store) SaveDeploymentRollback(_ context.Context, rollback model.DeploymentRollback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks[rollback.SessionID] = append(s.rollbacks[rollback.SessionID], rollback)
	return nil
}

// WithToolLock runs fn while holding tool's dedicated mutex, implementing
// spec §5's per-tool sequential write-back region.
func (s *Store) WithToolLock(ctx context.Context, tool model.ToolName, fn func(ctx context.Context) error) error {
	lockAny, _ := s.toolLocks.LoadOrStore(tool, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func normalise(goalText string) string {
	return strings.ToLower(strings.TrimSpace(goalText))
}
