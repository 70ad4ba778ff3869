// Package relstore defines the relational persistence layer (spec §3, §6):
// goal executions, tool invocations, tool statistics, lifecycle records,
// tool versions, decomposition patterns, improvement attempts, and
// deployment monitoring state. Implementations must be safe for concurrent
// use and must serialize writes to the same tool name per spec §5's
// per-tool sequential region.
package relstore

import (
	"context"
	"errors"

	"github.com/gradrix/dendrite/internal/model"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("relstore: not found")

// Store is the full relational persistence contract. C1 owns writes to goal
// executions/invocations/pathways/patterns; C8 owns lifecycle records; C9
// owns versions and improvement attempts; C10 owns deployment session state
// (spec §3 ownership table).
type Store interface {
	// Execution log (C1).
	SaveGoalExecution(ctx context.Context, exec model.GoalExecution) error
	SaveToolInvocations(ctx context.Context, invocations []model.ToolInvocation) error
	ListToolInvocations(ctx context.Context, goalExecutionID string) ([]model.ToolInvocation, error)
	RecentInvocationsByTool(ctx context.Context, tool model.ToolName, limit int) ([]model.ToolInvocation, error)
	CountGoalExecutions(ctx context.Context) (int, error)

	// Tool statistics, recomputed hourly (§3, §4.9). Never written by the hot path.
	GetToolStatistics(ctx context.Context, tool model.ToolName) (model.ToolStatistics, error)
	PutToolStatistics(ctx context.Context, stats model.ToolStatistics) error
	ListToolNames(ctx context.Context) ([]model.ToolName, error)

	// Lifecycle records (C8).
	GetLifecycleRecord(ctx context.Context, tool model.ToolName) (model.ToolLifecycleRecord, error)
	PutLifecycleRecord(ctx context.Context, record model.ToolLifecycleRecord) error
	ListLifecycleRecords(ctx context.Context) ([]model.ToolLifecycleRecord, error)

	// Tool versions (C9).
	AppendToolVersion(ctx context.Context, version model.ToolVersion) error
	LatestToolVersion(ctx context.Context, tool model.ToolName) (model.ToolVersion, error)
	ListToolVersions(ctx context.Context, tool model.ToolName) ([]model.ToolVersion, error)

	// Decomposition patterns (C5). Upsert collapses identical normalised
	// goal text into one row with an incremented usage count.
	UpsertDecompositionPattern(ctx context.Context, pattern model.DecompositionPattern) error
	ListDecompositionPatterns(ctx context.Context) ([]model.DecompositionPattern, error)

	// Improvement attempts (C9).
	SaveImprovementAttempt(ctx context.Context, attempt model.ImprovementAttempt) error
	ListImprovementAttempts(ctx context.Context, tool model.ToolName) ([]model.ImprovementAttempt, error)

	// Deployment monitoring (C10).
	SaveDeploymentSession(ctx context.Context, session model.DeploymentSession) error
	GetDeploymentSession(ctx context.Context, id string) (model.DeploymentSession, error)
	ListActiveDeploymentSessions(ctx context.Context) ([]model.DeploymentSession, error)
	AppendDeploymentHealthCheck(ctx context.Context, check model.DeploymentHealthCheck) error
	SaveDeploymentRollback(ctx context.Context, rollback model.DeploymentRollback) error

	// WithToolLock runs fn while holding the exclusive per-tool write region
	// required by spec §5, so two goals that both finish successfully for
	// the same tool never interleave their version-row writes.
	WithToolLock(ctx context.Context, tool model.ToolName, fn func(ctx context.Context) error) error
}
