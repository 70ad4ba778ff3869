// Package model defines the persisted entities shared across the engine's
// control-plane components. Types here carry no behavior beyond small
// invariant helpers; components own the operations that create and mutate
// them (relstore.Store groups its methods by owning component).
package model

import "time"

type (
	// ToolName is the strong type for a registered tool identifier. Using a
	// distinct type instead of a bare string prevents accidental mixing with
	// goal text or other free-form identifiers in maps and function signatures.
	ToolName string

	// LifecycleStatus is the closed set of states a tool can occupy in the
	// lifecycle manager (C8).
	LifecycleStatus string

	// ErrorSummary captures a short, user-safe description of a failure.
	// Never populated from raw backend errors or stack traces (see spec §7).
	ErrorSummary struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
)

const (
	// LifecycleActive marks a tool as currently loaded and eligible for selection.
	LifecycleActive LifecycleStatus = "active"
	// LifecycleDeleted marks a tool whose source file disappeared from the tool directory.
	LifecycleDeleted LifecycleStatus = "deleted"
	// LifecycleArchived marks a long-deleted, low-value tool moved out of active bookkeeping.
	LifecycleArchived LifecycleStatus = "archived"
	// LifecycleDeprecated marks a tool kept for compatibility but discouraged for new selections.
	LifecycleDeprecated LifecycleStatus = "deprecated"
)

// GoalExecution is the append-only record of a single goal handled by the
// orchestrator (C7). Created once execution completes; never mutated.
type GoalExecution struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Intent    string         `json:"intent"`
	Success   bool           `json:"success"`
	Duration  time.Duration  `json:"duration"`
	Error     *ErrorSummary  `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UsedCache bool           `json:"used_cache"`
	Recovered bool           `json:"recovered"`
}

// ToolInvocation records one tool call made while servicing a GoalExecution.
// Write-once, ordered by StartedAt within a goal.
type ToolInvocation struct {
	ID              string         `json:"id"`
	GoalExecutionID string         `json:"goal_execution_id"`
	Tool            ToolName       `json:"tool"`
	Params          map[string]any `json:"params"`
	Output          any            `json:"output,omitempty"`
	Success         bool           `json:"success"`
	Duration        time.Duration  `json:"duration"`
	Error           *ErrorSummary  `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
}

// ToolStatistics is the hourly-recomputed aggregate for a tool. Never edited
// in place by the hot path; §4.9 describes the recompute task that owns it.
type ToolStatistics struct {
	Tool         ToolName      `json:"tool"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	MeanDuration time.Duration `json:"mean_duration"`
	P50Duration  time.Duration `json:"p50_duration"`
	P95Duration  time.Duration `json:"p95_duration"`
	P99Duration  time.Duration `json:"p99_duration"`
	FirstUsedAt  time.Time     `json:"first_used_at"`
	LastUsedAt   time.Time     `json:"last_used_at"`
}

// SuccessRate returns SuccessCount/Total, or 0 when Total is 0.
func (s ToolStatistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.Total)
}

// LifecycleTransition is one entry in a tool's append-only audit trail.
type LifecycleTransition struct {
	From   LifecycleStatus `json:"from"`
	To     LifecycleStatus `json:"to"`
	Reason string          `json:"reason"`
	At     time.Time       `json:"at"`
}

// ToolLifecycleRecord tracks the current status of a tool and its full
// transition history. One record per tool name (unique).
type ToolLifecycleRecord struct {
	Tool            ToolName              `json:"tool"`
	Status          LifecycleStatus       `json:"status"`
	StatusChangedAt time.Time             `json:"status_changed_at"`
	Reason          string                `json:"reason"`
	Transitions     []LifecycleTransition `json:"transitions"`
}

// ToolVersion is an append-only record required for rollback (C9/C10).
type ToolVersion struct {
	Tool        ToolName  `json:"tool"`
	Version     int       `json:"version"`
	ContentHash string    `json:"content_hash"`
	AuthorKind  string    `json:"author_kind"` // "human" or "generated"
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// TraceStep is one compressed entry of a Pathway's execution trace.
type TraceStep struct {
	Tool          ToolName       `json:"tool"`
	Params        map[string]any `json:"params"`
	ResultSummary string         `json:"result_summary"`
}

// Pathway is a cached, successful end-to-end execution plan keyed by goal
// embedding (C4). Invariant: if any tool in ToolsUsed is not active, Valid
// must be false — enforced by the pathway cache, never by direct mutation
// elsewhere.
type Pathway struct {
	ID              string              `json:"id"`
	GoalText        string              `json:"goal_text"`
	GoalEmbedding   []float32           `json:"goal_embedding"`
	Trace           []TraceStep         `json:"trace"`
	ToolsUsed       []ToolName          `json:"tools_used"`
	ToolHashAtStore map[ToolName]string `json:"tool_hash_at_store"`
	SuccessCount    int                 `json:"success_count"`
	FailureCount    int                 `json:"failure_count"`
	Valid           bool                `json:"valid"`
	CreatedAt       time.Time           `json:"created_at"`
	LastUsedAt      time.Time           `json:"last_used_at"`
}

// SuccessRatio returns SuccessCount/(SuccessCount+FailureCount), or 0 when
// both counters are zero.
func (p Pathway) SuccessRatio() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// DecompositionPattern is a learned (goal -> subgoal list) association (C5).
// Patterns with identical normalised goal text collapse into one row with an
// incremented UsageCount; SubgoalList never changes after creation.
type DecompositionPattern struct {
	ID              string        `json:"id"`
	GoalText        string        `json:"goal_text"`
	GoalEmbedding   []float32     `json:"goal_embedding"`
	GoalType        string        `json:"goal_type"`
	SubgoalList     []string      `json:"subgoal_list"`
	Success         bool          `json:"success"`
	ExecutionTime   time.Duration `json:"execution_time"`
	ToolsUsed       []ToolName    `json:"tools_used"`
	UsageCount      int           `json:"usage_count"`
	EfficiencyScore float64       `json:"efficiency_score"`
	CreatedAt       time.Time     `json:"created_at"`
	LastUsedAt      time.Time     `json:"last_used_at"`
}

// ImprovementAttempt records one run of the improvement engine (C9).
type ImprovementAttempt struct {
	ID              string    `json:"id"`
	Tool            ToolName  `json:"tool"`
	Reason          string    `json:"reason"`
	CandidateHash   string    `json:"candidate_hash"`
	Strategy        string    `json:"strategy"`
	GateResult      string    `json:"gate_result"`
	Status          string    `json:"status"` // succeeded | failed | rolled_back
	DeployedVersion int       `json:"deployed_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeploymentSession tracks one deployment's post-deploy monitoring (C10).
type DeploymentSession struct {
	ID              string    `json:"id"`
	Tool            ToolName  `json:"tool"`
	DeployedVersion int       `json:"deployed_version"`
	PreviousVersion int       `json:"previous_version"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	BaselineStart   time.Time `json:"baseline_start"`
	BaselineSuccess float64   `json:"baseline_success"`
	Status          string    `json:"status"` // monitoring | rolled_back | completed
	RecentOutcomes  []bool    `json:"recent_outcomes"`
}

// DeploymentHealthCheck is one append-only observation made by the monitor.
type DeploymentHealthCheck struct {
	SessionID    string    `json:"session_id"`
	At           time.Time `json:"at"`
	Tier         string    `json:"tier"` // immediate | fast | standard
	ObservedRate float64   `json:"observed_rate"`
	BaselineRate float64   `json:"baseline_rate"`
	Verdict      string    `json:"verdict"` // ok | rollback
}

// DeploymentRollback records a rollback triggered by the monitor.
type DeploymentRollback struct {
	SessionID       string    `json:"session_id"`
	RestoredVersion int       `json:"restored_version"`
	Reason          string    `json:"reason"`
	At              time.Time `json:"at"`
}
