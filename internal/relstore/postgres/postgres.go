// Package postgres implements relstore.Store on top of PostgreSQL via GORM,
// the relational backend named in spec §6. Schema columns are additive over
// spec §3's authoritative field list; GORM's AutoMigrate is used for schema
// management, matching the simple-migration style used across the example
// corpus's GORM-backed services.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/relstore"
)

type (
	goalExecutionRow struct {
		ID        string `gorm:"primaryKey"`
		Text      string
		Intent    string
		Success   bool
		Duration  time.Duration
		ErrorJSON []byte
		Metadata  []byte
		CreatedAt time.Time
		UsedCache bool
		Recovered bool
	}

	toolInvocationRow struct {
		ID              string `gorm:"primaryKey"`
		GoalExecutionID string `gorm:"index"`
		Tool            string `gorm:"index"`
		ParamsJSON      []byte
		OutputJSON      []byte
		Success         bool
		Duration        time.Duration
		ErrorJSON       []byte
		StartedAt       time.Time
	}

	toolStatisticsRow struct {
		Tool         string `gorm:"primaryKey"`
		Total        int
		SuccessCount int
		MeanDuration time.Duration
		P50Duration  time.Duration
		P95Duration  time.Duration
		P99Duration  time.Duration
		FirstUsedAt  time.Time
		LastUsedAt   time.Time
	}

	lifecycleRecordRow struct {
		Tool            string `gorm:"primaryKey"`
		Status          string
		StatusChangedAt time.Time
		Reason          string
		TransitionsJSON []byte
	}

	toolVersionRow struct {
		ID          uint   `gorm:"primaryKey;autoIncrement"`
		Tool        string `gorm:"index"`
		Version     int
		ContentHash string
		AuthorKind  string
		Reason      string
		CreatedAt   time.Time
	}

	decompositionPatternRow struct {
		NormalisedGoal  string `gorm:"primaryKey"`
		GoalText        string
		GoalEmbedding   []byte
		GoalType        string
		SubgoalListJSON []byte
		Success         bool
		ExecutionTime   time.Duration
		ToolsUsedJSON   []byte
		UsageCount      int
		EfficiencyScore float64
		CreatedAt       time.Time
		LastUsedAt      time.Time
	}

	improvementAttemptRow struct {
		ID              string `gorm:"primaryKey"`
		Tool            string `gorm:"index"`
		Reason          string
		CandidateHash   string
		Strategy        string
		GateResult      string
		Status          string
		DeployedVersion int
		CreatedAt       time.Time
	}

	deploymentSessionRow struct {
		ID              string `gorm:"primaryKey"`
		Tool            string `gorm:"index"`
		DeployedVersion int
		PreviousVersion int
		WindowStart     time.Time
		WindowEnd       time.Time
		BaselineStart   time.Time
		BaselineSuccess float64
		Status          string
		OutcomesJSON    []byte
	}

	deploymentHealthCheckRow struct {
		ID           uint   `gorm:"primaryKey;autoIncrement"`
		SessionID    string `gorm:"index"`
		At           time.Time
		Tier         string
		ObservedRate float64
		BaselineRate float64
		Verdict      string
	}

	deploymentRollbackRow struct {
		ID              uint   `gorm:"primaryKey;autoIncrement"`
		SessionID       string `gorm:"index"`
		RestoredVersion int
		Reason          string
		At              time.Time
	}
)

// Store implements relstore.Store on top of a *gorm.DB.
type Store struct {
	db        *gorm.DB
	toolLocks sync.Map
}

var _ relstore.Store = (*Store)(nil)

// Options configures the Postgres connection.
type Options struct {
	DSN string
}

// Open connects to Postgres and migrates the schema.
func Open(opts Options) (*Store, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("relstore/postgres: open: %w", err)
	}
	if err := db.AutoMigrate(
		&goalExecutionRow{}, &toolInvocationRow{}, &toolStatisticsRow{},
		&lifecycleRecordRow{}, &toolVersionRow{}, &decompositionPatternRow{},
		&improvementAttemptRow{}, &deploymentSessionRow{}, &deploymentHealthCheckRow{},
		&deploymentRollbackRow{},
	); err != nil {
		return nil, fmt.Errorf("relstore/postgres: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) SaveGoalExecution(ctx context.Context, exec model.GoalExecution) error {
	errJSON, _ := json.Marshal(exec.Error)
	meta, _ := json.Marshal(exec.Metadata)
	row := goalExecutionRow{
		ID: exec.ID, Text: exec.Text, Intent: exec.Intent, Success: exec.Success,
		Duration: exec.Duration, ErrorJSON: errJSON, Metadata: meta,
		CreatedAt: exec.CreatedAt, UsedCache: exec.UsedCache, Recovered: exec.Recovered,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) SaveToolInvocations(ctx context.Context, invocations []model.ToolInvocation) error {
	rows := make([]toolInvocationRow, len(invocations))
	for i, inv := range invocations {
		params, _ := json.Marshal(inv.Params)
		output, _ := json.Marshal(inv.Output)
		errJSON, _ := json.Marshal(inv.Error)
		rows[i] = toolInvocationRow{
			ID: inv.ID, GoalExecutionID: inv.GoalExecutionID, Tool: string(inv.Tool),
			ParamsJSON: params, OutputJSON: output, Success: inv.Success,
			Duration: inv.Duration, ErrorJSON: errJSON, StartedAt: inv.StartedAt,
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *Store) ListToolInvocations(ctx context.Context, goalExecutionID string) ([]model.ToolInvocation, error) {
	var rows []toolInvocationRow
	if err := s.db.WithContext(ctx).Where("goal_execution_id = ?", goalExecutionID).
		Order("started_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInvocations(rows), nil
}

func (s *Store) RecentInvocationsByTool(ctx context.Context, tool model.ToolName, limit int) ([]model.ToolInvocation, error) {
	var rows []toolInvocationRow
	q := s.db.WithContext(ctx).Where("tool = ?", string(tool)).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInvocations(rows), nil
}

func (s *Store) CountGoalExecutions(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&goalExecutionRow{}).Count(&count).Error
	return int(count), err
}

func (s *Store) GetToolStatistics(ctx context.Context, tool model.ToolName) (model.ToolStatistics, error) {
	var row toolStatisticsRow
	err := s.db.WithContext(ctx).First(&row, "tool = ?", string(tool)).Error
	if err != nil {
		return model.ToolStatistics{}, translateNotFound(err)
	}
	return model.ToolStatistics{
		Tool: tool, Total: row.Total, SuccessCount: row.SuccessCount,
		MeanDuration: row.MeanDuration, P50Duration: row.P50Duration,
		P95Duration: row.P95Duration, P99Duration: row.P99Duration,
		FirstUsedAt: row.FirstUsedAt, LastUsedAt: row.LastUsedAt,
	}, nil
}

func (s *Store) PutToolStatistics(ctx context.Context, stats model.ToolStatistics) error {
	row := toolStatisticsRow{
		Tool: string(stats.Tool), Total: stats.Total, SuccessCount: stats.SuccessCount,
		MeanDuration: stats.MeanDuration, P50Duration: stats.P50Duration,
		P95Duration: stats.P95Duration, P99Duration: stats.P99Duration,
		FirstUsedAt: stats.FirstUsedAt, LastUsedAt: stats.LastUsedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) ListToolNames(ctx context.Context) ([]model.ToolName, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&toolInvocationRow{}).Distinct().Pluck("tool", &names).Error; err != nil {
		return nil, err
	}
	out := make([]model.ToolName, len(names))
	for i, n := range names {
		out[i] = model.ToolName(n)
	}
	return out, nil
}

func (s *Store) GetLifecycleRecord(ctx context.Context, tool model.ToolName) (model.ToolLifecycleRecord, error) {
	var row lifecycleRecordRow
	if err := s.db.WithContext(ctx).First(&row, "tool = ?", string(tool)).Error; err != nil {
		return model.ToolLifecycleRecord{}, translateNotFound(err)
	}
	var transitions []model.LifecycleTransition
	_ = json.Unmarshal(row.TransitionsJSON, &transitions)
	return model.ToolLifecycleRecord{
		Tool: tool, Status: model.LifecycleStatus(row.Status), StatusChangedAt: row.StatusChangedAt,
		Reason: row.Reason, Transitions: transitions,
	}, nil
}

func (s *Store) PutLifecycleRecord(ctx context.Context, record model.ToolLifecycleRecord) error {
	transitions, _ := json.Marshal(record.Transitions)
	row := lifecycleRecordRow{
		Tool: string(record.Tool), Status: string(record.Status), StatusChangedAt: record.StatusChangedAt,
		Reason: record.Reason, TransitionsJSON: transitions,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) ListLifecycleRecords(ctx context.Context) ([]model.ToolLifecycleRecord, error) {
	var rows []lifecycleRecordRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ToolLifecycleRecord, len(rows))
	for i, row := range rows {
		var transitions []model.LifecycleTransition
		_ = json.Unmarshal(row.TransitionsJSON, &transitions)
		out[i] = model.ToolLifecycleRecord{
			Tool: model.ToolName(row.Tool), Status: model.LifecycleStatus(row.Status),
			StatusChangedAt: row.StatusChangedAt, Reason: row.Reason, Transitions: transitions,
		}
	}
	return out, nil
}

func (s *Store) AppendToolVersion(ctx context.Context, version model.ToolVersion) error {
	row := toolVersionRow{
		Tool: string(version.Tool), Version: version.Version, ContentHash: version.ContentHash,
		AuthorKind: version.AuthorKind, Reason: version.Reason, CreatedAt: version.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) LatestToolVersion(ctx context.Context, tool model.ToolName) (model.ToolVersion, error) {
	var row toolVersionRow
	err := s.db.WithContext(ctx).Where("tool = ?", string(tool)).Order("version desc").First(&row).Error
	if err != nil {
		return model.ToolVersion{}, translateNotFound(err)
	}
	return model.ToolVersion{
		Tool: tool, Version: row.Version, ContentHash: row.ContentHash,
		AuthorKind: row.AuthorKind, Reason: row.Reason, CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) ListToolVersions(ctx context.Context, tool model.ToolName) ([]model.ToolVersion, error) {
	var rows []toolVersionRow
	if err := s.db.WithContext(ctx).Where("tool = ?", string(tool)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ToolVersion, len(rows))
	for i, row := range rows {
		out[i] = model.ToolVersion{
			Tool: tool, Version: row.Version, ContentHash: row.ContentHash,
			AuthorKind: row.AuthorKind, Reason: row.Reason, CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) UpsertDecompositionPattern(ctx context.Context, pattern model.DecompositionPattern) error {
	key := normalise(pattern.GoalText)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing decompositionPatternRow
		err := tx.First(&existing, "normalised_goal = ?", key).Error
		if err != nil {
			embedding, _ := json.Marshal(pattern.GoalEmbedding)
			subgoals, _ := json.Marshal(pattern.SubgoalList)
			tools, _ := json.Marshal(pattern.ToolsUsed)
			row := decompositionPatternRow{
				NormalisedGoal: key, GoalText: pattern.GoalText, GoalEmbedding: embedding,
				GoalType: pattern.GoalType, SubgoalListJSON: subgoals, Success: pattern.Success,
				ExecutionTime: pattern.ExecutionTime, ToolsUsedJSON: tools, UsageCount: 1,
				EfficiencyScore: pattern.EfficiencyScore, CreatedAt: pattern.CreatedAt, LastUsedAt: pattern.LastUsedAt,
			}
			return tx.Create(&row).Error
		}
		tools, _ := json.Marshal(pattern.ToolsUsed)
		existing.UsageCount++
		existing.Success = pattern.Success
		existing.ExecutionTime = pattern.ExecutionTime
		existing.ToolsUsedJSON = tools
		existing.EfficiencyScore = pattern.EfficiencyScore
		existing.LastUsedAt = pattern.LastUsedAt
		return tx.Save(&existing).Error
	})
}

func (s *Store) ListDecompositionPatterns(ctx context.Context) ([]model.DecompositionPattern, error) {
	var rows []decompositionPatternRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DecompositionPattern, len(rows))
	for i, row := range rows {
		var embedding []float32
		var subgoals []string
		var tools []model.ToolName
		_ = json.Unmarshal(row.GoalEmbedding, &embedding)
		_ = json.Unmarshal(row.SubgoalListJSON, &subgoals)
		_ = json.Unmarshal(row.ToolsUsedJSON, &tools)
		out[i] = model.DecompositionPattern{
			GoalText: row.GoalText, GoalEmbedding: embedding, GoalType: row.GoalType,
			SubgoalList: subgoals, Success: row.Success, ExecutionTime: row.ExecutionTime,
			ToolsUsed: tools, UsageCount: row.UsageCount, EfficiencyScore: row.EfficiencyScore,
			CreatedAt: row.CreatedAt, LastUsedAt: row.LastUsedAt,
		}
	}
	return out, nil
}

func (s *Store) SaveImprovementAttempt(ctx context.Context, attempt model.ImprovementAttempt) error {
	row := improvementAttemptRow{
		ID: attempt.ID, Tool: string(attempt.Tool), Reason: attempt.Reason, CandidateHash: attempt.CandidateHash,
		Strategy: attempt.Strategy, GateResult: attempt.GateResult, Status: attempt.Status,
		DeployedVersion: attempt.DeployedVersion, CreatedAt: attempt.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListImprovementAttempts(ctx context.Context, tool model.ToolName) ([]model.ImprovementAttempt, error) {
	var rows []improvementAttemptRow
	if err := s.db.WithContext(ctx).Where("tool = ?", string(tool)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ImprovementAttempt, len(rows))
	for i, row := range rows {
		out[i] = model.ImprovementAttempt{
			ID: row.ID, Tool: tool, Reason: row.Reason, CandidateHash: row.CandidateHash,
			Strategy: row.Strategy, GateResult: row.GateResult, Status: row.Status,
			DeployedVersion: row.DeployedVersion, CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) SaveDeploymentSession(ctx context.Context, session model.DeploymentSession) error {
	outcomes, _ := json.Marshal(session.RecentOutcomes)
	row := deploymentSessionRow{
		ID: session.ID, Tool: string(session.Tool), DeployedVersion: session.DeployedVersion,
		PreviousVersion: session.PreviousVersion, WindowStart: session.WindowStart, WindowEnd: session.WindowEnd,
		BaselineStart: session.BaselineStart, BaselineSuccess: session.BaselineSuccess, Status: session.Status,
		OutcomesJSON: outcomes,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) GetDeploymentSession(ctx context.Context, id string) (model.DeploymentSession, error) {
	var row deploymentSessionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.DeploymentSession{}, translateNotFound(err)
	}
	return toSession(row), nil
}

func (s *Store) ListActiveDeploymentSessions(ctx context.Context) ([]model.DeploymentSession, error) {
	var rows []deploymentSessionRow
	if err := s.db.WithContext(ctx).Where("status = ?", "monitoring").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DeploymentSession, len(rows))
	for i, row := range rows {
		out[i] = toSession(row)
	}
	return out, nil
}

func (s *Store) AppendDeploymentHealthCheck(ctx context.Context, check model.DeploymentHealthCheck) error {
	row := deploymentHealthCheckRow{
		SessionID: check.SessionID, At: check.At, Tier: check.Tier,
		ObservedRate: check.ObservedRate, BaselineRate: check.BaselineRate, Verdict: check.Verdict,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) SaveDeploymentRollback(ctx context.Context, rollback model.DeploymentRollback) error {
	row := deploymentRollbackRow{
		SessionID: rollback.SessionID, RestoredVersion: rollback.RestoredVersion,
		Reason: rollback.Reason, At: rollback.At,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// WithToolLock serializes writes for the same tool within this process.
// Postgres itself serializes row writes via transactions; this additionally
// protects the multi-statement read-modify-write sequences C7's write-back
// performs across goal execution, pathway, and pattern tables for one tool.
func (s *Store) WithToolLock(ctx context.Context, tool model.ToolName, fn func(ctx context.Context) error) error {
	lockAny, _ := s.toolLocks.LoadOrStore(tool, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func toInvocations(rows []toolInvocationRow) []model.ToolInvocation {
	out := make([]model.ToolInvocation, len(rows))
	for i, row := range rows {
		var params map[string]any
		var output any
		var errSummary *model.ErrorSummary
		_ = json.Unmarshal(row.ParamsJSON, &params)
		_ = json.Unmarshal(row.OutputJSON, &output)
		_ = json.Unmarshal(row.ErrorJSON, &errSummary)
		out[i] = model.ToolInvocation{
			ID: row.ID, GoalExecutionID: row.GoalExecutionID, Tool: model.ToolName(row.Tool),
			Params: params, Output: output, Success: row.Success, Duration: row.Duration,
			Error: errSummary, StartedAt: row.StartedAt,
		}
	}
	return out
}

func toSession(row deploymentSessionRow) model.DeploymentSession {
	var outcomes []bool
	_ = json.Unmarshal(row.OutcomesJSON, &outcomes)
	return model.DeploymentSession{
		ID: row.ID, Tool: model.ToolName(row.Tool), DeployedVersion: row.DeployedVersion,
		PreviousVersion: row.PreviousVersion, WindowStart: row.WindowStart, WindowEnd: row.WindowEnd,
		BaselineStart: row.BaselineStart, BaselineSuccess: row.BaselineSuccess, Status: row.Status,
		RecentOutcomes: outcomes,
	}
}

func translateNotFound(err error) error {
	if err == gorm.ErrRecordNotFound {
		return relstore.ErrNotFound
	}
	return err
}

func normalise(s string) string {
	out := make([]byte, 0, len(s))
	prevSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' || c == '\n' {
			if prevSpace || len(out) == 0 {
				continue
			}
			prevSpace = true
			out = append(out, ' ')
			continue
		}
		prevSpace = false
		out = append(out, c)
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return string(out)
}
