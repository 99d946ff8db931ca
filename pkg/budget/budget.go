// Package budget implements the Budget Engine component (C2): per-task,
// per-project, and per-invocation USD spend limits enforced before and
// recorded after every external agent invocation.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/google/uuid"
)

const (
	// DefaultTaskBudgetUSD is the default per-task spend ceiling.
	DefaultTaskBudgetUSD = 5.00
	// DefaultProjectBudgetUSD is the default total project spend ceiling.
	DefaultProjectBudgetUSD = 50.00
	// DefaultInvocationBudgetUSD is the safety limit passed to each
	// external agent invocation via --max-budget-usd.
	DefaultInvocationBudgetUSD = 1.00
	// DefaultWarnAtPercent is the threshold at which a spend is logged as
	// a warning but still allowed.
	DefaultWarnAtPercent = 80.0
	// DefaultSoftLimitPercent is the threshold at which EnforceBudget
	// sets ShouldEscalate even though the spend is still allowed.
	DefaultSoftLimitPercent = 90.0
)

// Config holds the in-memory budget configuration for one project. Unlike
// spend records, configuration is never persisted — it is supplied at
// construction (spec §4.2: "the ceilings themselves are operator input,
// not workflow state").
type Config struct {
	// ProjectBudgetUSD is the total project ceiling; nil means unlimited.
	ProjectBudgetUSD *float64
	// TaskBudgetUSD is the default per-task ceiling; nil means unlimited.
	TaskBudgetUSD *float64
	// InvocationBudgetUSD is the per-invocation ceiling.
	InvocationBudgetUSD float64
	// TaskBudgets holds per-task ceiling overrides, keyed by task id.
	TaskBudgets map[string]float64
	// WarnAtPercent is the spend ratio (0-100) at which a warning is logged.
	WarnAtPercent float64
	// SoftLimitPercent is the spend ratio (0-100) at which EnforceBudget
	// escalates even though the spend is still under the hard limit.
	SoftLimitPercent float64
	// Enabled gates whether the engine enforces anything at all.
	Enabled bool
}

// DefaultConfig returns the budget defaults matching the original system.
func DefaultConfig() Config {
	taskBudget := DefaultTaskBudgetUSD
	projectBudget := DefaultProjectBudgetUSD
	return Config{
		ProjectBudgetUSD:    &projectBudget,
		TaskBudgetUSD:       &taskBudget,
		InvocationBudgetUSD: DefaultInvocationBudgetUSD,
		TaskBudgets:         make(map[string]float64),
		WarnAtPercent:       DefaultWarnAtPercent,
		SoftLimitPercent:    DefaultSoftLimitPercent,
		Enabled:             true,
	}
}

// EnforcementResult is the structured outcome of EnforceBudget, used by
// the Workflow Engine to decide whether to proceed, escalate to a human,
// or abort outright.
type EnforcementResult struct {
	Allowed       bool
	ExceededType  string // "", "project", or "task:<id>"
	LimitUSD      *float64
	CurrentUSD    float64
	RequestedUSD  float64
	RemainingUSD  *float64
	ShouldEscalate bool
	ShouldAbort   bool
	Message       string
}

// Engine tracks and enforces budget limits for a single project, backed by
// the Store's append-only BudgetRecord ledger.
type Engine struct {
	store  *store.Store
	logger *slog.Logger

	mu     sync.Mutex
	config Config
}

// New constructs a budget Engine bound to a project-scoped Store.
func New(s *store.Store, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.TaskBudgets == nil {
		config.TaskBudgets = make(map[string]float64)
	}
	return &Engine{store: s, config: config, logger: logger}
}

// Config returns a copy of the engine's current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// SetProjectBudget updates the project-wide ceiling; nil means unlimited.
func (e *Engine) SetProjectBudget(maxUSD *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.ProjectBudgetUSD = maxUSD
	if maxUSD != nil {
		e.logger.Info("set project budget", "max_usd", *maxUSD)
	} else {
		e.logger.Info("set project budget: unlimited")
	}
}

// SetTaskBudget sets or clears a per-task ceiling override.
func (e *Engine) SetTaskBudget(taskID string, maxUSD *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if maxUSD == nil {
		delete(e.config.TaskBudgets, taskID)
		return
	}
	e.config.TaskBudgets[taskID] = *maxUSD
}

// GetTaskBudget returns the effective ceiling for a task: its override if
// set, otherwise the default task budget (nil means unlimited).
func (e *Engine) GetTaskBudget(taskID string) *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.config.TaskBudgets[taskID]; ok {
		return &v
	}
	return e.config.TaskBudgetUSD
}

// GetInvocationBudget returns the per-invocation ceiling passed to
// --max-budget-usd for the next external agent call.
func (e *Engine) GetInvocationBudget() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.InvocationBudgetUSD
}

// GetTaskSpent sums every BudgetRecord for a task (signed — soft-reset
// records are negative, see ResetTaskSpending).
func (e *Engine) GetTaskSpent(ctx context.Context, taskID string) (float64, error) {
	return e.store.SumSpend(ctx, &taskID)
}

// GetProjectSpent sums every BudgetRecord across the whole project.
func (e *Engine) GetProjectSpent(ctx context.Context) (float64, error) {
	return e.store.SumSpend(ctx, nil)
}

// GetTaskRemaining returns the task's remaining budget, or nil if
// unlimited. Never negative — a task that has overspent shows 0 remaining.
func (e *Engine) GetTaskRemaining(ctx context.Context, taskID string) (*float64, error) {
	budget := e.GetTaskBudget(taskID)
	if budget == nil {
		return nil, nil
	}
	spent, err := e.GetTaskSpent(ctx, taskID)
	if err != nil {
		return nil, err
	}
	remaining := *budget - spent
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

// GetProjectRemaining returns the project's remaining budget, or nil if
// unlimited.
func (e *Engine) GetProjectRemaining(ctx context.Context) (*float64, error) {
	cfg := e.Config()
	if cfg.ProjectBudgetUSD == nil {
		return nil, nil
	}
	spent, err := e.GetProjectSpent(ctx)
	if err != nil {
		return nil, err
	}
	remaining := *cfg.ProjectBudgetUSD - spent
	return &remaining, nil
}

// CanSpend reports whether amountUSD can be spent against taskID without
// exceeding either the project or task ceiling.
func (e *Engine) CanSpend(ctx context.Context, taskID string, amountUSD float64) (bool, error) {
	cfg := e.Config()

	if cfg.ProjectBudgetUSD != nil {
		spent, err := e.GetProjectSpent(ctx)
		if err != nil {
			return false, err
		}
		if spent+amountUSD > *cfg.ProjectBudgetUSD {
			return false, nil
		}
	}

	taskBudget := e.GetTaskBudget(taskID)
	if taskBudget != nil {
		spent, err := e.GetTaskSpent(ctx, taskID)
		if err != nil {
			return false, err
		}
		if spent+amountUSD > *taskBudget {
			return false, nil
		}
	}

	return true, nil
}

// RequireBudget enforces a hard budget check, returning an *ExceededError
// (wrapping ErrBudgetExceeded) if the spend would exceed either ceiling.
func (e *Engine) RequireBudget(ctx context.Context, taskID string, amountUSD float64) error {
	cfg := e.Config()

	if cfg.ProjectBudgetUSD != nil {
		spent, err := e.GetProjectSpent(ctx)
		if err != nil {
			return err
		}
		if spent+amountUSD > *cfg.ProjectBudgetUSD {
			return &ExceededError{LimitType: "project", LimitUSD: *cfg.ProjectBudgetUSD, CurrentUSD: spent, RequestedUSD: amountUSD}
		}
	}

	taskBudget := e.GetTaskBudget(taskID)
	if taskBudget != nil {
		spent, err := e.GetTaskSpent(ctx, taskID)
		if err != nil {
			return err
		}
		if spent+amountUSD > *taskBudget {
			return &ExceededError{LimitType: "task:" + taskID, LimitUSD: *taskBudget, CurrentUSD: spent, RequestedUSD: amountUSD}
		}
	}

	return nil
}

// EnforceBudget checks budget with a structured result for workflow
// decisions: allowed for normal proceed, ShouldEscalate for
// soft-limit/human-approval, ShouldAbort for a hard stop.
func (e *Engine) EnforceBudget(ctx context.Context, taskID string, amountUSD float64) (*EnforcementResult, error) {
	cfg := e.Config()

	if cfg.ProjectBudgetUSD != nil {
		projectSpent, err := e.GetProjectSpent(ctx)
		if err != nil {
			return nil, err
		}
		projectRemaining := *cfg.ProjectBudgetUSD - projectSpent

		if projectSpent+amountUSD > *cfg.ProjectBudgetUSD {
			remaining := projectRemaining
			if remaining < 0 {
				remaining = 0
			}
			return &EnforcementResult{
				Allowed: false, ExceededType: "project",
				LimitUSD: cfg.ProjectBudgetUSD, CurrentUSD: projectSpent, RequestedUSD: amountUSD,
				RemainingUSD: &remaining, ShouldEscalate: true, ShouldAbort: projectRemaining <= 0,
				Message: fmt.Sprintf("Project budget exceeded: $%.2f spent of $%.2f limit, requested $%.2f",
					projectSpent, *cfg.ProjectBudgetUSD, amountUSD),
			}, nil
		}

		if projectSpent/(*cfg.ProjectBudgetUSD)*100 >= cfg.SoftLimitPercent {
			return &EnforcementResult{
				Allowed: true, LimitUSD: cfg.ProjectBudgetUSD, CurrentUSD: projectSpent, RequestedUSD: amountUSD,
				RemainingUSD: &projectRemaining, ShouldEscalate: true, ShouldAbort: false,
				Message: fmt.Sprintf("Project budget at %.1f%%: $%.2f remaining",
					projectSpent/(*cfg.ProjectBudgetUSD)*100, projectRemaining),
			}, nil
		}
	}

	taskBudget := e.GetTaskBudget(taskID)
	if taskBudget != nil {
		taskSpent, err := e.GetTaskSpent(ctx, taskID)
		if err != nil {
			return nil, err
		}
		taskRemaining := *taskBudget - taskSpent

		if taskSpent+amountUSD > *taskBudget {
			remaining := taskRemaining
			if remaining < 0 {
				remaining = 0
			}
			return &EnforcementResult{
				Allowed: false, ExceededType: "task:" + taskID,
				LimitUSD: taskBudget, CurrentUSD: taskSpent, RequestedUSD: amountUSD,
				RemainingUSD: &remaining, ShouldEscalate: true, ShouldAbort: taskRemaining <= 0,
				Message: fmt.Sprintf("Task %s budget exceeded: $%.2f spent of $%.2f limit, requested $%.2f",
					taskID, taskSpent, *taskBudget, amountUSD),
			}, nil
		}
	}

	projectRemaining, err := e.GetProjectRemaining(ctx)
	if err != nil {
		return nil, err
	}
	totalSpent, err := e.GetProjectSpent(ctx)
	if err != nil {
		return nil, err
	}
	return &EnforcementResult{
		Allowed: true, CurrentUSD: totalSpent, RequestedUSD: amountUSD,
		RemainingUSD: projectRemaining, ShouldEscalate: false, ShouldAbort: false,
		Message: "Budget check passed",
	}, nil
}

// RecordSpend appends a ledger entry and logs a warning if the task or
// project is now within WarnAtPercent of its ceiling.
func (e *Engine) RecordSpend(ctx context.Context, taskID, agent string, amountUSD float64, model *string, promptTokens, completionTokens *int) (*store.BudgetRecord, error) {
	rec, err := e.store.CreateBudgetRecord(ctx, uuid.NewString(), &store.BudgetRecord{
		TaskID:       &taskID,
		Agent:        agent,
		CostUSD:      amountUSD,
		TokensInput:  promptTokens,
		TokensOutput: completionTokens,
		Model:        model,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("recorded spend", "task_id", taskID, "agent", agent, "amount_usd", amountUSD)
	e.checkWarningThresholds(ctx, taskID)
	return rec, nil
}

func (e *Engine) checkWarningThresholds(ctx context.Context, taskID string) {
	cfg := e.Config()
	warnRatio := cfg.WarnAtPercent / 100

	if cfg.ProjectBudgetUSD != nil {
		spent, err := e.GetProjectSpent(ctx)
		if err == nil && spent >= *cfg.ProjectBudgetUSD*warnRatio {
			e.logger.Warn("project budget warning",
				"remaining_usd", *cfg.ProjectBudgetUSD-spent,
				"percent_left", 100-spent/(*cfg.ProjectBudgetUSD)*100)
		}
	}

	taskBudget := e.GetTaskBudget(taskID)
	if taskBudget != nil {
		spent, err := e.GetTaskSpent(ctx, taskID)
		if err == nil && spent >= *taskBudget*warnRatio {
			e.logger.Warn("task budget warning",
				"task_id", taskID, "remaining_usd", *taskBudget-spent,
				"percent_left", 100-spent/(*taskBudget)*100)
		}
	}
}

// ResetTaskSpending zeros out a task's balance via a soft-delete negative
// record (preserving the audit trail) and reports whether any spending
// existed to reset.
func (e *Engine) ResetTaskSpending(ctx context.Context, taskID string) (bool, error) {
	spent, err := e.GetTaskSpent(ctx, taskID)
	if err != nil {
		return false, err
	}
	if spent == 0 {
		return false, nil
	}
	_, err = e.store.CreateBudgetRecord(ctx, uuid.NewString(), &store.BudgetRecord{
		TaskID:  &taskID,
		Agent:   "system_reset",
		CostUSD: -spent,
	})
	if err != nil {
		return false, err
	}
	e.logger.Info("reset spending for task (soft delete)", "task_id", taskID)
	return true, nil
}

// ResetAll zeros out every task's balance in the project, one negative
// record per task that had nonzero spend, returning the count reset.
func (e *Engine) ResetAll(ctx context.Context) (int, error) {
	records, err := e.store.FindBudgetRecords(ctx, nil)
	if err != nil {
		return 0, err
	}
	byTask := make(map[string]float64)
	for _, r := range records {
		if r.TaskID == nil {
			continue
		}
		byTask[*r.TaskID] += r.CostUSD
	}
	reset := 0
	for taskID, spent := range byTask {
		if spent == 0 {
			continue
		}
		taskID := taskID
		if _, err := e.store.CreateBudgetRecord(ctx, uuid.NewString(), &store.BudgetRecord{
			TaskID:  &taskID,
			Agent:   "system_reset",
			CostUSD: -spent,
		}); err != nil {
			return reset, err
		}
		reset++
	}
	e.logger.Info("reset spending for tasks (soft delete)", "count", reset)
	return reset, nil
}

// Status is a snapshot suitable for embedding in workflow state or a CLI
// status report.
type Status struct {
	TotalSpentUSD        float64
	ProjectBudgetUSD     *float64
	ProjectRemainingUSD  *float64
	ProjectUsedPercent   *float64
	TaskCount            int
	RecordCount          int
	TaskSpent            map[string]float64
	UpdatedAt            time.Time
	Enabled              bool
}

// GetBudgetStatus computes a full project spend snapshot.
func (e *Engine) GetBudgetStatus(ctx context.Context) (*Status, error) {
	records, err := e.store.FindBudgetRecords(ctx, nil)
	if err != nil {
		return nil, err
	}
	byTask := make(map[string]float64)
	var total float64
	for _, r := range records {
		total += r.CostUSD
		if r.TaskID != nil {
			byTask[*r.TaskID] += r.CostUSD
		}
	}

	cfg := e.Config()
	status := &Status{
		TotalSpentUSD:    total,
		ProjectBudgetUSD: cfg.ProjectBudgetUSD,
		TaskCount:        len(byTask),
		RecordCount:      len(records),
		TaskSpent:        byTask,
		UpdatedAt:        time.Now(),
		Enabled:          cfg.Enabled,
	}
	if cfg.ProjectBudgetUSD != nil {
		remaining := *cfg.ProjectBudgetUSD - total
		status.ProjectRemainingUSD = &remaining
		pct := total / (*cfg.ProjectBudgetUSD) * 100
		status.ProjectUsedPercent = &pct
	}
	return status, nil
}
