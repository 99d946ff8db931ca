package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/budgetrecord"
)

// BudgetRecord is the store-layer view of a BudgetRecord row.
type BudgetRecord struct {
	ID           string
	Project      string
	TaskID       *string
	Agent        string
	CostUSD      float64
	TokensInput  *int
	TokensOutput *int
	Model        *string
	CreatedAt    time.Time
}

func fromEntBudgetRecord(b *ent.BudgetRecord) *BudgetRecord {
	return &BudgetRecord{
		ID:           b.ID,
		Project:      b.Project,
		TaskID:       b.TaskID,
		Agent:        b.Agent,
		CostUSD:      b.CostUsd,
		TokensInput:  b.TokensInput,
		TokensOutput: b.TokensOutput,
		Model:        b.Model,
		CreatedAt:    b.CreatedAt,
	}
}

// CreateBudgetRecord appends a new ledger row. Never updates or deletes
// — see ResetTaskSpending for the soft-delete-via-negative-record path.
func (s *Store) CreateBudgetRecord(ctx context.Context, id string, r *BudgetRecord) (*BudgetRecord, error) {
	q := s.client.BudgetRecord.Create().
		SetID(id).
		SetProject(s.project).
		SetAgent(r.Agent).
		SetCostUsd(r.CostUSD).
		SetNillableTaskID(r.TaskID).
		SetNillableModel(r.Model)
	if r.TokensInput != nil {
		q = q.SetTokensInput(*r.TokensInput)
	}
	if r.TokensOutput != nil {
		q = q.SetTokensOutput(*r.TokensOutput)
	}
	created, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("create budget record", err)
	}
	return fromEntBudgetRecord(created), nil
}

// SumSpend returns the signed sum of cost_usd for this project, optionally
// scoped to a single task. This is the ground truth for
// BudgetEngine.get_task_spent/get_project_spent — spec §8 property 2
// requires the Budget Engine's running total to equal exactly this sum.
func (s *Store) SumSpend(ctx context.Context, taskID *string) (float64, error) {
	q := s.client.BudgetRecord.Query().Where(budgetrecord.Project(s.project))
	if taskID != nil {
		q = q.Where(budgetrecord.TaskID(*taskID))
	}
	rows, err := q.All(ctx)
	if err != nil {
		return 0, wrapErr("sum spend", err)
	}
	var total float64
	for _, r := range rows {
		total += r.CostUsd
	}
	return total, nil
}

// FindBudgetRecords returns every record for this project, optionally
// scoped to a task, oldest first — used by BudgetRepository.find_all and
// the soft-reset audit-preservation test (spec §8 scenario 6).
func (s *Store) FindBudgetRecords(ctx context.Context, taskID *string) ([]*BudgetRecord, error) {
	q := s.client.BudgetRecord.Query().Where(budgetrecord.Project(s.project))
	if taskID != nil {
		q = q.Where(budgetrecord.TaskID(*taskID))
	}
	rows, err := q.Order(ent.Asc(budgetrecord.FieldCreatedAt)).All(ctx)
	if err != nil {
		return nil, wrapErr("find budget records", err)
	}
	out := make([]*BudgetRecord, len(rows))
	for i, r := range rows {
		out[i] = fromEntBudgetRecord(r)
	}
	return out, nil
}

// GetBudgetSummary sums spend within [since, until) grouped by agent —
// BudgetRepository.get_summary(since, until) from spec §4.1.
func (s *Store) GetBudgetSummary(ctx context.Context, since, until time.Time) (map[string]float64, error) {
	rows, err := s.client.BudgetRecord.Query().
		Where(
			budgetrecord.Project(s.project),
			budgetrecord.CreatedAtGTE(since),
			budgetrecord.CreatedAtLT(until),
		).
		All(ctx)
	if err != nil {
		return nil, wrapErr("get budget summary", err)
	}
	summary := make(map[string]float64)
	for _, r := range rows {
		summary[r.Agent] += r.CostUsd
	}
	return summary, nil
}
