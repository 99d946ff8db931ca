package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/optimizationattempt"
)

// OptimizationAttempt is the store-layer view of an OptimizationAttempt row.
type OptimizationAttempt struct {
	ID                string
	Project           string
	Agent             string
	TemplateName      string
	Method            string
	SourceVersion     *string
	TargetVersion     *string
	Success           bool
	SourceScore       *float64
	TargetScore       *float64
	Improvement       *float64
	SamplesUsed       int
	ValidationResults map[string]interface{}
	Error             *string
	CreatedAt         time.Time
}

func fromEntOptimizationAttempt(o *ent.OptimizationAttempt) *OptimizationAttempt {
	return &OptimizationAttempt{
		ID:                o.ID,
		Project:           o.Project,
		Agent:             string(o.Agent),
		TemplateName:      o.TemplateName,
		Method:            string(o.Method),
		SourceVersion:     o.SourceVersion,
		TargetVersion:     o.TargetVersion,
		Success:           o.Success,
		SourceScore:       o.SourceScore,
		TargetScore:       o.TargetScore,
		Improvement:       o.Improvement,
		SamplesUsed:       o.SamplesUsed,
		ValidationResults: o.ValidationResults,
		Error:             o.Error,
		CreatedAt:         o.CreatedAt,
	}
}

// CreateOptimizationAttempt records one call to the Optimizer, whether or
// not it produced a deployable PromptVersion — spec §5's audit trail for
// optimization history.
func (s *Store) CreateOptimizationAttempt(ctx context.Context, o *OptimizationAttempt) (*OptimizationAttempt, error) {
	q := s.client.OptimizationAttempt.Create().
		SetID(o.ID).
		SetProject(s.project).
		SetAgent(optimizationattempt.Agent(o.Agent)).
		SetTemplateName(o.TemplateName).
		SetMethod(optimizationattempt.Method(o.Method)).
		SetNillableSourceVersion(o.SourceVersion).
		SetNillableTargetVersion(o.TargetVersion).
		SetSuccess(o.Success).
		SetNillableSourceScore(o.SourceScore).
		SetNillableTargetScore(o.TargetScore).
		SetNillableImprovement(o.Improvement).
		SetSamplesUsed(o.SamplesUsed).
		SetNillableError(o.Error)
	if o.ValidationResults != nil {
		q = q.SetValidationResults(o.ValidationResults)
	}
	created, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("create optimization attempt", err)
	}
	return fromEntOptimizationAttempt(created), nil
}

// FindRecentOptimizationAttempts returns the most recent attempts for
// (agent, template_name), newest first, capped at limit. The Scheduler's
// cooldown check does not use it; it keeps its own in-memory map.
func (s *Store) FindRecentOptimizationAttempts(ctx context.Context, agent, templateName string, limit int) ([]*OptimizationAttempt, error) {
	q := s.client.OptimizationAttempt.Query().
		Where(
			optimizationattempt.Project(s.project),
			optimizationattempt.Agent(optimizationattempt.Agent(agent)),
			optimizationattempt.TemplateName(templateName),
		).
		Order(ent.Desc(optimizationattempt.FieldCreatedAt))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, wrapErr("find recent optimization attempts", err)
	}
	out := make([]*OptimizationAttempt, len(rows))
	for i, r := range rows {
		out[i] = fromEntOptimizationAttempt(r)
	}
	return out, nil
}
