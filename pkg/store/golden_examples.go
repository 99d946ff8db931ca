package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/goldenexample"
)

// GoldenExample is the store-layer view of a GoldenExample row.
type GoldenExample struct {
	ID           string
	Project      string
	Agent        string
	TemplateName string
	InputPrompt  string
	Output       string
	Score        float64
	EvaluationID *string
	Metadata     map[string]interface{}
	CreatedAt    time.Time
}

func fromEntGoldenExample(g *ent.GoldenExample) *GoldenExample {
	return &GoldenExample{
		ID:           g.ID,
		Project:      g.Project,
		Agent:        string(g.Agent),
		TemplateName: g.TemplateName,
		InputPrompt:  g.InputPrompt,
		Output:       g.Output,
		Score:        g.Score,
		EvaluationID: g.EvaluationID,
		Metadata:     g.Metadata,
		CreatedAt:    g.CreatedAt,
	}
}

// CreateGoldenExample captures an input/output pair whose overall_score
// cleared the golden threshold, for later use as bootstrap few-shot
// material.
func (s *Store) CreateGoldenExample(ctx context.Context, g *GoldenExample) (*GoldenExample, error) {
	q := s.client.GoldenExample.Create().
		SetID(g.ID).
		SetProject(s.project).
		SetAgent(goldenexample.Agent(g.Agent)).
		SetTemplateName(g.TemplateName).
		SetInputPrompt(g.InputPrompt).
		SetOutput(g.Output).
		SetScore(g.Score).
		SetNillableEvaluationID(g.EvaluationID)
	if g.Metadata != nil {
		q = q.SetMetadata(g.Metadata)
	}
	created, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("create golden example", err)
	}
	return fromEntGoldenExample(created), nil
}

// CountGoldenExamples reports how many golden examples exist for (agent,
// template_name) — the Optimizer's method-selection gate uses this count
// against the bootstrap threshold (golden_count >= 3 per SPEC_FULL.md §13).
func (s *Store) CountGoldenExamples(ctx context.Context, agent, templateName string) (int, error) {
	n, err := s.client.GoldenExample.Query().
		Where(
			goldenexample.Project(s.project),
			goldenexample.Agent(goldenexample.Agent(agent)),
			goldenexample.TemplateName(templateName),
		).
		Count(ctx)
	if err != nil {
		return 0, wrapErr("count golden examples", err)
	}
	return n, nil
}

// FindGoldenExamples returns golden examples for (agent, template_name),
// highest score first, optionally capped at limit (0 = unbounded). Used by
// the Optimizer's bootstrap method to pick few-shot material and by
// validation to reserve a holdout split.
func (s *Store) FindGoldenExamples(ctx context.Context, agent, templateName string, limit int) ([]*GoldenExample, error) {
	q := s.client.GoldenExample.Query().
		Where(
			goldenexample.Project(s.project),
			goldenexample.Agent(goldenexample.Agent(agent)),
			goldenexample.TemplateName(templateName),
		).
		Order(ent.Desc(goldenexample.FieldScore))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, wrapErr("find golden examples", err)
	}
	out := make([]*GoldenExample, len(rows))
	for i, r := range rows {
		out[i] = fromEntGoldenExample(r)
	}
	return out, nil
}
