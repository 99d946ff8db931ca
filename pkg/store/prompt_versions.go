package store

import (
	"context"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/promptversion"
)

// PromptVersion is the store-layer view of a PromptVersion row.
type PromptVersion struct {
	ID                 string
	Project            string
	Agent              string
	TemplateName       string
	Content            string
	Version            int
	ParentVersion      *string
	OptimizationMethod string
	Status             string
	Metrics            map[string]interface{}
}

func fromEntPromptVersion(p *ent.PromptVersion) *PromptVersion {
	return &PromptVersion{
		ID:                 p.ID,
		Project:            p.Project,
		Agent:              string(p.Agent),
		TemplateName:       p.TemplateName,
		Content:            p.Content,
		Version:            p.Version,
		ParentVersion:      p.ParentVersion,
		OptimizationMethod: string(p.OptimizationMethod),
		Status:             string(p.Status),
		Metrics:            p.Metrics,
	}
}

// CreatePromptVersion inserts a new draft version. Version must already be
// one greater than the highest existing version for (agent, template_name)
// — the caller (pkg/optimizer) computes that under the per-project lock.
func (s *Store) CreatePromptVersion(ctx context.Context, p *PromptVersion) (*PromptVersion, error) {
	q := s.client.PromptVersion.Create().
		SetID(p.ID).
		SetProject(s.project).
		SetAgent(promptversion.Agent(p.Agent)).
		SetTemplateName(p.TemplateName).
		SetContent(p.Content).
		SetVersion(p.Version).
		SetNillableParentVersion(p.ParentVersion).
		SetOptimizationMethod(promptversion.OptimizationMethod(p.OptimizationMethod))
	if p.Status != "" {
		q = q.SetStatus(promptversion.Status(p.Status))
	}
	created, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("create prompt version", err)
	}
	return fromEntPromptVersion(created), nil
}

// FindPromptVersion looks up a single version by id.
func (s *Store) FindPromptVersion(ctx context.Context, id string) (*PromptVersion, error) {
	row, err := s.client.PromptVersion.Query().
		Where(promptversion.Project(s.project), promptversion.ID(id)).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("find prompt version", err)
	}
	return fromEntPromptVersion(row), nil
}

// FindProductionVersion returns the single version currently in the
// production slot for (agent, template_name), or ErrNotFound if the
// template has never been deployed.
func (s *Store) FindProductionVersion(ctx context.Context, agent, templateName string) (*PromptVersion, error) {
	row, err := s.client.PromptVersion.Query().
		Where(
			promptversion.Project(s.project),
			promptversion.Agent(promptversion.Agent(agent)),
			promptversion.TemplateName(templateName),
			promptversion.StatusEQ(promptversion.StatusProduction),
		).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("find production version", err)
	}
	return fromEntPromptVersion(row), nil
}

// FindLatestVersion returns the highest-numbered version for (agent,
// template_name) regardless of status, used to compute the next version
// number on create. Returns ErrNotFound if none exists yet.
func (s *Store) FindLatestVersion(ctx context.Context, agent, templateName string) (*PromptVersion, error) {
	row, err := s.client.PromptVersion.Query().
		Where(
			promptversion.Project(s.project),
			promptversion.Agent(promptversion.Agent(agent)),
			promptversion.TemplateName(templateName),
		).
		Order(ent.Desc(promptversion.FieldVersion)).
		First(ctx)
	if err != nil {
		return nil, wrapErr("find latest version", err)
	}
	return fromEntPromptVersion(row), nil
}

// ListVersionsByStatus returns every version for (agent, template_name) in
// a given deployment status.
func (s *Store) ListVersionsByStatus(ctx context.Context, agent, templateName, status string) ([]*PromptVersion, error) {
	rows, err := s.client.PromptVersion.Query().
		Where(
			promptversion.Project(s.project),
			promptversion.Agent(promptversion.Agent(agent)),
			promptversion.TemplateName(templateName),
			promptversion.StatusEQ(promptversion.Status(status)),
		).
		All(ctx)
	if err != nil {
		return nil, wrapErr("list versions by status", err)
	}
	out := make([]*PromptVersion, len(rows))
	for i, r := range rows {
		out[i] = fromEntPromptVersion(r)
	}
	return out, nil
}

// SetPromptVersionStatus transitions a version's deployment status and
// optionally merges metrics recorded at that transition (e.g.
// force_promoted, rollback_reason).
func (s *Store) SetPromptVersionStatus(ctx context.Context, id, status string, metrics map[string]interface{}) (*PromptVersion, error) {
	q := s.client.PromptVersion.UpdateOneID(id).
		Where(promptversion.Project(s.project)).
		SetStatus(promptversion.Status(status))
	if metrics != nil {
		q = q.SetMetrics(metrics)
	}
	updated, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("set prompt version status", err)
	}
	return fromEntPromptVersion(updated), nil
}

// PromoteToProduction retires whatever version currently holds production
// for (agent, template_name), then promotes the given version, atomically.
// This is the Deployer's promote() operation (spec §5 deployment lifecycle):
// at most one production version per (agent, template_name) at any time.
func (s *Store) PromoteToProduction(ctx context.Context, agent, templateName, newVersionID string, metrics map[string]interface{}) (*PromptVersion, error) {
	var promoted *PromptVersion
	err := s.WithTx(ctx, func(tx *ent.Tx) error {
		prior, err := tx.PromptVersion.Query().
			Where(
				promptversion.Project(s.project),
				promptversion.Agent(promptversion.Agent(agent)),
				promptversion.TemplateName(templateName),
				promptversion.StatusEQ(promptversion.StatusProduction),
			).
			Only(ctx)
		if err != nil && !ent.IsNotFound(err) {
			return err
		}
		if prior != nil {
			if _, err := tx.PromptVersion.UpdateOneID(prior.ID).
				SetStatus(promptversion.StatusRetired).
				Save(ctx); err != nil {
				return err
			}
		}
		q := tx.PromptVersion.UpdateOneID(newVersionID).
			Where(promptversion.Project(s.project)).
			SetStatus(promptversion.StatusProduction)
		if metrics != nil {
			q = q.SetMetrics(metrics)
		}
		updated, err := q.Save(ctx)
		if err != nil {
			return err
		}
		promoted = fromEntPromptVersion(updated)
		return nil
	})
	if err != nil {
		return nil, wrapErr("promote to production", err)
	}
	return promoted, nil
}
