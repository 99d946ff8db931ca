package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/workflowstate"
	"github.com/google/uuid"
)

// WorkflowState is the store-layer view of the singleton per-project
// WorkflowState row.
type WorkflowState struct {
	ID                    string
	Project               string
	CurrentPhase          int
	PhaseStatus           map[string]string
	IterationCount        int
	Plan                  map[string]interface{}
	ValidationFeedback    *string
	VerificationFeedback  *string
	ImplementationResult  map[string]interface{}
	NextDecision          *string
	ExecutionMode         string
	DiscussionComplete    bool
	ResearchComplete      bool
	ResearchFindings      *string
	TokenUsage            map[string]interface{}
	UpdatedAt             time.Time
}

func fromEntWorkflowState(w *ent.WorkflowState) *WorkflowState {
	var nextDecision *string
	if w.NextDecision != nil {
		v := string(*w.NextDecision)
		nextDecision = &v
	}
	return &WorkflowState{
		ID:                   w.ID,
		Project:              w.Project,
		CurrentPhase:         w.CurrentPhase,
		PhaseStatus:          w.PhaseStatus,
		IterationCount:       w.IterationCount,
		Plan:                 w.Plan,
		ValidationFeedback:   w.ValidationFeedback,
		VerificationFeedback: w.VerificationFeedback,
		ImplementationResult: w.ImplementationResult,
		NextDecision:         nextDecision,
		ExecutionMode:        string(w.ExecutionMode),
		DiscussionComplete:   w.DiscussionComplete,
		ResearchComplete:     w.ResearchComplete,
		ResearchFindings:     w.ResearchFindings,
		TokenUsage:           w.TokenUsage,
		UpdatedAt:            w.UpdatedAt,
	}
}

// GetOrCreateWorkflowState returns the project's singleton WorkflowState,
// creating it with phase 1 / afk defaults on first access.
func (s *Store) GetOrCreateWorkflowState(ctx context.Context) (*WorkflowState, error) {
	existing, err := s.client.WorkflowState.Query().
		Where(workflowstate.Project(s.project)).
		Only(ctx)
	if err == nil {
		return fromEntWorkflowState(existing), nil
	}
	if !ent.IsNotFound(err) {
		return nil, wrapErr("get workflow state", err)
	}

	created, err := s.client.WorkflowState.Create().
		SetID(uuid.NewString()).
		SetProject(s.project).
		SetCurrentPhase(1).
		SetPhaseStatus(map[string]string{}).
		SetExecutionMode(workflowstate.ExecutionModeAfk).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("create workflow state", err)
	}
	return fromEntWorkflowState(created), nil
}

// WorkflowStateUpdate carries partial-update fields; nil/zero-value
// fields are left untouched except where explicitly a replacement
// (PhaseStatus, Plan) since those are whole-document JSON columns.
type WorkflowStateUpdate struct {
	CurrentPhase         *int
	PhaseStatus          map[string]string
	IterationCount       *int
	Plan                 map[string]interface{}
	ValidationFeedback   *string
	VerificationFeedback *string
	ImplementationResult map[string]interface{}
	NextDecision         *string
	ExecutionMode        *string
	DiscussionComplete   *bool
	ResearchComplete     *bool
	ResearchFindings     *string
	TokenUsage           map[string]interface{}
}

// UpdateWorkflowState applies a partial update to the project's singleton
// WorkflowState row. All WorkflowState updates go through this single
// method so they are serialized through one ent transaction, matching
// spec §5's "WorkflowState updates are serialized through Store
// transactions."
func (s *Store) UpdateWorkflowState(ctx context.Context, id string, upd WorkflowStateUpdate) (*WorkflowState, error) {
	var result *WorkflowState
	err := s.WithTx(ctx, func(tx *ent.Tx) error {
		q := tx.WorkflowState.UpdateOneID(id).Where(workflowstate.Project(s.project))
		if upd.CurrentPhase != nil {
			q = q.SetCurrentPhase(*upd.CurrentPhase)
		}
		if upd.PhaseStatus != nil {
			q = q.SetPhaseStatus(upd.PhaseStatus)
		}
		if upd.IterationCount != nil {
			q = q.SetIterationCount(*upd.IterationCount)
		}
		if upd.Plan != nil {
			q = q.SetPlan(upd.Plan)
		}
		if upd.ValidationFeedback != nil {
			q = q.SetValidationFeedback(*upd.ValidationFeedback)
		}
		if upd.VerificationFeedback != nil {
			q = q.SetVerificationFeedback(*upd.VerificationFeedback)
		}
		if upd.ImplementationResult != nil {
			q = q.SetImplementationResult(upd.ImplementationResult)
		}
		if upd.NextDecision != nil {
			q = q.SetNextDecision(workflowstate.NextDecision(*upd.NextDecision))
		}
		if upd.ExecutionMode != nil {
			q = q.SetExecutionMode(workflowstate.ExecutionMode(*upd.ExecutionMode))
		}
		if upd.DiscussionComplete != nil {
			q = q.SetDiscussionComplete(*upd.DiscussionComplete)
		}
		if upd.ResearchComplete != nil {
			q = q.SetResearchComplete(*upd.ResearchComplete)
		}
		if upd.ResearchFindings != nil {
			q = q.SetResearchFindings(*upd.ResearchFindings)
		}
		if upd.TokenUsage != nil {
			q = q.SetTokenUsage(upd.TokenUsage)
		}
		updated, err := q.Save(ctx)
		if err != nil {
			return wrapErr("update workflow state", err)
		}
		result = fromEntWorkflowState(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceWorkflowState overwrites the entire live WorkflowState with a
// Checkpoint's snapshot, used only by rollback_to_checkpoint (spec
// §4.6) — the one non-monotonic transition of current_phase.
func (s *Store) ReplaceWorkflowState(ctx context.Context, id string, snap *WorkflowState) (*WorkflowState, error) {
	nextDecision := ""
	if snap.NextDecision != nil {
		nextDecision = *snap.NextDecision
	}
	var result *WorkflowState
	err := s.WithTx(ctx, func(tx *ent.Tx) error {
		q := tx.WorkflowState.UpdateOneID(id).
			Where(workflowstate.Project(s.project)).
			SetCurrentPhase(snap.CurrentPhase).
			SetPhaseStatus(snap.PhaseStatus).
			SetIterationCount(snap.IterationCount).
			SetDiscussionComplete(snap.DiscussionComplete).
			SetResearchComplete(snap.ResearchComplete).
			SetExecutionMode(workflowstate.ExecutionMode(snap.ExecutionMode))
		if snap.Plan != nil {
			q = q.SetPlan(snap.Plan)
		}
		if snap.ValidationFeedback != nil {
			q = q.SetValidationFeedback(*snap.ValidationFeedback)
		}
		if snap.VerificationFeedback != nil {
			q = q.SetVerificationFeedback(*snap.VerificationFeedback)
		}
		if snap.ImplementationResult != nil {
			q = q.SetImplementationResult(snap.ImplementationResult)
		}
		if nextDecision != "" {
			q = q.SetNextDecision(workflowstate.NextDecision(nextDecision))
		} else {
			q = q.ClearNextDecision()
		}
		if snap.ResearchFindings != nil {
			q = q.SetResearchFindings(*snap.ResearchFindings)
		}
		if snap.TokenUsage != nil {
			q = q.SetTokenUsage(snap.TokenUsage)
		}
		updated, err := q.Save(ctx)
		if err != nil {
			return wrapErr("replace workflow state", err)
		}
		result = fromEntWorkflowState(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
