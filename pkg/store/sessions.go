package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/session"
)

// Session is the store-layer view of a Session row.
type Session struct {
	ID               string
	Project          string
	TaskID           string
	Agent            string
	Status           string
	InvocationCount  int
	TotalCostUSD     float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
}

func fromEntSession(s *ent.Session) *Session {
	return &Session{
		ID:              s.ID,
		Project:         s.Project,
		TaskID:          s.TaskID,
		Agent:           string(s.Agent),
		Status:          string(s.Status),
		InvocationCount: s.InvocationCount,
		TotalCostUSD:    s.TotalCostUsd,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		ClosedAt:        s.ClosedAt,
	}
}

// CreateSession inserts a new active Session. Closing any prior active
// session for (task_id, agent) is the caller's (SessionRecorder's)
// responsibility — the Store enforces no implicit business rule here,
// only storage.
func (s *Store) CreateSession(ctx context.Context, id, taskID, agent string) (*Session, error) {
	created, err := s.client.Session.Create().
		SetID(id).
		SetProject(s.project).
		SetTaskID(taskID).
		SetAgent(session.Agent(agent)).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("create session", err)
	}
	return fromEntSession(created), nil
}

// FindActiveSession returns the single active session for (task_id,
// agent), or ErrNotFound if none exists.
func (s *Store) FindActiveSession(ctx context.Context, taskID, agent string) (*Session, error) {
	row, err := s.client.Session.Query().
		Where(
			session.Project(s.project),
			session.TaskID(taskID),
			session.Agent(session.Agent(agent)),
			session.StatusEQ(session.StatusActive),
		).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("find active session", err)
	}
	return fromEntSession(row), nil
}

// TouchSession increments invocation_count by one and adds addCostUSD to
// total_cost_usd (updated_at is refreshed by the schema's update default),
// without changing status.
func (s *Store) TouchSession(ctx context.Context, id string, addCostUSD float64) (*Session, error) {
	existing, err := s.client.Session.Query().
		Where(session.Project(s.project), session.ID(id)).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("touch session", err)
	}
	updated, err := s.client.Session.UpdateOneID(id).
		Where(session.Project(s.project)).
		SetInvocationCount(existing.InvocationCount + 1).
		SetTotalCostUsd(existing.TotalCostUsd + addCostUSD).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("touch session", err)
	}
	return fromEntSession(updated), nil
}

// CloseSession marks a session closed. Idempotent: closing an
// already-closed session is a no-op that returns the current row,
// satisfying spec §3's "closing is idempotent" invariant.
func (s *Store) CloseSession(ctx context.Context, id string) (*Session, error) {
	existing, err := s.client.Session.Query().
		Where(session.Project(s.project), session.ID(id)).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("close session", err)
	}
	if existing.Status == session.StatusClosed {
		return fromEntSession(existing), nil
	}
	now := time.Now()
	updated, err := s.client.Session.UpdateOneID(id).
		Where(session.Project(s.project)).
		SetStatus(session.StatusClosed).
		SetClosedAt(now).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("close session", err)
	}
	return fromEntSession(updated), nil
}
