package store

import (
	"context"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/task"
)

// Task is the store-layer view of a Task row. Kept distinct from
// *ent.Task so callers outside pkg/store never import generated ent
// packages directly.
type Task struct {
	ID                 string
	Project            string
	Title              string
	UserStory          string
	AcceptanceCriteria []string
	Dependencies       []string
	Status             string
	Priority           int
	MilestoneID        *string
	FilesToCreate      []string
	FilesToModify      []string
	TestFiles          []string
	Attempts           int
	MaxAttempts        int
	Error              *string
}

func fromEntTask(t *ent.Task) *Task {
	return &Task{
		ID:                 t.ID,
		Project:            t.Project,
		Title:              t.Title,
		UserStory:          t.UserStory,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Dependencies:       t.Dependencies,
		Status:             string(t.Status),
		Priority:           t.Priority,
		MilestoneID:        t.MilestoneID,
		FilesToCreate:      t.FilesToCreate,
		FilesToModify:      t.FilesToModify,
		TestFiles:          t.TestFiles,
		Attempts:           t.Attempts,
		MaxAttempts:        t.MaxAttempts,
		Error:              t.Error,
	}
}

// CreateTask inserts a new Task. Invariants (attempts<=max_attempts, no
// self-dependency) are the caller's (Workflow Engine's) responsibility
// to uphold before calling; the Store does not re-derive business rules.
func (s *Store) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	created, err := s.client.Task.Create().
		SetID(t.ID).
		SetProject(s.project).
		SetTitle(t.Title).
		SetUserStory(t.UserStory).
		SetAcceptanceCriteria(t.AcceptanceCriteria).
		SetDependencies(t.Dependencies).
		SetNillableMilestoneID(t.MilestoneID).
		SetFilesToCreate(t.FilesToCreate).
		SetFilesToModify(t.FilesToModify).
		SetTestFiles(t.TestFiles).
		SetMaxAttempts(orDefault(t.MaxAttempts, 3)).
		SetPriority(t.Priority).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("create task", err)
	}
	return fromEntTask(created), nil
}

// FindTaskByID looks up a single task within this Store's project.
func (s *Store) FindTaskByID(ctx context.Context, id string) (*Task, error) {
	t, err := s.client.Task.Query().
		Where(task.Project(s.project), task.ID(id)).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("find task", err)
	}
	return fromEntTask(t), nil
}

// TaskUpdate carries the partial-update fields for UpdateTask; nil
// fields are left untouched.
type TaskUpdate struct {
	Status   *string
	Attempts *int
	Error    *string
}

// UpdateTask applies a partial update to a task.
func (s *Store) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*Task, error) {
	q := s.client.Task.UpdateOneID(id).Where(task.Project(s.project))
	if upd.Status != nil {
		q = q.SetStatus(task.Status(*upd.Status))
	}
	if upd.Attempts != nil {
		q = q.SetAttempts(*upd.Attempts)
	}
	if upd.Error != nil {
		q = q.SetError(*upd.Error)
	}
	updated, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("update task", err)
	}
	return fromEntTask(updated), nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	n, err := s.client.Task.Delete().
		Where(task.Project(s.project), task.ID(id)).
		Exec(ctx)
	if err != nil {
		return wrapErr("delete task", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindAllTasks returns up to limit tasks for this project, ordered by
// priority then creation time. limit<=0 means unbounded.
func (s *Store) FindAllTasks(ctx context.Context, limit int) ([]*Task, error) {
	q := s.client.Task.Query().
		Where(task.Project(s.project)).
		Order(ent.Desc(task.FieldPriority), ent.Asc(task.FieldCreatedAt))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, wrapErr("find all tasks", err)
	}
	out := make([]*Task, len(rows))
	for i, r := range rows {
		out[i] = fromEntTask(r)
	}
	return out, nil
}

// CountTasksByStatus returns the per-status counts used by the Workflow
// Engine's checkpoint task-progress snapshot (spec §4.6, §12).
func (s *Store) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.client.Task.Query().
		Where(task.Project(s.project)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("count tasks by status", err)
	}
	counts := make(map[string]int)
	for _, r := range rows {
		counts[string(r.Status)]++
	}
	return counts, nil
}

// DependenciesSatisfied reports whether every id in deps is a completed
// task in this project — the precondition for moving a task to
// in_progress (spec §3 invariant).
func (s *Store) DependenciesSatisfied(ctx context.Context, deps []string) (bool, error) {
	if len(deps) == 0 {
		return true, nil
	}
	n, err := s.client.Task.Query().
		Where(task.Project(s.project), task.IDIn(deps...), task.StatusEQ(task.StatusCompleted)).
		Count(ctx)
	if err != nil {
		return false, wrapErr("check dependencies", err)
	}
	return n == len(deps), nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func wrapErr(op string, err error) error {
	if ent.IsNotFound(err) {
		return ErrNotFound
	}
	return &Unavailable{Op: op, Err: err}
}
