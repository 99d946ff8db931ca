package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/checkpoint"
)

// Checkpoint is the store-layer view of a Checkpoint row.
type Checkpoint struct {
	ID            string
	Project       string
	Name          string
	Notes         *string
	Phase         int
	TaskProgress  map[string]int
	StateSnapshot map[string]interface{}
	FilesSnapshot []string
	CreatedAt     time.Time
}

func fromEntCheckpoint(c *ent.Checkpoint) *Checkpoint {
	return &Checkpoint{
		ID:            c.ID,
		Project:       c.Project,
		Name:          c.Name,
		Notes:         c.Notes,
		Phase:         c.Phase,
		TaskProgress:  c.TaskProgress,
		StateSnapshot: c.StateSnapshot,
		FilesSnapshot: c.FilesSnapshot,
		CreatedAt:     c.CreatedAt,
	}
}

// CreateCheckpoint persists an immutable snapshot. created_at is
// strictly increasing within a project (spec §5) because it is assigned
// from time.Now by the ent schema's default at insert time and
// checkpoints are never reordered.
func (s *Store) CreateCheckpoint(ctx context.Context, c *Checkpoint) (*Checkpoint, error) {
	created, err := s.client.Checkpoint.Create().
		SetID(c.ID).
		SetProject(s.project).
		SetName(c.Name).
		SetNillableNotes(c.Notes).
		SetPhase(c.Phase).
		SetTaskProgress(c.TaskProgress).
		SetStateSnapshot(c.StateSnapshot).
		SetFilesSnapshot(c.FilesSnapshot).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("create checkpoint", err)
	}
	return fromEntCheckpoint(created), nil
}

// FindCheckpoint looks up a single checkpoint by id.
func (s *Store) FindCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row, err := s.client.Checkpoint.Query().
		Where(checkpoint.Project(s.project), checkpoint.ID(id)).
		Only(ctx)
	if err != nil {
		return nil, wrapErr("find checkpoint", err)
	}
	return fromEntCheckpoint(row), nil
}

// ListCheckpoints returns every checkpoint for this project, newest first.
func (s *Store) ListCheckpoints(ctx context.Context) ([]*Checkpoint, error) {
	rows, err := s.client.Checkpoint.Query().
		Where(checkpoint.Project(s.project)).
		Order(ent.Desc(checkpoint.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("list checkpoints", err)
	}
	out := make([]*Checkpoint, len(rows))
	for i, r := range rows {
		out[i] = fromEntCheckpoint(r)
	}
	return out, nil
}

// PruneOldCheckpoints deletes every checkpoint beyond the keepCount most
// recent, returning the number removed. Idempotent when run back-to-back
// with no new checkpoints (spec §8 round-trip law): a second call with
// nothing beyond keepCount simply deletes zero rows.
func (s *Store) PruneOldCheckpoints(ctx context.Context, keepCount int) (int, error) {
	all, err := s.ListCheckpoints(ctx)
	if err != nil {
		return 0, err
	}
	if len(all) <= keepCount {
		return 0, nil
	}
	toDelete := all[keepCount:]
	ids := make([]string, len(toDelete))
	for i, c := range toDelete {
		ids[i] = c.ID
	}
	n, err := s.client.Checkpoint.Delete().
		Where(checkpoint.Project(s.project), checkpoint.IDIn(ids...)).
		Exec(ctx)
	if err != nil {
		return 0, wrapErr("prune checkpoints", err)
	}
	return n, nil
}
