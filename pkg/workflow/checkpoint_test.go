package workflow

import (
	"context"
	"testing"

	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/stretchr/testify/require"
)

// TestCheckpointRoundTripPreservesState exercises spec §8 property 4: a
// checkpoint immediately rolled back to must restore WorkflowState to
// exactly what it was when the checkpoint was taken.
func TestCheckpointRoundTripPreservesState(t *testing.T) {
	engine, registry, project := newTestEngine(t, &fakeInvoker{})
	ctx := context.Background()
	s := registry.Get(project)

	initial, err := s.GetOrCreateWorkflowState(ctx)
	require.NoError(t, err)

	next := 3
	status := map[string]string{"1": PhaseStatusCompleted, "2": PhaseStatusCompleted}
	plan := map[string]interface{}{"summary": "do the thing"}
	before, err := s.UpdateWorkflowState(ctx, initial.ID, store.WorkflowStateUpdate{
		CurrentPhase: &next, PhaseStatus: status, Plan: plan,
	})
	require.NoError(t, err)

	ck, err := engine.CreateCheckpoint(ctx, project, "mid-run", "before risky step", nil)
	require.NoError(t, err)
	require.Equal(t, before.CurrentPhase, ck.Phase)

	// Mutate state after the checkpoint so rollback has something to undo.
	advanced := before.CurrentPhase + 1
	_, err = s.UpdateWorkflowState(ctx, before.ID, store.WorkflowStateUpdate{CurrentPhase: &advanced})
	require.NoError(t, err)

	restored, err := engine.RollbackToCheckpoint(ctx, project, ck.ID, true)
	require.NoError(t, err)
	require.Equal(t, before.CurrentPhase, restored.CurrentPhase)
	require.Equal(t, before.PhaseStatus, restored.PhaseStatus)
	require.Equal(t, before.Plan, restored.Plan)
}

func TestRollbackRequiresConfirm(t *testing.T) {
	engine, _, project := newTestEngine(t, &fakeInvoker{})
	ctx := context.Background()

	ck, err := engine.CreateCheckpoint(ctx, project, "first", "", nil)
	require.NoError(t, err)

	_, err = engine.RollbackToCheckpoint(ctx, project, ck.ID, false)
	require.Error(t, err)
}

func TestPruneOldCheckpointsIsIdempotent(t *testing.T) {
	engine, _, project := newTestEngine(t, &fakeInvoker{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.CreateCheckpoint(ctx, project, "ckpt", "", nil)
		require.NoError(t, err)
	}

	n, err := engine.PruneOldCheckpoints(ctx, project, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = engine.PruneOldCheckpoints(ctx, project, 1)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
