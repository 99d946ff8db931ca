package store

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/devctrl/orchestrator/ent"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestStore(t *testing.T, project string) *Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv, err := sql.Open(dialect.Postgres, connStr)
	require.NoError(t, err)

	client := ent.NewClient(ent.Driver(drv))
	require.NoError(t, client.Schema.Create(ctx))
	t.Cleanup(func() { client.Close() })

	return New(client, project)
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t, "proj-a")
	ctx := context.Background()

	created, err := s.CreateTask(ctx, &Task{
		ID:                 uuid.NewString(),
		Title:               "Add login endpoint",
		UserStory:           "As a user I want to authenticate",
		AcceptanceCriteria:  []string{"returns 200 on valid creds"},
		FilesToCreate:       []string{"auth.go"},
		Priority:            5,
	})
	require.NoError(t, err)
	require.Equal(t, "pending", created.Status)
	require.Equal(t, 3, created.MaxAttempts)

	found, err := s.FindTaskByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Title, found.Title)

	status := "in_progress"
	updated, err := s.UpdateTask(ctx, created.ID, TaskUpdate{Status: &status})
	require.NoError(t, err)
	require.Equal(t, "in_progress", updated.Status)

	require.NoError(t, s.DeleteTask(ctx, created.ID))
	_, err = s.FindTaskByID(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDependenciesSatisfied(t *testing.T) {
	s := newTestStore(t, "proj-a")
	ctx := context.Background()

	dep, err := s.CreateTask(ctx, &Task{ID: uuid.NewString(), Title: "dep", UserStory: "story"})
	require.NoError(t, err)

	ok, err := s.DependenciesSatisfied(ctx, []string{dep.ID})
	require.NoError(t, err)
	require.False(t, ok)

	status := "completed"
	_, err = s.UpdateTask(ctx, dep.ID, TaskUpdate{Status: &status})
	require.NoError(t, err)

	ok, err = s.DependenciesSatisfied(ctx, []string{dep.ID})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.DependenciesSatisfied(ctx, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWorkflowStateGetOrCreateAndUpdate(t *testing.T) {
	s := newTestStore(t, "proj-b")
	ctx := context.Background()

	state, err := s.GetOrCreateWorkflowState(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, state.CurrentPhase)
	require.Equal(t, "afk", state.ExecutionMode)

	again, err := s.GetOrCreateWorkflowState(ctx)
	require.NoError(t, err)
	require.Equal(t, state.ID, again.ID)

	phase := 2
	iters := 1
	updated, err := s.UpdateWorkflowState(ctx, state.ID, WorkflowStateUpdate{
		CurrentPhase:   &phase,
		IterationCount: &iters,
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.CurrentPhase)
	require.Equal(t, 1, updated.IterationCount)
}

func TestCheckpointRoundTripAndPrune(t *testing.T) {
	s := newTestStore(t, "proj-c")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateCheckpoint(ctx, &Checkpoint{
			ID:            uuid.NewString(),
			Name:          "cp",
			Phase:         1,
			TaskProgress:  map[string]int{"pending": 3},
			StateSnapshot: map[string]interface{}{"x": 1.0},
			FilesSnapshot: []string{"a.go"},
		})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	all, err := s.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)

	n, err := s.PruneOldCheckpoints(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	remaining, err := s.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	n, err = s.PruneOldCheckpoints(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestBudgetSumAndSummary(t *testing.T) {
	s := newTestStore(t, "proj-d")
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &Task{ID: uuid.NewString(), Title: "t", UserStory: "s"})
	require.NoError(t, err)

	_, err = s.CreateBudgetRecord(ctx, uuid.NewString(), &BudgetRecord{TaskID: &task.ID, Agent: "writer", CostUSD: 0.50})
	require.NoError(t, err)
	_, err = s.CreateBudgetRecord(ctx, uuid.NewString(), &BudgetRecord{TaskID: &task.ID, Agent: "writer", CostUSD: 0.25})
	require.NoError(t, err)

	total, err := s.SumSpend(ctx, &task.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.75, total, 0.0001)

	// soft reset via negative record preserves the audit trail
	_, err = s.CreateBudgetRecord(ctx, uuid.NewString(), &BudgetRecord{TaskID: &task.ID, Agent: "writer", CostUSD: -0.75})
	require.NoError(t, err)

	total, err = s.SumSpend(ctx, &task.ID)
	require.NoError(t, err)
	require.InDelta(t, 0, total, 0.0001)

	records, err := s.FindBudgetRecords(ctx, &task.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t, "proj-e")
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &Task{ID: uuid.NewString(), Title: "t", UserStory: "s"})
	require.NoError(t, err)

	sess, err := s.CreateSession(ctx, uuid.NewString(), task.ID, "writer")
	require.NoError(t, err)
	require.Equal(t, "active", sess.Status)

	active, err := s.FindActiveSession(ctx, task.ID, "writer")
	require.NoError(t, err)
	require.Equal(t, sess.ID, active.ID)

	touched, err := s.TouchSession(ctx, sess.ID, 0.10)
	require.NoError(t, err)
	require.Equal(t, 1, touched.InvocationCount)

	closed, err := s.CloseSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "closed", closed.Status)

	// idempotent
	closedAgain, err := s.CloseSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, closed.ClosedAt, closedAgain.ClosedAt)
}

func TestPromptVersionPromotionRetiresPrior(t *testing.T) {
	s := newTestStore(t, "proj-f")
	ctx := context.Background()

	v1, err := s.CreatePromptVersion(ctx, &PromptVersion{
		ID: uuid.NewString(), Agent: "writer", TemplateName: "implement",
		Content: "version one of the implement prompt, long enough to pass validation",
		Version: 1, OptimizationMethod: "manual",
	})
	require.NoError(t, err)
	_, err = s.PromoteToProduction(ctx, "writer", "implement", v1.ID, nil)
	require.NoError(t, err)

	v2, err := s.CreatePromptVersion(ctx, &PromptVersion{
		ID: uuid.NewString(), Agent: "writer", TemplateName: "implement",
		Content: "version two of the implement prompt, also long enough to pass validation",
		Version: 2, OptimizationMethod: "opro",
	})
	require.NoError(t, err)
	promoted, err := s.PromoteToProduction(ctx, "writer", "implement", v2.ID, map[string]interface{}{"force_promoted": true})
	require.NoError(t, err)
	require.Equal(t, "production", promoted.Status)

	retired, err := s.FindPromptVersion(ctx, v1.ID)
	require.NoError(t, err)
	require.Equal(t, "retired", retired.Status)

	prod, err := s.FindProductionVersion(ctx, "writer", "implement")
	require.NoError(t, err)
	require.Equal(t, v2.ID, prod.ID)
}

func TestGoldenExampleCountGate(t *testing.T) {
	s := newTestStore(t, "proj-g")
	ctx := context.Background()

	n, err := s.CountGoldenExamples(ctx, "writer", "implement")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	for i := 0; i < 3; i++ {
		_, err := s.CreateGoldenExample(ctx, &GoldenExample{
			ID: uuid.NewString(), Agent: "writer", TemplateName: "implement",
			InputPrompt: "in", Output: "out", Score: 0.9,
		})
		require.NoError(t, err)
	}

	n, err = s.CountGoldenExamples(ctx, "writer", "implement")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
