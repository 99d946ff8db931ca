package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *store.Store, string) {
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

	s := store.New(client, "proj-budget")
	task, err := s.CreateTask(ctx, &store.Task{ID: uuid.NewString(), Title: "t", UserStory: "s"})
	require.NoError(t, err)

	return New(s, cfg, nil), s, task.ID
}

func TestCanSpendWithinLimits(t *testing.T) {
	taskBudget := 2.00
	projectBudget := 10.00
	cfg := Config{TaskBudgetUSD: &taskBudget, ProjectBudgetUSD: &projectBudget, InvocationBudgetUSD: 1.0, Enabled: true}
	e, _, taskID := newTestEngine(t, cfg)
	ctx := context.Background()

	ok, err := e.CanSpend(ctx, taskID, 1.50)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.RecordSpend(ctx, taskID, "writer", 1.50, nil, nil, nil)
	require.NoError(t, err)

	ok, err = e.CanSpend(ctx, taskID, 1.00)
	require.NoError(t, err)
	require.False(t, ok, "1.50 + 1.00 exceeds the 2.00 task budget")
}

func TestRequireBudgetRaisesExceededError(t *testing.T) {
	taskBudget := 1.00
	cfg := Config{TaskBudgetUSD: &taskBudget, InvocationBudgetUSD: 1.0, Enabled: true}
	e, _, taskID := newTestEngine(t, cfg)
	ctx := context.Background()

	err := e.RequireBudget(ctx, taskID, 2.00)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBudgetExceeded))

	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, "task:"+taskID, exceeded.LimitType)
}

func TestEnforceBudgetSoftLimitEscalates(t *testing.T) {
	projectBudget := 10.00
	cfg := Config{ProjectBudgetUSD: &projectBudget, InvocationBudgetUSD: 1.0, SoftLimitPercent: 90, Enabled: true}
	e, _, taskID := newTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.RecordSpend(ctx, taskID, "writer", 9.50, nil, nil, nil)
	require.NoError(t, err)

	result, err := e.EnforceBudget(ctx, taskID, 0.10)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.True(t, result.ShouldEscalate)
	require.False(t, result.ShouldAbort)
}

func TestEnforceBudgetHardLimitAborts(t *testing.T) {
	taskBudget := 1.00
	cfg := Config{TaskBudgetUSD: &taskBudget, InvocationBudgetUSD: 1.0, SoftLimitPercent: 90, Enabled: true}
	e, _, taskID := newTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.RecordSpend(ctx, taskID, "writer", 1.00, nil, nil, nil)
	require.NoError(t, err)

	result, err := e.EnforceBudget(ctx, taskID, 0.50)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Equal(t, "task:"+taskID, result.ExceededType)
	require.True(t, result.ShouldAbort, "nothing remains once the task budget is fully spent")
}

func TestResetTaskSpendingPreservesAuditTrail(t *testing.T) {
	cfg := DefaultConfig()
	e, s, taskID := newTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.RecordSpend(ctx, taskID, "writer", 3.00, nil, nil, nil)
	require.NoError(t, err)

	ok, err := e.ResetTaskSpending(ctx, taskID)
	require.NoError(t, err)
	require.True(t, ok)

	spent, err := e.GetTaskSpent(ctx, taskID)
	require.NoError(t, err)
	require.InDelta(t, 0, spent, 0.0001)

	records, err := s.FindBudgetRecords(ctx, &taskID)
	require.NoError(t, err)
	require.Len(t, records, 2, "reset must append a record, not delete history")

	// Resetting an already-zero task is a no-op.
	ok, err = e.ResetTaskSpending(ctx, taskID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetBudgetStatus(t *testing.T) {
	cfg := DefaultConfig()
	e, _, taskID := newTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.RecordSpend(ctx, taskID, "writer", 2.50, nil, nil, nil)
	require.NoError(t, err)

	status, err := e.GetBudgetStatus(ctx)
	require.NoError(t, err)
	require.InDelta(t, 2.50, status.TotalSpentUSD, 0.0001)
	require.Equal(t, 1, status.TaskCount)
	require.NotNil(t, status.ProjectUsedPercent)
}
