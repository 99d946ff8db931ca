package workflow

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/pkg/budget"
	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/optimizer"
	"github.com/devctrl/orchestrator/pkg/progress"
	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient spins up a disposable Postgres container, matching every
// other package's testcontainers-backed integration style
// (pkg/store/store_integration_test.go, pkg/optimizer/optimizer_test.go).
func newTestClient(t *testing.T) *ent.Client {
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
	return client
}

// fakeInvoker is a scripted AgentInvoker: every call to Invoke returns the
// next response in the queue (or the last one, once exhausted), letting
// each test script a deterministic agent conversation without shelling
// out to a real CLI.
type fakeInvoker struct {
	responses []InvocationResponse
	calls     []AgentKind
}

func (f *fakeInvoker) Invoke(ctx context.Context, kind AgentKind, req InvocationRequest) (InvocationResponse, error) {
	f.calls = append(f.calls, kind)
	if len(f.responses) == 0 {
		return InvocationResponse{Content: "ok"}, nil
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type fakeStatsSource struct{}

func (fakeStatsSource) EvaluationStatsByAgent(ctx context.Context, since time.Time) ([]optimizer.AgentStat, error) {
	return nil, nil
}

func (fakeStatsSource) EvaluationStatsByTemplate(ctx context.Context, agent string, since time.Time) ([]optimizer.TemplateStat, error) {
	return nil, nil
}

type fakeJudge struct{}

func (fakeJudge) Evaluate(ctx context.Context, p evaluator.EvalParams) evaluator.Result {
	return evaluator.Result{OverallScore: 9.0, Scores: map[string]float64{}, PromptHash: "0000000000000000"}
}

// newTestEngine builds an Engine with auto-improvement disabled, so every
// test below exercises the phase state machine itself without needing a
// working evaluator/optimizer LLM round trip behind it.
func newTestEngine(t *testing.T, invoker AgentInvoker) (*Engine, *store.Registry, string) {
	client := newTestClient(t)
	registry := store.NewRegistry(client)
	project := "proj-" + t.Name()

	cfg := DefaultConfig
	cfg.AutoImprovement.Evaluation.Enabled = false
	cfg.AutoImprovement.Optimization.Enabled = false
	cfg.AutoImprovement.Deployment.Enabled = false
	cfg.ChatTimeout = 5 * time.Second

	eval := evaluator.New(fakeJudge{}, nil, evaluator.DefaultConfig, nil)
	opt := optimizer.New(nil, nil, nil, nil, 0, 0, nil)
	sched := optimizer.NewScheduler(fakeStatsSource{}, opt, optimizer.DefaultSchedulerConfig, nil)
	dep := optimizer.NewDeployer(nil, optimizer.DefaultDeploymentConfig, nil)

	engine := New(Deps{
		Stores:    registry,
		Invoker:   invoker,
		Budgets:   func(project string) *budget.Engine { return budget.New(registry.Get(project), budget.DefaultConfig(), nil) },
		Evaluator: eval,
		Optimizer: opt,
		Scheduler: sched,
		Deployer:  dep,
		Scanners:  DefaultScannerSet(),
		Progress:  func(progress.EventType, interface{}) {},
		Logger:    slog.Default(),
	}, cfg)

	return engine, registry, project
}

func TestRunDrivesHappyPathToCompletion(t *testing.T) {
	invoker := &fakeInvoker{responses: []InvocationResponse{
		{Content: "- build the feature"}, // planning
		{Content: "looks good"},          // validator
		{Content: "looks good"},          // reviewer
		{Content: "implemented"},         // writer on the one task
	}}
	engine, _, project := newTestEngine(t, invoker)

	outcome, err := engine.Run(context.Background(), project)
	require.NoError(t, err)
	require.Equal(t, "completed", outcome.Status)
	require.Equal(t, PhaseCompletion, outcome.Phase)
}

func TestRunIsIdempotentAfterCompletion(t *testing.T) {
	invoker := &fakeInvoker{}
	engine, _, project := newTestEngine(t, invoker)

	first, err := engine.Run(context.Background(), project)
	require.NoError(t, err)
	require.Equal(t, "completed", first.Status)

	second, err := engine.Run(context.Background(), project)
	require.NoError(t, err)
	require.Equal(t, "completed", second.Status)
}

func TestResumeAfterEscalationContinues(t *testing.T) {
	engine, registry, project := newTestEngine(t, &fakeInvoker{})
	ctx := context.Background()

	s := registry.Get(project)
	state, err := s.GetOrCreateWorkflowState(ctx)
	require.NoError(t, err)
	rc := &runContext{project: project, store: s, state: state}

	interrupt := &PendingInterrupt{Kind: "validation_rejected", Question: "proceed?", RaisedAt: "validation"}
	require.NoError(t, engine.setPendingInterrupt(ctx, rc, interrupt))

	reloaded, err := s.GetOrCreateWorkflowState(ctx)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ImplementationResult["pending_interrupt"])
	require.Equal(t, DecisionEscalate, *reloaded.NextDecision)

	human := "continue"
	outcome, err := engine.Resume(ctx, project, ResumeInput{HumanResponse: &human})
	require.NoError(t, err)
	require.Equal(t, "completed", outcome.Status)

	final, err := s.GetOrCreateWorkflowState(ctx)
	require.NoError(t, err)
	require.Nil(t, final.ImplementationResult["pending_interrupt"])
	require.Equal(t, "continue", final.ImplementationResult["last_escalation_response"])
}
