package evaluator

import (
	"context"
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

// fakeJudge returns a fixed Result regardless of input, letting tests
// exercise Evaluator's sampling/cost/persistence logic without a live
// judge-model dependency.
type fakeJudge struct {
	result Result
	calls  int
}

func (f *fakeJudge) Evaluate(ctx context.Context, p EvalParams) Result {
	f.calls++
	return f.result
}

func newTestStoreAndTask(t *testing.T) (*store.Store, string) {
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

	s := store.New(client, "proj-evaluator")
	task, err := s.CreateTask(ctx, &store.Task{ID: uuid.NewString(), Title: "t", UserStory: "s"})
	require.NoError(t, err)
	return s, task.ID
}

func TestEvaluatePersistsResultAndAppliesThresholds(t *testing.T) {
	s, taskID := newTestStoreAndTask(t)
	ctx := context.Background()

	judge := &fakeJudge{result: Result{
		Scores:         map[string]float64{string(TaskCompletion): 9.5, string(OutputQuality): 9.5},
		OverallScore:   9.5,
		Evaluations:    []CriterionEvaluation{{Criterion: TaskCompletion, Score: 9.5, Feedback: "great"}},
		Suggestions:    nil,
		PromptHash:     "abcdef0123456789",
		EvaluatorModel: "haiku",
	}}

	cfg := DefaultConfig
	e := New(judge, s, cfg, nil)

	eval, err := e.Evaluate(ctx, EvaluateParams{Agent: "writer", Node: "implement_task", Prompt: "do it", Output: "done", TaskID: &taskID})
	require.NoError(t, err)
	require.NotNil(t, eval)
	require.Equal(t, 1, judge.calls)
	require.True(t, e.IsGoldenExample(eval))
	require.False(t, e.NeedsOptimization(eval))
	require.False(t, e.IndicatesFailure(eval))

	history, err := e.GetEvaluationHistory(ctx, taskID, "writer", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestEvaluateSkipsUnderSamplingUnlessForced(t *testing.T) {
	s, taskID := newTestStoreAndTask(t)
	ctx := context.Background()

	judge := &fakeJudge{result: Result{OverallScore: 8, Scores: map[string]float64{}, PromptHash: "0123456789abcdef"}}
	cfg := DefaultConfig
	cfg.SamplingRate = 0.0
	e := New(judge, s, cfg, nil)

	eval, err := e.Evaluate(ctx, EvaluateParams{Agent: "writer", Node: "n", Prompt: "p", Output: "o", TaskID: &taskID})
	require.NoError(t, err)
	require.Nil(t, eval)
	require.Equal(t, 0, judge.calls)

	forced, err := e.Evaluate(ctx, EvaluateParams{Agent: "writer", Node: "n", Prompt: "p", Output: "o", TaskID: &taskID, Force: true})
	require.NoError(t, err)
	require.NotNil(t, forced)
	require.Equal(t, 1, judge.calls)
}

func TestNeedsOptimizationBelowThreshold(t *testing.T) {
	s, taskID := newTestStoreAndTask(t)
	ctx := context.Background()

	judge := &fakeJudge{result: Result{OverallScore: 4.0, Scores: map[string]float64{}, PromptHash: "fedcba9876543210"}}
	e := New(judge, s, DefaultConfig, nil)

	eval, err := e.Evaluate(ctx, EvaluateParams{Agent: "writer", Node: "n", Prompt: "p", Output: "o", TaskID: &taskID, Force: true})
	require.NoError(t, err)
	require.True(t, e.NeedsOptimization(eval))
	require.True(t, e.IndicatesFailure(eval))
	require.False(t, e.IsGoldenExample(eval))
}

func TestGetPromptPerformanceRequiresMinSamples(t *testing.T) {
	s, taskID := newTestStoreAndTask(t)
	ctx := context.Background()

	hash := "1111222233334444"
	judge := &fakeJudge{result: Result{OverallScore: 8.0, Scores: map[string]float64{}, PromptHash: hash}}
	e := New(judge, s, DefaultConfig, nil)

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(ctx, EvaluateParams{Agent: "writer", Node: "n", Prompt: "p", Output: "o", TaskID: &taskID, Force: true})
		require.NoError(t, err)
	}

	perf, err := e.GetPromptPerformance(ctx, hash, 5)
	require.NoError(t, err)
	require.Nil(t, perf, "expected nil with fewer than min_samples evaluations")

	perf, err = e.GetPromptPerformance(ctx, hash, 3)
	require.NoError(t, err)
	require.NotNil(t, perf)
	require.Equal(t, 3, perf.SampleCount)
	require.Equal(t, 8.0, perf.AvgScore)
	require.Equal(t, 0.0, perf.StdDev)
}

func TestStdDevKnownValues(t *testing.T) {
	require.Equal(t, 0.0, stdDev([]float64{5}))
	require.InDelta(t, 2.0, stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.01)
}

func TestSelectMetricsForCostFullBudget(t *testing.T) {
	e := New(&fakeJudge{}, nil, DefaultConfig, nil)
	require.Nil(t, e.selectMetricsForCost())
}

func TestSelectMetricsForCostConstrainedBudget(t *testing.T) {
	cfg := DefaultConfig
	cfg.MaxCostPerEval = 0.0035 // comfortably between 3 and 4 criteria's cost, avoiding float boundary flakiness
	e := New(&fakeJudge{}, nil, cfg, nil)

	metrics := e.selectMetricsForCost()
	require.Equal(t, []Metric{TaskCompletion, OutputQuality, ReasoningQuality}, metrics)
}

func TestEvaluateImplementationAddsFileAndTestRequirements(t *testing.T) {
	var captured EvalParams
	judge := &fakeJudgeCapture{fakeJudge: fakeJudge{result: Result{OverallScore: 8, Scores: map[string]float64{}, PromptHash: "abcabcabcabcabc1"}}, captured: &captured}
	e := New(judge, nil, DefaultConfig, nil)

	_, err := e.EvaluateImplementation(context.Background(), ImplementationParams{
		Agent: "writer", Prompt: "p", Output: "o", TaskID: "t1",
		AcceptanceCriteria: []string{"must compile"},
		FilesCreated:       []string{"a.go"},
		TestResults:        map[string]interface{}{"passed": true},
	})
	require.NoError(t, err)
	require.Contains(t, captured.Requirements, "must compile")
	require.Contains(t, captured.Requirements, "Expected to create files: a.go")
	require.Contains(t, captured.Requirements, "All tests should pass")
	require.Equal(t, "implement_task", captured.Node)
}

type fakeJudgeCapture struct {
	fakeJudge
	captured *EvalParams
}

func (f *fakeJudgeCapture) Evaluate(ctx context.Context, p EvalParams) Result {
	*f.captured = p
	return f.fakeJudge.Evaluate(ctx, p)
}
