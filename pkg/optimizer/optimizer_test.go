package optimizer

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestHeuristicValidateRewardsStructuredPrompt(t *testing.T) {
	bare := heuristicValidate("do the task")
	structured := heuristicValidate(`## Instructions
You must always respond in JSON output format.
1. Read the input
2. Produce the result

Example:
` + "```\n{}\n```")

	if structured <= bare {
		t.Fatalf("expected a structured prompt to score higher: structured=%v bare=%v", structured, bare)
	}
}

func TestHeuristicValidateClampsRange(t *testing.T) {
	if got := heuristicValidate(""); got < 1.0 || got > 10.0 {
		t.Fatalf("expected score within [1,10], got %v", got)
	}
}

func newTestOptimizerStore(t *testing.T) *store.Store {
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

	return store.New(client, "proj-optimizer")
}

func TestSelectMethodPrefersBootstrapWithEnoughGoldenExamples(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	o := New(s, NewOPRO(&fakeRewriter{}, "", 0, 0, 0), NewBootstrap(&fakeRewriter{}, "", 0, 0), nil, 0, 0, nil)

	method, err := o.selectMethod(ctx, "writer", "tmpl-a")
	require.NoError(t, err)
	require.Equal(t, "opro", method)

	for i := 0; i < 3; i++ {
		_, err := s.CreateGoldenExample(ctx, &store.GoldenExample{
			ID: uuidLike("golden", i), Agent: "writer", TemplateName: "tmpl-a",
			InputPrompt: "in", Output: "out", Score: 9.5,
		})
		require.NoError(t, err)
	}

	method, err = o.selectMethod(ctx, "writer", "tmpl-a")
	require.NoError(t, err)
	require.Equal(t, "bootstrap", method)
}

func TestOptimizeReportsInsufficientSamplesWithoutForce(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	o := New(s, NewOPRO(&fakeRewriter{}, "", 0, 0, 0), NewBootstrap(&fakeRewriter{}, "", 0, 0), nil, 10, 0, nil)

	result, err := o.Optimize(ctx, "writer", "tmpl-b", "", false)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "none", result.Method)
}

func TestShouldOptimizeDetectsLowAverage(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	o := New(s, NewOPRO(&fakeRewriter{}, "", 0, 0, 0), NewBootstrap(&fakeRewriter{}, "", 0, 0), nil, 3, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := s.CreateEvaluation(ctx, &store.Evaluation{
			ID: uuidLike("eval", i), Agent: "writer", Node: "tmpl-c",
			Scores: map[string]float64{}, OverallScore: 3.0, Feedback: "f",
			Suggestions: []string{}, PromptHash: "abc0123456789abc", EvaluatorModel: "haiku",
		})
		require.NoError(t, err)
	}

	should, reason, err := o.ShouldOptimize(ctx, "writer", "tmpl-c", 7.0)
	require.NoError(t, err)
	require.True(t, should)
	require.Contains(t, reason, "below threshold")
}

func uuidLike(prefix string, i int) string {
	return prefix + "-" + time.Now().Format("150405.000000000") + "-" + string(rune('a'+i))
}
