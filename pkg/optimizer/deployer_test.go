package optimizer

import (
	"context"
	"testing"

	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/stretchr/testify/require"
)

func createDraftVersion(t *testing.T, s *store.Store, id string) *store.PromptVersion {
	t.Helper()
	v, err := s.CreatePromptVersion(context.Background(), &store.PromptVersion{
		ID: id, Agent: "writer", TemplateName: "tmpl", Content: "do the thing", Version: 1,
		OptimizationMethod: "opro", Status: "draft",
	})
	require.NoError(t, err)
	return v
}

func recordEvalForVersion(t *testing.T, s *store.Store, versionID string, score float64, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := s.CreateEvaluation(ctx, &store.Evaluation{
			ID: uuidLike("deval-"+versionID, i), Agent: "writer", Node: "tmpl",
			Scores: map[string]float64{}, OverallScore: score, Feedback: "f",
			Suggestions: []string{}, PromptHash: "deadbeefdeadbeef", EvaluatorModel: "haiku",
			PromptVersion: &versionID,
		})
		require.NoError(t, err)
	}
}

func TestDeployerShadowLifecycleRejectsBelowMinimum(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	v := createDraftVersion(t, s, "v-shadow-reject")

	d := NewDeployer(s, DefaultDeploymentConfig, nil)

	start := d.StartShadowTesting(ctx, v.ID)
	require.True(t, start.Success)

	recordEvalForVersion(t, s, v.ID, 3.0, DefaultDeploymentConfig.ShadowTestCount)

	result := d.EvaluateShadowTest(ctx, v.ID)
	require.False(t, result.Success)
	require.Equal(t, "draft", result.ToStatus)

	updated, err := s.FindPromptVersion(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "draft", updated.Status)
}

func TestDeployerShadowPromotesToCanaryOnGoodScore(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	v := createDraftVersion(t, s, "v-shadow-promote")

	d := NewDeployer(s, DefaultDeploymentConfig, nil)
	require.True(t, d.StartShadowTesting(ctx, v.ID).Success)

	recordEvalForVersion(t, s, v.ID, 8.5, DefaultDeploymentConfig.ShadowTestCount)

	result := d.EvaluateShadowTest(ctx, v.ID)
	require.True(t, result.Success)
	require.Equal(t, "canary", result.ToStatus)
}

func TestDeployerCanaryPromotesToProduction(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	v := createDraftVersion(t, s, "v-canary-promote")

	d := NewDeployer(s, DefaultDeploymentConfig, nil)
	require.True(t, d.StartShadowTesting(ctx, v.ID).Success)
	recordEvalForVersion(t, s, v.ID, 8.5, DefaultDeploymentConfig.ShadowTestCount)
	require.True(t, d.EvaluateShadowTest(ctx, v.ID).Success)

	result := d.EvaluateCanary(ctx, v.ID)
	require.True(t, result.Success)
	require.Equal(t, "production", result.ToStatus)

	prod, err := s.FindProductionVersion(ctx, "writer", "tmpl")
	require.NoError(t, err)
	require.Equal(t, v.ID, prod.ID)
}

func TestDeployerRollbackRefusesProduction(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	v := createDraftVersion(t, s, "v-rollback-refuse")
	_, err := s.PromoteToProduction(ctx, "writer", "tmpl", v.ID, nil)
	require.NoError(t, err)

	d := NewDeployer(s, DefaultDeploymentConfig, nil)
	result := d.Rollback(ctx, v.ID, "bad behavior")
	require.False(t, result.Success)
}

func TestDeployerForcePromote(t *testing.T) {
	s := newTestOptimizerStore(t)
	ctx := context.Background()
	v := createDraftVersion(t, s, "v-force")

	d := NewDeployer(s, DefaultDeploymentConfig, nil)
	result := d.ForcePromote(ctx, v.ID)
	require.True(t, result.Success)
	require.Equal(t, "production", result.ToStatus)
}
