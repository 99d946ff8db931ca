package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProjectConfigSeedsFromSystemDefaults(t *testing.T) {
	sys := DefaultConfig()
	pc := NewProjectConfig("demo-project", sys)

	assert.Equal(t, "demo-project", pc.ProjectName)
	assert.False(t, pc.CreatedAt.IsZero())
	assert.Equal(t, sys.Evaluator.EvaluatorModel, pc.AutoImprovement.Evaluation.Model)
	assert.Equal(t, sys.Deployer.MinimumScore, pc.AutoImprovement.Deployment.MinimumScore)
}

func TestProjectConfigSaveAndLoadRoundTrips(t *testing.T) {
	sys := DefaultConfig()
	pc := NewProjectConfig("demo-project", sys)
	pc.AutoImprovement.Evaluation.SamplingRate = 0.25

	dir := t.TempDir()
	require.NoError(t, pc.Save(dir))

	loaded, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, pc.ProjectName, loaded.ProjectName)
	assert.Equal(t, 0.25, loaded.AutoImprovement.Evaluation.SamplingRate)
}

func TestLoadProjectConfigMissingFileReturnsErrConfigNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadProjectConfig(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestProjectConfigEvaluatorConfigOverridesSamplingRateOnly(t *testing.T) {
	sys := DefaultConfig()
	pc := NewProjectConfig("demo-project", sys)
	pc.AutoImprovement.Evaluation.SamplingRate = 0.1
	pc.AutoImprovement.Evaluation.Model = ""

	ec, err := pc.EvaluatorConfig(sys)
	require.NoError(t, err)
	assert.Equal(t, 0.1, ec.SamplingRate)
	// An empty override model falls back to the system default since
	// mergo.WithOverride only overrides non-zero fields.
	assert.Equal(t, sys.Evaluator.EvaluatorModel, ec.EvaluatorModel)
}

func TestProjectConfigSchedulerConfigOverridesCooldown(t *testing.T) {
	sys := DefaultConfig()
	pc := NewProjectConfig("demo-project", sys)
	pc.AutoImprovement.Optimization.CooldownHours = 48

	sc, err := pc.SchedulerConfig(sys)
	require.NoError(t, err)
	assert.Equal(t, 48, sc.OptimizationCooldownHours)
}

func TestProjectConfigDeploymentConfigOverridesRollbackThreshold(t *testing.T) {
	sys := DefaultConfig()
	pc := NewProjectConfig("demo-project", sys)
	pc.AutoImprovement.Deployment.RollbackThreshold = -0.25

	dc, err := pc.DeploymentConfig(sys)
	require.NoError(t, err)
	assert.Equal(t, -0.25, dc.RollbackThreshold)
	assert.Equal(t, sys.Deployer.CanaryPercentage, dc.CanaryPercentage)
}

func TestWorkflowAutoImprovementMapsEnabledFlags(t *testing.T) {
	sys := DefaultConfig()
	pc := NewProjectConfig("demo-project", sys)
	pc.AutoImprovement.Evaluation.Enabled = false

	wai := pc.WorkflowAutoImprovement()
	assert.False(t, wai.Evaluation.Enabled)
	assert.True(t, wai.Optimization.Enabled)
}
