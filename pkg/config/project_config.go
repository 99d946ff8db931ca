package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"

	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/optimizer"
	"github.com/devctrl/orchestrator/pkg/workflow"
)

// ProjectConfigFilename is the per-project file spec §6's "Persisted
// state layout" names: `.project-config.json`.
const ProjectConfigFilename = ".project-config.json"

// ProjectConfig is `.project-config.json`'s exact shape from spec §6:
//
//	{project_name, created_at, auto_improvement: {
//	  evaluation:{enabled, model, sampling_rate, max_cost_per_eval},
//	  optimization:{enabled, method, optimization_threshold,
//	    improvement_threshold, max_attempts, cooldown_hours},
//	  deployment:{shadow_test_count, canary_percentage, canary_test_count,
//	    rollback_threshold, minimum_score, auto_promote}}}
//
// This is the one ambient piece that stays on stdlib encoding/json rather
// than yaml+mergo (see DESIGN.md): the wire format is dictated by this
// external contract, not chosen by us.
type ProjectConfig struct {
	ProjectName     string                 `json:"project_name"`
	CreatedAt       time.Time              `json:"created_at"`
	AutoImprovement ProjectAutoImprovement `json:"auto_improvement"`
}

// ProjectAutoImprovement is the project_config.auto_improvement object.
type ProjectAutoImprovement struct {
	Evaluation   ProjectEvaluationConfig   `json:"evaluation"`
	Optimization ProjectOptimizationConfig `json:"optimization"`
	Deployment   ProjectDeploymentConfig   `json:"deployment"`
}

// ProjectEvaluationConfig is the per-project evaluation override.
type ProjectEvaluationConfig struct {
	Enabled        bool    `json:"enabled"`
	Model          string  `json:"model"`
	SamplingRate   float64 `json:"sampling_rate"`
	MaxCostPerEval float64 `json:"max_cost_per_eval"`
}

// ProjectOptimizationConfig is the per-project optimization override.
// Method/MaxAttempts are carried through verbatim per the external
// contract even though the current Optimizer/Scheduler auto-select their
// method and have no per-attempt cap of their own.
type ProjectOptimizationConfig struct {
	Enabled               bool    `json:"enabled"`
	Method                string  `json:"method"`
	OptimizationThreshold float64 `json:"optimization_threshold"`
	ImprovementThreshold  float64 `json:"improvement_threshold"`
	MaxAttempts           int     `json:"max_attempts"`
	CooldownHours         int     `json:"cooldown_hours"`
}

// ProjectDeploymentConfig is the per-project deployment override.
type ProjectDeploymentConfig struct {
	ShadowTestCount   int     `json:"shadow_test_count"`
	CanaryPercentage  float64 `json:"canary_percentage"`
	CanaryTestCount   int     `json:"canary_test_count"`
	RollbackThreshold float64 `json:"rollback_threshold"`
	MinimumScore      float64 `json:"minimum_score"`
	AutoPromote       bool    `json:"auto_promote"`
}

// NewProjectConfig builds a fresh `.project-config.json` for a
// newly-initialized project, seeded from the system defaults.
func NewProjectConfig(name string, sys *Config) *ProjectConfig {
	return &ProjectConfig{
		ProjectName: name,
		CreatedAt:   time.Now().UTC(),
		AutoImprovement: ProjectAutoImprovement{
			Evaluation: ProjectEvaluationConfig{
				Enabled:        true,
				Model:          sys.Evaluator.EvaluatorModel,
				SamplingRate:   sys.Evaluator.SamplingRate,
				MaxCostPerEval: sys.Evaluator.MaxCostPerEval,
			},
			Optimization: ProjectOptimizationConfig{
				Enabled:               true,
				Method:                "auto",
				OptimizationThreshold: sys.Evaluator.OptimizationThreshold,
				ImprovementThreshold:  sys.Evaluator.ImprovementThreshold,
				MaxAttempts:           3,
				CooldownHours:         sys.Scheduler.OptimizationCooldownHours,
			},
			Deployment: ProjectDeploymentConfig{
				ShadowTestCount:   sys.Deployer.ShadowTestCount,
				CanaryPercentage:  sys.Deployer.CanaryPercentage,
				CanaryTestCount:   sys.Deployer.CanaryTestCount,
				RollbackThreshold: sys.Deployer.RollbackThreshold,
				MinimumScore:      sys.Deployer.MinimumScore,
				AutoPromote:       sys.Deployer.AutoPromote,
			},
		},
	}
}

// LoadProjectConfig reads and parses `<projectDir>/.project-config.json`.
func LoadProjectConfig(projectDir string) (*ProjectConfig, error) {
	path := filepath.Join(projectDir, ProjectConfigFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &LoadError{File: path, Err: err}
	}
	return &cfg, nil
}

// Save writes the project config back to `<projectDir>/.project-config.json`.
func (pc *ProjectConfig) Save(projectDir string) error {
	data, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(projectDir, ProjectConfigFilename)
	return os.WriteFile(path, data, 0o644)
}

// EvaluatorConfig merges this project's evaluation overrides onto the
// system defaults via mergo, the same merge-on-top-of-defaults idiom the
// teacher's loader.go uses for its queue config.
func (pc *ProjectConfig) EvaluatorConfig(sys *Config) (evaluator.Config, error) {
	cfg := sys.EvaluatorConfig()
	override := evaluator.Config{
		EvaluatorModel: pc.AutoImprovement.Evaluation.Model,
		SamplingRate:   pc.AutoImprovement.Evaluation.SamplingRate,
		MaxCostPerEval: pc.AutoImprovement.Evaluation.MaxCostPerEval,
	}
	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return evaluator.Config{}, fmt.Errorf("merge evaluator config for project %q: %w", pc.ProjectName, err)
	}
	return cfg, nil
}

// SchedulerConfig merges this project's optimization overrides onto the
// system defaults.
func (pc *ProjectConfig) SchedulerConfig(sys *Config) (optimizer.SchedulerConfig, error) {
	cfg := sys.SchedulerConfig()
	override := optimizer.SchedulerConfig{
		ScoreThreshold:            pc.AutoImprovement.Optimization.OptimizationThreshold,
		OptimizationCooldownHours: pc.AutoImprovement.Optimization.CooldownHours,
		AutoOptimize:              pc.AutoImprovement.Optimization.Enabled,
	}
	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return optimizer.SchedulerConfig{}, fmt.Errorf("merge scheduler config for project %q: %w", pc.ProjectName, err)
	}
	return cfg, nil
}

// DeploymentConfig merges this project's deployment overrides onto the
// system defaults.
func (pc *ProjectConfig) DeploymentConfig(sys *Config) (optimizer.DeploymentConfig, error) {
	cfg := sys.DeploymentConfig()
	override := optimizer.DeploymentConfig{
		ShadowTestCount:   pc.AutoImprovement.Deployment.ShadowTestCount,
		CanaryPercentage:  pc.AutoImprovement.Deployment.CanaryPercentage,
		CanaryTestCount:   pc.AutoImprovement.Deployment.CanaryTestCount,
		RollbackThreshold: pc.AutoImprovement.Deployment.RollbackThreshold,
		MinimumScore:      pc.AutoImprovement.Deployment.MinimumScore,
		AutoPromote:       pc.AutoImprovement.Deployment.AutoPromote,
	}
	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return optimizer.DeploymentConfig{}, fmt.Errorf("merge deployment config for project %q: %w", pc.ProjectName, err)
	}
	return cfg, nil
}

// WorkflowAutoImprovement maps this project's enable/disable + sampling
// flags onto workflow.AutoImprovementConfig, the thinner subset the
// engine itself gates on at each phase.
func (pc *ProjectConfig) WorkflowAutoImprovement() workflow.AutoImprovementConfig {
	return workflow.AutoImprovementConfig{
		Evaluation: workflow.EvaluationConfig{
			Enabled:      pc.AutoImprovement.Evaluation.Enabled,
			SamplingRate: pc.AutoImprovement.Evaluation.SamplingRate,
		},
		Optimization: workflow.OptimizationConfig{
			Enabled: pc.AutoImprovement.Optimization.Enabled,
		},
		Deployment: workflow.DeploymentConfig{
			Enabled: pc.AutoImprovement.Deployment.AutoPromote,
		},
	}
}
