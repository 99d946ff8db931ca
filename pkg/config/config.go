package config

import (
	"time"

	"github.com/devctrl/orchestrator/pkg/budget"
	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/optimizer"
	"github.com/devctrl/orchestrator/pkg/workflow"
)

// Config is the umbrella system-wide configuration object loaded once at
// startup (spec.md §9's "yaml+mergo config" ambient stack, carried over
// from the teacher's pkg/config.Config). Unlike the teacher's Config,
// which holds component registries (agents/chains/MCP servers/LLM
// providers) for its dashboard-facing multi-agent-chain domain, this
// Config holds the tunables for our four subsystems: budget enforcement,
// evaluation, optimization scheduling, and deployment. Per-project
// overrides live in ProjectConfig (project_config.go) and are merged on
// top of these system defaults.
type Config struct {
	configDir string

	Budget    BudgetDefaults    `yaml:"budget"`
	Evaluator EvaluatorDefaults `yaml:"evaluator"`
	Scheduler SchedulerDefaults `yaml:"scheduler"`
	Deployer  DeployerDefaults  `yaml:"deployer"`
	Workflow  WorkflowDefaults  `yaml:"workflow"`
	Retention *RetentionConfig  `yaml:"retention"`
}

// BudgetDefaults is the system-wide budget.Config expressed with yaml
// tags so it can be loaded/overridden from orchestrator.yaml.
type BudgetDefaults struct {
	ProjectBudgetUSD    *float64 `yaml:"project_budget_usd"`
	TaskBudgetUSD       *float64 `yaml:"task_budget_usd"`
	InvocationBudgetUSD float64  `yaml:"invocation_budget_usd"`
	WarnAtPercent       float64  `yaml:"warn_at_percent"`
	SoftLimitPercent    float64  `yaml:"soft_limit_percent"`
	Enabled             bool     `yaml:"enabled"`
}

// EvaluatorDefaults is evaluator.Config expressed with yaml tags.
type EvaluatorDefaults struct {
	EvaluatorModel string  `yaml:"evaluator_model"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	MaxCostPerEval float64 `yaml:"max_cost_per_eval"`
	EnableStorage  bool    `yaml:"enable_storage"`

	OptimizationThreshold  float64 `yaml:"optimization_threshold"`
	GoldenExampleThreshold float64 `yaml:"golden_example_threshold"`
	FailureThreshold       float64 `yaml:"failure_threshold"`
	ImprovementThreshold   float64 `yaml:"improvement_threshold"`
}

// SchedulerDefaults is optimizer.SchedulerConfig expressed with yaml tags.
type SchedulerDefaults struct {
	ScoreThreshold            float64 `yaml:"score_threshold"`
	MinSamples                int     `yaml:"min_samples"`
	MinSamplesPerTemplate     int     `yaml:"min_samples_per_template"`
	OptimizationCooldownHours int     `yaml:"optimization_cooldown_hours"`
	MaxConcurrent             int     `yaml:"max_concurrent"`
	CheckIntervalSeconds      int     `yaml:"check_interval_seconds"`
	AutoOptimize              bool    `yaml:"auto_optimize"`
}

// DeployerDefaults is optimizer.DeploymentConfig expressed with yaml tags.
type DeployerDefaults struct {
	ShadowTestCount   int     `yaml:"shadow_test_count"`
	CanaryPercentage  float64 `yaml:"canary_percentage"`
	CanaryTestCount   int     `yaml:"canary_test_count"`
	RollbackThreshold float64 `yaml:"rollback_threshold"`
	MinimumScore      float64 `yaml:"minimum_score"`
	AutoPromote       bool    `yaml:"auto_promote"`
}

// WorkflowDefaults is the subset of workflow.Config that makes sense as
// system-wide tuning (timeouts, retry/checkpoint bounds, agent binaries).
type WorkflowDefaults struct {
	ChatTimeoutSeconds      int `yaml:"chat_timeout_seconds"`
	CommandTimeoutSeconds   int `yaml:"command_timeout_seconds"`
	OptimizerTimeoutSeconds int `yaml:"optimizer_timeout_seconds"`
	EvaluatorTimeoutSeconds int `yaml:"evaluator_timeout_seconds"`
	MaxTaskAttempts         int `yaml:"max_task_attempts"`
	MaxRalphIterations      int `yaml:"max_ralph_iterations"`
	CheckpointKeepCount     int `yaml:"checkpoint_keep_count"`

	// AgentBinaries maps an agent role ("writer"|"validator"|"reviewer")
	// to the CLI executable invoked for it; every role defaults to
	// "claude" (see pkg/agentproc's grounding on spawn_worker_claude).
	AgentBinaries map[string]string `yaml:"agent_binaries"`
}

// ConfigDir returns the directory Config was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// BudgetConfig converts the loaded system defaults into budget.Config.
func (c *Config) BudgetConfig() budget.Config {
	return budget.Config{
		ProjectBudgetUSD:    c.Budget.ProjectBudgetUSD,
		TaskBudgetUSD:       c.Budget.TaskBudgetUSD,
		InvocationBudgetUSD: c.Budget.InvocationBudgetUSD,
		WarnAtPercent:       c.Budget.WarnAtPercent,
		SoftLimitPercent:    c.Budget.SoftLimitPercent,
		Enabled:             c.Budget.Enabled,
	}
}

// EvaluatorConfig converts the loaded system defaults into evaluator.Config.
func (c *Config) EvaluatorConfig() evaluator.Config {
	return evaluator.Config{
		EvaluatorModel: c.Evaluator.EvaluatorModel,
		Thresholds: evaluator.ScoreThresholds{
			OptimizationThreshold:  c.Evaluator.OptimizationThreshold,
			GoldenExampleThreshold: c.Evaluator.GoldenExampleThreshold,
			FailureThreshold:       c.Evaluator.FailureThreshold,
			ImprovementThreshold:   c.Evaluator.ImprovementThreshold,
		},
		EnableStorage:  c.Evaluator.EnableStorage,
		SamplingRate:   c.Evaluator.SamplingRate,
		MaxCostPerEval: c.Evaluator.MaxCostPerEval,
	}
}

// SchedulerConfig converts the loaded system defaults into
// optimizer.SchedulerConfig.
func (c *Config) SchedulerConfig() optimizer.SchedulerConfig {
	return optimizer.SchedulerConfig{
		ScoreThreshold:            c.Scheduler.ScoreThreshold,
		MinSamples:                c.Scheduler.MinSamples,
		MinSamplesPerTemplate:     c.Scheduler.MinSamplesPerTemplate,
		OptimizationCooldownHours: c.Scheduler.OptimizationCooldownHours,
		MaxConcurrent:             c.Scheduler.MaxConcurrent,
		CheckIntervalSeconds:      c.Scheduler.CheckIntervalSeconds,
		AutoOptimize:              c.Scheduler.AutoOptimize,
	}
}

// DeploymentConfig converts the loaded system defaults into
// optimizer.DeploymentConfig.
func (c *Config) DeploymentConfig() optimizer.DeploymentConfig {
	return optimizer.DeploymentConfig{
		ShadowTestCount:   c.Deployer.ShadowTestCount,
		CanaryPercentage:  c.Deployer.CanaryPercentage,
		CanaryTestCount:   c.Deployer.CanaryTestCount,
		RollbackThreshold: c.Deployer.RollbackThreshold,
		MinimumScore:      c.Deployer.MinimumScore,
		AutoPromote:       c.Deployer.AutoPromote,
	}
}

// WorkflowConfig converts the loaded system defaults into workflow.Config.
func (c *Config) WorkflowConfig() workflow.Config {
	binaries := make(map[workflow.AgentKind]string, len(c.Workflow.AgentBinaries))
	for role, bin := range c.Workflow.AgentBinaries {
		binaries[workflow.AgentKind(role)] = bin
	}
	if len(binaries) == 0 {
		binaries = workflow.DefaultConfig.AgentBinaries
	}

	return workflow.Config{
		ChatTimeout:         time.Duration(c.Workflow.ChatTimeoutSeconds) * time.Second,
		CommandTimeout:      time.Duration(c.Workflow.CommandTimeoutSeconds) * time.Second,
		OptimizerTimeout:    time.Duration(c.Workflow.OptimizerTimeoutSeconds) * time.Second,
		EvaluatorTimeout:    time.Duration(c.Workflow.EvaluatorTimeoutSeconds) * time.Second,
		MaxTaskAttempts:     c.Workflow.MaxTaskAttempts,
		MaxRalphIterations:  c.Workflow.MaxRalphIterations,
		CheckpointKeepCount: c.Workflow.CheckpointKeepCount,
		AutoImprovement:     workflow.DefaultAutoImprovementConfig,
		AgentBinaries:       binaries,
	}
}
