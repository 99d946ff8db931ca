package config

import (
	"github.com/devctrl/orchestrator/pkg/budget"
	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/optimizer"
	"github.com/devctrl/orchestrator/pkg/workflow"
)

// DefaultConfig returns the built-in system defaults, derived from each
// subsystem's own DefaultConfig rather than restating their numbers here,
// so a change to e.g. budget.DefaultConfig never drifts out of sync with
// what orchestrator.yaml merges onto.
func DefaultConfig() *Config {
	b := budget.DefaultConfig()
	e := evaluator.DefaultConfig
	s := optimizer.DefaultSchedulerConfig
	d := optimizer.DefaultDeploymentConfig
	w := workflow.DefaultConfig

	agentBinaries := make(map[string]string, len(w.AgentBinaries))
	for role, bin := range w.AgentBinaries {
		agentBinaries[string(role)] = bin
	}

	return &Config{
		Budget: BudgetDefaults{
			ProjectBudgetUSD:    b.ProjectBudgetUSD,
			TaskBudgetUSD:       b.TaskBudgetUSD,
			InvocationBudgetUSD: b.InvocationBudgetUSD,
			WarnAtPercent:       b.WarnAtPercent,
			SoftLimitPercent:    b.SoftLimitPercent,
			Enabled:             b.Enabled,
		},
		Evaluator: EvaluatorDefaults{
			EvaluatorModel:         e.EvaluatorModel,
			SamplingRate:           e.SamplingRate,
			MaxCostPerEval:         e.MaxCostPerEval,
			EnableStorage:          e.EnableStorage,
			OptimizationThreshold:  e.Thresholds.OptimizationThreshold,
			GoldenExampleThreshold: e.Thresholds.GoldenExampleThreshold,
			FailureThreshold:       e.Thresholds.FailureThreshold,
			ImprovementThreshold:   e.Thresholds.ImprovementThreshold,
		},
		Scheduler: SchedulerDefaults{
			ScoreThreshold:            s.ScoreThreshold,
			MinSamples:                s.MinSamples,
			MinSamplesPerTemplate:     s.MinSamplesPerTemplate,
			OptimizationCooldownHours: s.OptimizationCooldownHours,
			MaxConcurrent:             s.MaxConcurrent,
			CheckIntervalSeconds:      s.CheckIntervalSeconds,
			AutoOptimize:              s.AutoOptimize,
		},
		Deployer: DeployerDefaults{
			ShadowTestCount:   d.ShadowTestCount,
			CanaryPercentage:  d.CanaryPercentage,
			CanaryTestCount:   d.CanaryTestCount,
			RollbackThreshold: d.RollbackThreshold,
			MinimumScore:      d.MinimumScore,
			AutoPromote:       d.AutoPromote,
		},
		Workflow: WorkflowDefaults{
			ChatTimeoutSeconds:      int(w.ChatTimeout.Seconds()),
			CommandTimeoutSeconds:   int(w.CommandTimeout.Seconds()),
			OptimizerTimeoutSeconds: int(w.OptimizerTimeout.Seconds()),
			EvaluatorTimeoutSeconds: int(w.EvaluatorTimeout.Seconds()),
			MaxTaskAttempts:         w.MaxTaskAttempts,
			MaxRalphIterations:      w.MaxRalphIterations,
			CheckpointKeepCount:     w.CheckpointKeepCount,
			AgentBinaries:           agentBinaries,
		},
		Retention: DefaultRetentionConfig(),
	}
}
