package workflow

import "time"

// EvaluationConfig is the `.project-config.json`'s
// auto_improvement.evaluation section (spec §6): whether post-invocation
// evaluation runs at all, and at what sampling rate.
type EvaluationConfig struct {
	Enabled      bool    `json:"enabled"`
	SamplingRate float64 `json:"sampling_rate"`
}

// OptimizationConfig is the auto_improvement.optimization section: whether
// a low-scoring evaluation is allowed to queue a prompt for optimization.
type OptimizationConfig struct {
	Enabled bool `json:"enabled"`
}

// DeploymentConfig is the auto_improvement.deployment section: whether a
// successful optimization is allowed to enter the shadow/canary rollout
// pipeline automatically.
type DeploymentConfig struct {
	Enabled bool `json:"enabled"`
}

// AutoImprovementConfig is the full auto_improvement object persisted in
// a project's `.project-config.json` (spec §6). pkg/workflow defines its
// own lightweight config here rather than reaching into the teacher's
// pkg/config registry, matching the precedent already set by
// pkg/budget.Config and pkg/evaluator.Config.
type AutoImprovementConfig struct {
	Evaluation   EvaluationConfig   `json:"evaluation"`
	Optimization OptimizationConfig `json:"optimization"`
	Deployment   DeploymentConfig   `json:"deployment"`
}

// DefaultAutoImprovementConfig mirrors the original project-config
// defaults: always evaluate, queue optimizations, and auto-deploy.
var DefaultAutoImprovementConfig = AutoImprovementConfig{
	Evaluation:   EvaluationConfig{Enabled: true, SamplingRate: 1.0},
	Optimization: OptimizationConfig{Enabled: true},
	Deployment:   DeploymentConfig{Enabled: true},
}

// Config holds the engine's tunable timeouts and retry limits (spec §5).
type Config struct {
	// ChatTimeout/CommandTimeout bound a single external-agent invocation.
	ChatTimeout    time.Duration
	CommandTimeout time.Duration
	// OptimizerTimeout bounds one optimizer LLM rewrite call.
	OptimizerTimeout time.Duration
	// EvaluatorTimeout bounds one evaluator judge-model criterion call.
	EvaluatorTimeout time.Duration
	// MaxTaskAttempts bounds per-task AgentTimeout/AgentNonZeroExit retries
	// (spec §7); exceeding it fails the task rather than retrying again.
	MaxTaskAttempts int
	// MaxRalphIterations bounds the writer-tests-writer loop per task
	// during Implementation.
	MaxRalphIterations int
	// CheckpointKeepCount is the default retention passed to
	// PruneOldCheckpoints.
	CheckpointKeepCount int
	// AutoImprovement gates evaluation/optimization/deployment per project.
	AutoImprovement AutoImprovementConfig
	// AgentBinaries resolves an AgentKind to the CLI executable that plays
	// that role (spec §6's agent_binary); every role defaults to "claude"
	// since the original system spawns the same CLI for writer, validator,
	// and reviewer and distinguishes them only by prompt and allowed tools.
	AgentBinaries map[AgentKind]string
}

// DefaultConfig mirrors the original system's engine-level defaults.
var DefaultConfig = Config{
	ChatTimeout:         300 * time.Second,
	CommandTimeout:      300 * time.Second,
	OptimizerTimeout:    120 * time.Second,
	EvaluatorTimeout:    60 * time.Second,
	MaxTaskAttempts:     3,
	MaxRalphIterations:  5,
	CheckpointKeepCount: 10,
	AutoImprovement:     DefaultAutoImprovementConfig,
	AgentBinaries: map[AgentKind]string{
		AgentWriter:    "claude",
		AgentValidator: "claude",
		AgentReviewer:  "claude",
	},
}

// agentBinary resolves kind to its configured CLI executable, falling
// back to "claude" when AgentBinaries omits it.
func (c Config) agentBinary(kind AgentKind) string {
	if bin, ok := c.AgentBinaries[kind]; ok && bin != "" {
		return bin
	}
	return "claude"
}
