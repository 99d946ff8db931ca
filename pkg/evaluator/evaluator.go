package evaluator

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

// costPerCriterion is the approximate per-criterion judge-model cost
// (haiku-class model), used to bound evaluation cost under MaxCostPerEval.
const costPerCriterion = 0.001

// Config controls sampling and cost behavior of the Evaluator.
type Config struct {
	EvaluatorModel string
	Thresholds     ScoreThresholds
	EnableStorage  bool
	// SamplingRate is the fraction of eligible calls that actually run an
	// evaluation (0.0-1.0); force=true on Evaluate bypasses it.
	SamplingRate float64
	// MaxCostPerEval bounds judge-model spend per call; when below the
	// full 7-criterion cost, a priority-ordered subset is evaluated.
	MaxCostPerEval float64
}

// DefaultConfig mirrors the original pipeline's defaults.
var DefaultConfig = Config{
	EvaluatorModel: "haiku",
	Thresholds:     DefaultThresholds,
	EnableStorage:  true,
	SamplingRate:   1.0,
	MaxCostPerEval: 0.05,
}

// Judge scores an agent output against a set of criteria. *GEval is the
// production implementation; tests substitute a fake to avoid a live
// judge-model dependency.
type Judge interface {
	Evaluate(ctx context.Context, p EvalParams) Result
}

// Evaluator orchestrates G-Eval scoring and persists results through the
// store layer, and exposes the threshold-derived decisions the Workflow
// Engine and Optimizer scheduler act on.
type Evaluator struct {
	geval  Judge
	store  *store.Store
	cfg    Config
	logger *slog.Logger

	evalCount    int
	skippedCount int
}

// New constructs an Evaluator. store may be nil to disable persistence
// (EnableStorage is then implicitly false).
func New(geval Judge, s *store.Store, cfg Config, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.SamplingRate = math.Max(0.0, math.Min(1.0, cfg.SamplingRate))
	if s == nil {
		cfg.EnableStorage = false
	}
	return &Evaluator{geval: geval, store: s, cfg: cfg, logger: logger}
}

// EvaluateParams are the inputs to a general-purpose evaluation call.
type EvaluateParams struct {
	Agent         string
	Node          string
	Prompt        string
	Output        string
	TaskID        *string
	SessionID     *string
	Requirements  []string
	PromptVersion *string
	Metadata      map[string]interface{}
	// Force bypasses SamplingRate for evaluations that must always run.
	Force bool
}

// Evaluate scores an agent output, respecting the configured sampling
// rate unless Force is set, and persists the result if storage is
// enabled. Returns (nil, nil) when the call is skipped by sampling.
func (e *Evaluator) Evaluate(ctx context.Context, p EvaluateParams) (*store.Evaluation, error) {
	if !p.Force && e.cfg.SamplingRate < 1.0 {
		if randomFloat() > e.cfg.SamplingRate {
			e.skippedCount++
			e.logger.Debug("skipping evaluation due to sampling",
				"sampling_rate", e.cfg.SamplingRate, "skipped", e.skippedCount)
			return nil, nil
		}
	}
	e.evalCount++

	metrics := e.selectMetricsForCost()
	result := e.geval.Evaluate(ctx, EvalParams{
		Agent: p.Agent, Node: p.Node, Prompt: p.Prompt, Output: p.Output,
		TaskID: derefOr(p.TaskID, ""), Requirements: p.Requirements, Metrics: metrics,
	})

	var feedbackParts []string
	for _, ev := range result.Evaluations {
		feedbackParts = append(feedbackParts, fmt.Sprintf("**%s** (%v/10): %s", ev.Criterion, ev.Score, ev.Feedback))
	}

	// The seconds-granularity timestamp the original format uses can
	// collide when several evaluations land in the same second for the
	// same agent/prompt; the running eval count disambiguates those.
	id := fmt.Sprintf("eval-%s-%s-%s-%d", p.Agent, time.Now().Format("20060102150405"), result.PromptHash[:8], e.evalCount)

	eval := &store.Evaluation{
		ID:             id,
		Agent:          p.Agent,
		Node:           p.Node,
		TaskID:         p.TaskID,
		SessionID:      p.SessionID,
		Scores:         result.Scores,
		OverallScore:   result.OverallScore,
		Feedback:       strings.Join(feedbackParts, "\n"),
		Suggestions:    result.Suggestions,
		PromptHash:     result.PromptHash,
		PromptVersion:  p.PromptVersion,
		EvaluatorModel: result.EvaluatorModel,
		Timestamp:      time.Now(),
		Metadata:       p.Metadata,
	}

	if !e.cfg.EnableStorage {
		return eval, nil
	}

	created, err := e.store.CreateEvaluation(ctx, eval)
	if err != nil {
		e.logger.Warn("failed to store evaluation", "error", err)
		return eval, nil
	}
	return created, nil
}

// selectMetricsForCost returns a priority-ordered prefix of AllMetrics
// that fits within MaxCostPerEval, or nil to evaluate every metric.
func (e *Evaluator) selectMetricsForCost() []Metric {
	fullCost := float64(len(AllMetrics)) * costPerCriterion
	if e.cfg.MaxCostPerEval >= fullCost {
		return nil
	}
	maxCriteria := int(e.cfg.MaxCostPerEval / costPerCriterion)
	if maxCriteria < 1 {
		maxCriteria = 1
	}
	if maxCriteria > len(AllMetrics) {
		maxCriteria = len(AllMetrics)
	}
	selected := AllMetrics[:maxCriteria]
	e.logger.Debug("cost-constrained evaluation", "selected", len(selected), "total", len(AllMetrics), "max_cost", e.cfg.MaxCostPerEval)
	return selected
}

// Stats reports running sampling/cost counters.
type Stats struct {
	EvalCount      int
	SkippedCount   int
	SamplingRate   float64
	MaxCostPerEval float64
}

// GetStats returns the evaluator's running counters.
func (e *Evaluator) GetStats() Stats {
	return Stats{EvalCount: e.evalCount, SkippedCount: e.skippedCount, SamplingRate: e.cfg.SamplingRate, MaxCostPerEval: e.cfg.MaxCostPerEval}
}

// NeedsOptimization reports whether an evaluation's score should queue
// its prompt for optimization.
func (e *Evaluator) NeedsOptimization(eval *store.Evaluation) bool {
	return eval.OverallScore < e.cfg.Thresholds.OptimizationThreshold
}

// IsGoldenExample reports whether an evaluation's score qualifies its
// output as a golden example worth saving.
func (e *Evaluator) IsGoldenExample(eval *store.Evaluation) bool {
	return eval.OverallScore >= e.cfg.Thresholds.GoldenExampleThreshold
}

// IndicatesFailure reports whether an evaluation's score should be
// treated as a task failure.
func (e *Evaluator) IndicatesFailure(eval *store.Evaluation) bool {
	return eval.OverallScore < e.cfg.Thresholds.FailureThreshold
}

// ImplementationParams are the inputs to evaluating an implementation
// (writer-agent) output, enriching requirements with file/test
// expectations the way the original's evaluate_implementation does.
type ImplementationParams struct {
	Agent              string
	Prompt             string
	Output             string
	TaskID             string
	AcceptanceCriteria []string
	FilesCreated       []string
	FilesModified      []string
	TestResults        map[string]interface{}
	SessionID          *string
}

// EvaluateImplementation scores an implementation task's output,
// appending file-change and test-result expectations to its requirements.
func (e *Evaluator) EvaluateImplementation(ctx context.Context, p ImplementationParams) (*store.Evaluation, error) {
	requirements := append([]string{}, p.AcceptanceCriteria...)
	if len(p.FilesCreated) > 0 {
		requirements = append(requirements, fmt.Sprintf("Expected to create files: %s", strings.Join(p.FilesCreated, ", ")))
	}
	if len(p.FilesModified) > 0 {
		requirements = append(requirements, fmt.Sprintf("Expected to modify files: %s", strings.Join(p.FilesModified, ", ")))
	}
	if p.TestResults != nil {
		if passed, _ := p.TestResults["passed"].(bool); passed {
			requirements = append(requirements, "All tests should pass")
		}
		if coverage, ok := p.TestResults["coverage"]; ok {
			requirements = append(requirements, fmt.Sprintf("Test coverage: %v%%", coverage))
		}
	}

	taskID := p.TaskID
	return e.Evaluate(ctx, EvaluateParams{
		Agent: p.Agent, Node: "implement_task", Prompt: p.Prompt, Output: p.Output,
		TaskID: &taskID, SessionID: p.SessionID, Requirements: requirements,
		Metadata: map[string]interface{}{
			"files_created":  p.FilesCreated,
			"files_modified": p.FilesModified,
			"test_results":   p.TestResults,
		},
	})
}

// ValidationParams are the inputs to evaluating a validator-agent
// (cursor/gemini) review output.
type ValidationParams struct {
	Agent       string
	Prompt      string
	Output      string
	PlanSummary string
	TaskID      *string
	SessionID   *string
}

// EvaluateValidation scores a validation/review output against the fixed
// set of reviewer expectations the original evaluate_validation enforces.
func (e *Evaluator) EvaluateValidation(ctx context.Context, p ValidationParams) (*store.Evaluation, error) {
	summary := p.PlanSummary
	if len(summary) > 200 {
		summary = summary[:200]
	}
	requirements := []string{
		"Provide clear approval/rejection decision",
		"List specific concerns with severity levels",
		"Identify blocking issues if any",
		"Give constructive feedback",
		fmt.Sprintf("Review the plan: %s...", summary),
	}

	node := fmt.Sprintf("%s_review", p.Agent)
	if strings.Contains(p.Agent, "validate") {
		node = fmt.Sprintf("%s_validate", p.Agent)
	}

	return e.Evaluate(ctx, EvaluateParams{
		Agent: p.Agent, Node: node, Prompt: p.Prompt, Output: p.Output,
		TaskID: p.TaskID, SessionID: p.SessionID, Requirements: requirements,
	})
}

// GetEvaluationHistory returns stored evaluations for a task, optionally
// narrowed to a single agent.
func (e *Evaluator) GetEvaluationHistory(ctx context.Context, taskID, agent string, limit int) ([]*store.Evaluation, error) {
	if !e.cfg.EnableStorage {
		return nil, nil
	}
	history, err := e.store.FindEvaluationsByTask(ctx, taskID, agent, limit)
	if err != nil {
		e.logger.Warn("failed to get evaluation history", "error", err)
		return nil, nil
	}
	return history, nil
}

// PromptPerformance summarizes an evaluated prompt's track record.
type PromptPerformance struct {
	PromptHash   string
	SampleCount  int
	AvgScore     float64
	MinScore     float64
	MaxScore     float64
	StdDev       float64
}

// GetPromptPerformance aggregates every evaluation recorded against a
// prompt hash into mean/min/max/stddev, or returns (nil, nil) if fewer
// than minSamples evaluations exist yet.
func (e *Evaluator) GetPromptPerformance(ctx context.Context, promptHash string, minSamples int) (*PromptPerformance, error) {
	if !e.cfg.EnableStorage {
		return nil, nil
	}
	evals, err := e.store.FindEvaluationsByPromptHash(ctx, promptHash)
	if err != nil {
		e.logger.Warn("failed to get prompt performance", "error", err)
		return nil, nil
	}
	if len(evals) < minSamples {
		return nil, nil
	}

	scores := make([]float64, len(evals))
	for i, ev := range evals {
		scores[i] = ev.OverallScore
	}

	return &PromptPerformance{
		PromptHash:  promptHash,
		SampleCount: len(scores),
		AvgScore:    mean(scores),
		MinScore:    minOf(scores),
		MaxScore:    maxOf(scores),
		StdDev:      stdDev(scores),
	}, nil
}

// stdDev computes the population standard deviation, matching the
// original's variance = sum((x-mean)^2)/n (no Bessel's correction).
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// randomFloat returns a uniform float64 in [0, 1) sourced from
// crypto/rand, standing in for the original's random.random() sampling
// gate.
func randomFloat() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / float64(1<<53)
}
