// Package optimizer rewrites underperforming prompt templates via OPRO or
// bootstrap few-shot synthesis, validates the rewrite against holdout
// examples, and records every attempt for the deployment lifecycle in
// pkg/optimizer's deployer.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

// PromptRewriter sends a meta-prompt to a writer model and returns the
// generated text. Implemented by an adapter over pkg/llm.Client in
// production and by a fake in tests, mirroring pkg/evaluator.Judge.
type PromptRewriter interface {
	Rewrite(ctx context.Context, model, prompt string, timeout time.Duration) (string, error)
}

// QualityJudge scores a candidate prompt against a held-out reference
// (input, output) pair. Backed by pkg/evaluator.Evaluator in production.
type QualityJudge interface {
	JudgePromptQuality(ctx context.Context, prompt, referenceInput, referenceOutput string) (float64, error)
}

// OptimizationResult is the outcome of one call to Optimize.
type OptimizationResult struct {
	Success             bool
	NewPrompt           *string
	SourceVersion       *string
	ExpectedImprovement float64
	ValidationScore     *float64
	Method              string
	SamplesUsed         int
	Error               *string
	Metadata            map[string]interface{}
}

const (
	// defaultMinSamples mirrors PromptOptimizer's min_samples_for_optimization.
	defaultMinSamples = 10
	// defaultImprovementThreshold mirrors PromptOptimizer's improvement_threshold.
	defaultImprovementThreshold = 0.5
	// bootstrapMethodGoldenThreshold is the golden-example count at which
	// _select_method prefers bootstrap over OPRO.
	bootstrapMethodGoldenThreshold = 3
	// holdoutCount mirrors _validate_prompt's default holdout_count.
	holdoutCount = 3
	// validationFallbackMinScore is the score floor used when golden
	// examples are scarce and validation falls back to recent evaluations.
	validationFallbackMinScore = 8.0
)

// Optimizer coordinates OPRO and bootstrap rewriting strategies against a
// project's store of evaluations, golden examples, and prompt versions.
type Optimizer struct {
	store                *store.Store
	opro                 *OPRO
	bootstrap             *Bootstrap
	judge                 QualityJudge
	minSamples            int
	improvementThreshold  float64
	logger                *slog.Logger
}

// New constructs an Optimizer. judge may be nil, in which case validation
// always falls back to heuristic scoring.
func New(s *store.Store, opro *OPRO, bootstrap *Bootstrap, judge QualityJudge, minSamples int, improvementThreshold float64, logger *slog.Logger) *Optimizer {
	if minSamples == 0 {
		minSamples = defaultMinSamples
	}
	if improvementThreshold == 0 {
		improvementThreshold = defaultImprovementThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		store:                s,
		opro:                 opro,
		bootstrap:            bootstrap,
		judge:                judge,
		minSamples:           minSamples,
		improvementThreshold: improvementThreshold,
		logger:               logger,
	}
}

// Optimize runs one optimization attempt for (agent, templateName). method
// is "opro", "bootstrap", or "" to auto-select. force bypasses the
// min-sample gate.
func (o *Optimizer) Optimize(ctx context.Context, agent, templateName, method string, force bool) (OptimizationResult, error) {
	evaluations, err := o.store.FindEvaluations(ctx, agent, templateName, 100)
	if err != nil {
		return OptimizationResult{}, fmt.Errorf("optimize: load evaluations: %w", err)
	}
	if len(evaluations) < o.minSamples && !force {
		return errResult("none", fmt.Sprintf("Insufficient samples: %d < %d", len(evaluations), o.minSamples)), nil
	}

	currentVersion, err := o.store.FindProductionVersion(ctx, agent, templateName)
	if err != nil {
		return errResult("none", fmt.Sprintf("No production prompt found for %s/%s", agent, templateName)), nil
	}

	if method == "" {
		method, err = o.selectMethod(ctx, agent, templateName)
		if err != nil {
			return OptimizationResult{}, fmt.Errorf("optimize: select method: %w", err)
		}
	}

	var result OptimizationResult
	switch method {
	case "opro":
		result = o.optimizeWithOPRO(ctx, agent, templateName, currentVersion, evaluations)
	case "bootstrap":
		result = o.optimizeWithBootstrap(ctx, agent, templateName, currentVersion)
	default:
		return errResult(method, fmt.Sprintf("Unknown optimization method: %s", method)), nil
	}

	o.recordOptimization(ctx, agent, templateName, result, currentVersion)
	return result, nil
}

// selectMethod mirrors _select_method: bootstrap once enough golden
// examples exist, OPRO otherwise.
func (o *Optimizer) selectMethod(ctx context.Context, agent, templateName string) (string, error) {
	goldenCount, err := o.store.CountGoldenExamples(ctx, agent, templateName)
	if err != nil {
		return "", err
	}
	if goldenCount >= bootstrapMethodGoldenThreshold {
		return "bootstrap", nil
	}
	return "opro", nil
}

func (o *Optimizer) optimizeWithOPRO(ctx context.Context, agent, templateName string, currentVersion *store.PromptVersion, evaluations []*store.Evaluation) OptimizationResult {
	oproResult, err := o.opro.Optimize(ctx, templateName, currentVersion.Content, evaluations)
	if err != nil {
		o.logger.Error("opro optimization failed", "agent", agent, "template", templateName, "error", err)
		return errResult("opro", err.Error())
	}
	if !oproResult.Success || oproResult.NewPrompt == "" {
		msg := oproResult.Error
		if msg == "" {
			msg = "OPRO optimization failed"
		}
		return errResult("opro", msg)
	}

	validationScore := o.validatePrompt(ctx, agent, templateName, oproResult.NewPrompt)
	currentScore := avgScore(evaluations)
	improvement := validationScore - currentScore

	if improvement < o.improvementThreshold {
		return errResult("opro", fmt.Sprintf("Improvement %.2f below threshold %.2f", improvement, o.improvementThreshold))
	}

	newPrompt := oproResult.NewPrompt
	sourceVersion := currentVersion.ID
	if err := o.saveDraftVersion(ctx, agent, templateName, newPrompt, sourceVersion, "opro", validationScore); err != nil {
		o.logger.Error("failed to save opro draft version", "error", err)
		return errResult("opro", err.Error())
	}

	vs := validationScore
	return OptimizationResult{
		Success:             true,
		NewPrompt:           &newPrompt,
		SourceVersion:        &sourceVersion,
		ExpectedImprovement:  improvement,
		ValidationScore:      &vs,
		Method:               "opro",
		SamplesUsed:          len(evaluations),
	}
}

func (o *Optimizer) optimizeWithBootstrap(ctx context.Context, agent, templateName string, currentVersion *store.PromptVersion) OptimizationResult {
	examples, err := o.store.FindGoldenExamples(ctx, agent, templateName, 0)
	if err != nil {
		return errResult("bootstrap", err.Error())
	}

	bootResult, err := o.bootstrap.Optimize(ctx, agent, templateName, currentVersion.Content, examples)
	if err != nil {
		o.logger.Error("bootstrap optimization failed", "agent", agent, "template", templateName, "error", err)
		return errResult("bootstrap", err.Error())
	}
	if !bootResult.Success || bootResult.NewPrompt == "" {
		msg := bootResult.Error
		if msg == "" {
			msg = "Bootstrap optimization failed"
		}
		return errResult("bootstrap", msg)
	}

	validationScore := o.validatePrompt(ctx, agent, templateName, bootResult.NewPrompt)

	goldenForScore, err := o.store.FindGoldenExamples(ctx, agent, templateName, 10)
	if err != nil {
		goldenForScore = nil
	}
	currentScore := 5.0
	if len(goldenForScore) > 0 {
		sum := 0.0
		for _, g := range goldenForScore {
			sum += g.Score
		}
		currentScore = sum / float64(len(goldenForScore))
	}

	improvement := validationScore - currentScore
	if improvement < o.improvementThreshold {
		return errResult("bootstrap", fmt.Sprintf("Improvement %.2f below threshold %.2f", improvement, o.improvementThreshold))
	}

	newPrompt := bootResult.NewPrompt
	sourceVersion := currentVersion.ID
	if err := o.saveDraftVersion(ctx, agent, templateName, newPrompt, sourceVersion, "bootstrap", validationScore); err != nil {
		o.logger.Error("failed to save bootstrap draft version", "error", err)
		return errResult("bootstrap", err.Error())
	}

	vs := validationScore
	return OptimizationResult{
		Success:             true,
		NewPrompt:           &newPrompt,
		SourceVersion:       &sourceVersion,
		ExpectedImprovement: improvement,
		ValidationScore:     &vs,
		Method:              "bootstrap",
		SamplesUsed:         len(goldenForScore),
	}
}

func (o *Optimizer) saveDraftVersion(ctx context.Context, agent, templateName, content, parentVersion, method string, validationScore float64) error {
	latest, err := o.store.FindLatestVersion(ctx, agent, templateName)
	next := 1
	if err == nil && latest != nil {
		next = latest.Version + 1
	}

	_, err = o.store.CreatePromptVersion(ctx, &store.PromptVersion{
		ID:                 fmt.Sprintf("%s-%s-v%d", agent, templateName, next),
		Agent:              agent,
		TemplateName:       templateName,
		Content:            content,
		Version:            next,
		ParentVersion:      &parentVersion,
		OptimizationMethod: method,
		Status:             "draft",
		Metrics:            map[string]interface{}{"validation_score": validationScore},
	})
	return err
}

// validatePrompt mirrors _validate_prompt: score the candidate against a
// holdout of golden examples (or, failing that, recent high scorers), or
// fall back to the heuristic when no holdout data exists at all.
func (o *Optimizer) validatePrompt(ctx context.Context, agent, templateName, prompt string) float64 {
	golden, err := o.store.FindGoldenExamples(ctx, agent, templateName, holdoutCount)
	if err != nil {
		golden = nil
	}

	type holdoutPair struct{ input, output string }
	var holdout []holdoutPair
	for _, g := range golden {
		holdout = append(holdout, holdoutPair{input: g.InputPrompt, output: g.Output})
	}

	if len(holdout) < holdoutCount {
		recent, err := o.store.FindEvaluations(ctx, agent, templateName, 50)
		if err == nil {
			for _, e := range recent {
				if e.OverallScore >= validationFallbackMinScore {
					holdout = append(holdout, holdoutPair{input: "", output: e.Feedback})
				}
				if len(holdout) >= holdoutCount {
					break
				}
			}
		}
	}

	if len(holdout) == 0 || o.judge == nil {
		return heuristicValidate(prompt)
	}

	sum := 0.0
	n := 0
	for _, h := range holdout {
		score, err := o.judge.JudgePromptQuality(ctx, prompt, h.input, h.output)
		if err != nil {
			o.logger.Warn("prompt validation call failed", "error", err)
			continue
		}
		sum += score
		n++
	}
	if n == 0 {
		return heuristicValidate(prompt)
	}
	return sum / float64(n)
}

// heuristicValidate mirrors _heuristic_validate's length/structure/keyword
// scoring when no holdout evaluation data is available.
func heuristicValidate(prompt string) float64 {
	score := 5.0
	length := len(prompt)
	lower := strings.ToLower(prompt)

	switch {
	case length >= 500 && length <= 5000:
		score += 1.0
	case length < 200:
		score -= 1.0
	case length > 8000:
		score -= 0.5
	}

	if strings.Contains(prompt, "##") || strings.Contains(prompt, "**") {
		score += 0.5
	}
	if strings.Contains(lower, "output") && (strings.Contains(lower, "format") || strings.Contains(lower, "json")) {
		score += 0.5
	}

	instructionKeywords := []string{"must", "should", "ensure", "always", "never"}
	for _, kw := range instructionKeywords {
		if strings.Contains(lower, kw) {
			score += 0.5
			break
		}
	}

	if strings.Contains(lower, "example") || strings.Contains(prompt, "```") {
		score += 0.5
	}

	for i := 1; i <= 5; i++ {
		if strings.Contains(prompt, fmt.Sprintf("%d.", i)) {
			score += 0.5
			break
		}
	}

	genericPhrases := []string{"do the task", "complete the work", "as needed"}
	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			score -= 0.5
			break
		}
	}

	if score > 10.0 {
		score = 10.0
	}
	if score < 1.0 {
		score = 1.0
	}
	return score
}

func avgScore(evaluations []*store.Evaluation) float64 {
	if len(evaluations) == 0 {
		return 5.0
	}
	sum := 0.0
	for _, e := range evaluations {
		sum += e.OverallScore
	}
	return sum / float64(len(evaluations))
}

func (o *Optimizer) recordOptimization(ctx context.Context, agent, templateName string, result OptimizationResult, currentVersion *store.PromptVersion) {
	var sourceScore *float64
	if currentVersion.Metrics != nil {
		if v, ok := currentVersion.Metrics["avg_score"].(float64); ok {
			sourceScore = &v
		}
	}

	var targetVersion *string
	if result.Success {
		targetVersion = result.SourceVersion
	}

	attempt := &store.OptimizationAttempt{
		ID:                fmt.Sprintf("%s-%s-%s-%d", agent, templateName, result.Method, time.Now().UnixNano()),
		Agent:             agent,
		TemplateName:      templateName,
		Method:            result.Method,
		SourceVersion:     &currentVersion.ID,
		TargetVersion:     targetVersion,
		Success:           result.Success,
		SourceScore:       sourceScore,
		TargetScore:       result.ValidationScore,
		Improvement:       nonNilFloat(result.ExpectedImprovement, result.Success),
		SamplesUsed:       result.SamplesUsed,
		ValidationResults: map[string]interface{}{"score": result.ValidationScore},
		Error:             result.Error,
	}
	if _, err := o.store.CreateOptimizationAttempt(ctx, attempt); err != nil {
		o.logger.Error("failed to record optimization attempt", "error", err)
	}
}

func nonNilFloat(v float64, keep bool) *float64 {
	if !keep {
		return nil
	}
	return &v
}

// ShouldOptimize mirrors should_optimize: true when there's a sustained
// average-score shortfall or a recent-vs-older decline, given enough
// samples to judge either.
func (o *Optimizer) ShouldOptimize(ctx context.Context, agent, templateName string, threshold float64) (bool, string, error) {
	evaluations, err := o.store.FindEvaluations(ctx, agent, templateName, 50)
	if err != nil {
		return false, "", err
	}
	if len(evaluations) < o.minSamples {
		return false, fmt.Sprintf("Insufficient samples (%d)", len(evaluations)), nil
	}

	avg := avgScore(evaluations)
	if avg < threshold {
		return true, fmt.Sprintf("Average score %.2f below threshold %.2f", avg, threshold), nil
	}

	// FindEvaluations returns oldest-first; the ten most recent are the tail.
	n := len(evaluations)
	recentStart := n - 10
	if recentStart < 0 {
		recentStart = 0
	}
	recent := evaluations[recentStart:]

	olderEnd := recentStart
	olderStart := olderEnd - 20
	if olderStart < 0 {
		olderStart = 0
	}
	older := evaluations[olderStart:olderEnd]

	if len(recent) > 0 && len(older) > 0 {
		recentAvg := avgScore(recent)
		olderAvg := avgScore(older)
		if recentAvg < olderAvg-0.5 {
			return true, fmt.Sprintf("Recent decline: %.2f vs %.2f", recentAvg, olderAvg), nil
		}
	}

	return false, "Performance is acceptable", nil
}

func errResult(method, errMsg string) OptimizationResult {
	return OptimizationResult{Success: false, Method: method, Error: &errMsg}
}
