package optimizer

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/llm"
)

// LLMRewriter adapts pkg/llm.Client to PromptRewriter for production use by
// OPRO and Bootstrap.
type LLMRewriter struct {
	client *llm.Client
}

// NewLLMRewriter wraps an already-dialed LLM client.
func NewLLMRewriter(client *llm.Client) *LLMRewriter {
	return &LLMRewriter{client: client}
}

// Rewrite sends the meta-prompt to the given model and returns its text.
func (r *LLMRewriter) Rewrite(ctx context.Context, model, prompt string, timeout time.Duration) (string, error) {
	resp, err := r.client.Generate(ctx, model, prompt, timeout)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// EvaluatorQualityJudge adapts pkg/evaluator.Evaluator to QualityJudge.
// Scores a candidate prompt by judging whether it plausibly produced the
// reference (input, output) holdout pair, using the full G-Eval criterion
// set rather than the ungrounded evaluate_prompt_quality the original
// calls out to (see DESIGN.md) — the closest equivalent this module
// actually exposes.
type EvaluatorQualityJudge struct {
	eval *evaluator.Evaluator
}

// NewEvaluatorQualityJudge wraps an Evaluator for prompt-validation calls.
// Callers should construct eval with Config.EnableStorage=false — matching
// the original's dedicated enable_storage=False validation evaluator — so
// validation probes never pollute the production evaluation history.
func NewEvaluatorQualityJudge(eval *evaluator.Evaluator) *EvaluatorQualityJudge {
	return &EvaluatorQualityJudge{eval: eval}
}

// JudgePromptQuality scores prompt against a single holdout example.
func (j *EvaluatorQualityJudge) JudgePromptQuality(ctx context.Context, prompt, referenceInput, referenceOutput string) (float64, error) {
	requirements := []string{"Produce output consistent in quality and structure with the reference example"}
	if referenceInput != "" {
		requirements = append(requirements, "Reference input: "+truncateText(referenceInput, 500))
	}

	eval, err := j.eval.Evaluate(ctx, evaluator.EvaluateParams{
		Agent:        "writer",
		Node:         "prompt_validation",
		Prompt:       prompt,
		Output:       referenceOutput,
		Requirements: requirements,
		Force:        true,
	})
	if err != nil {
		return 0, err
	}
	if eval == nil {
		return 0, nil
	}
	return eval.OverallScore, nil
}
