package evaluator

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devctrl/orchestrator/pkg/llm"
	"github.com/devctrl/orchestrator/pkg/prompthash"
)

// gEvalPromptTemplate is the chain-of-thought meta-prompt sent to the
// judge model for each criterion, one call per metric.
const gEvalPromptTemplate = `You are an expert evaluator assessing AI agent outputs.

## Task Context
Agent: %s
Task ID: %s
Node: %s

## Original Prompt
%s

## Agent Output
%s

## Requirements
%s

## Evaluation Criterion: %s
%s

## Scoring Rubric
%s

## Instructions
1. Analyze the agent output against the criterion above
2. Think step-by-step about how well the output meets the criterion
3. Provide a score from 1-10 based on the rubric
4. Give a brief explanation for your score

Respond in JSON format:
{
    "reasoning": "Your step-by-step analysis...",
    "score": <1-10>,
    "feedback": "Brief explanation of the score"
}`

// CriterionEvaluation is the judge's verdict on a single metric.
type CriterionEvaluation struct {
	Criterion Metric
	Score     float64
	Reasoning string
	Feedback  string
}

// Result is the complete G-Eval output across every criterion evaluated.
type Result struct {
	Scores         map[string]float64
	OverallScore   float64
	Evaluations    []CriterionEvaluation
	Suggestions    []string
	PromptHash     string
	EvaluatorModel string
}

// GEval evaluates agent outputs with the LLM-as-Judge pattern: one
// judge-model call per criterion, each with its own rubric and
// chain-of-thought instructions, combined into a weighted overall score.
type GEval struct {
	client         *llm.Client
	evaluatorModel string
	timeout        time.Duration
	logger         *slog.Logger
}

// NewGEval constructs a GEval judge. evaluatorModel defaults to "haiku"
// (fast/cheap) when empty; timeout defaults to 60s.
func NewGEval(client *llm.Client, evaluatorModel string, timeout time.Duration, logger *slog.Logger) *GEval {
	if logger == nil {
		logger = slog.Default()
	}
	return &GEval{
		client:         client,
		evaluatorModel: cmp.Or(evaluatorModel, "haiku"),
		timeout:        cmp.Or(timeout, 60*time.Second),
		logger:         logger,
	}
}

// EvalParams are the inputs to a single G-Eval evaluation run.
type EvalParams struct {
	Agent        string
	Node         string
	Prompt       string
	Output       string
	TaskID       string
	Requirements []string
	// Metrics restricts evaluation to a subset, in priority order, for
	// cost-bounded evaluation. Nil evaluates all seven.
	Metrics []Metric
}

// Evaluate scores an agent output against every requested criterion,
// falling back to a neutral 5.0 for any criterion whose judge call or
// response parsing fails, then computes the weighted overall score.
func (g *GEval) Evaluate(ctx context.Context, p EvalParams) Result {
	metrics := p.Metrics
	if metrics == nil {
		metrics = AllMetrics
	}

	evaluations := make([]CriterionEvaluation, 0, len(metrics))
	scores := make(map[string]float64, len(metrics))

	for _, metric := range metrics {
		eval, err := g.evaluateCriterion(ctx, p, metric)
		if err != nil {
			g.logger.Warn("criterion evaluation failed, using neutral score", "criterion", metric, "error", err)
			eval = CriterionEvaluation{
				Criterion: metric,
				Score:     5.0,
				Reasoning: fmt.Sprintf("evaluation failed: %v", err),
				Feedback:  "Unable to evaluate this criterion",
			}
		}
		evaluations = append(evaluations, eval)
		scores[string(metric)] = eval.Score
	}

	overall := ComputeWeightedScore(scores)

	return Result{
		Scores:         scores,
		OverallScore:   overall,
		Evaluations:    evaluations,
		Suggestions:    generateSuggestions(evaluations, overall),
		PromptHash:     prompthash.Compute(p.Prompt),
		EvaluatorModel: g.evaluatorModel,
	}
}

func (g *GEval) evaluateCriterion(ctx context.Context, p EvalParams, metric Metric) (CriterionEvaluation, error) {
	cfg := Criteria[metric]
	taskID := cmp.Or(p.TaskID, "N/A")

	evalPrompt := fmt.Sprintf(gEvalPromptTemplate,
		p.Agent, taskID, p.Node,
		truncate(p.Prompt, 2000),
		truncate(p.Output, 4000),
		formatRequirements(p.Requirements),
		criterionTitle(metric), cfg.Description, cfg.Rubric,
	)

	resp, err := g.client.Generate(ctx, g.evaluatorModel, evalPrompt, g.timeout)
	if err != nil {
		return CriterionEvaluation{}, err
	}

	return parseCriterionResponse(metric, resp.Content), nil
}

// parsedJudgeResponse is the JSON shape the judge model is instructed to
// return for every criterion.
type parsedJudgeResponse struct {
	Reasoning string  `json:"reasoning"`
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
}

func parseCriterionResponse(metric Metric, raw string) CriterionEvaluation {
	var parsed parsedJudgeResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err == nil {
		score := parsed.Score
		if score == 0 {
			score = 5.0
		}
		return CriterionEvaluation{Criterion: metric, Score: score, Reasoning: parsed.Reasoning, Feedback: parsed.Feedback}
	}

	return CriterionEvaluation{
		Criterion: metric,
		Score:     extractScoreFromText(raw),
		Reasoning: raw,
		Feedback:  "Unable to parse structured response",
	}
}

// scoreExtractionPatterns are tried in order against unstructured judge
// output when JSON parsing fails; the first in-range match wins.
var scoreExtractionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"score":\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)score[:\s]+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)/10`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s+out\s+of\s+10`),
}

func extractScoreFromText(text string) float64 {
	for _, re := range scoreExtractionPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if score >= 1 && score <= 10 {
			return score
		}
	}
	return 5.0
}

func generateSuggestions(evaluations []CriterionEvaluation, overallScore float64) []string {
	var suggestions []string

	for _, e := range evaluations {
		if e.Score < 6.0 {
			suggestions = append(suggestions, fmt.Sprintf("Improve %s: %s", e.Criterion, e.Feedback))
		}
	}

	lowCount := 0
	for _, e := range evaluations {
		if e.Score < 5.0 {
			lowCount++
		}
	}
	if lowCount >= 3 {
		suggestions = append(suggestions, "Multiple criteria scored poorly - consider prompt restructuring")
	}
	if overallScore < 5.0 {
		suggestions = append(suggestions, "Overall score very low - fundamental prompt issues likely")
	}

	return suggestions
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "... [truncated]"
}

func formatRequirements(requirements []string) string {
	if len(requirements) == 0 {
		return "No specific requirements provided"
	}
	lines := make([]string, len(requirements))
	for i, r := range requirements {
		lines[i] = "- " + r
	}
	return strings.Join(lines, "\n")
}

func criterionTitle(m Metric) string {
	words := strings.Split(string(m), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
