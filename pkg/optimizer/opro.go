package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

// oproMetaPrompt is the meta-prompt handed to the optimizer model: current
// prompt, top/bottom-scoring examples, and the issues extracted from the
// low scorers.
const oproMetaPrompt = `You are an expert prompt engineer optimizing prompts for AI agents.

## Current Prompt
` + "```" + `
%s
` + "```" + `

## Performance History

Below are examples of outputs from this prompt with their effectiveness scores (1-10):

### High-Scoring Examples (What Works)
%s

### Low-Scoring Examples (What Doesn't Work)
%s

## Common Issues Identified
%s

## Task
Generate an IMPROVED version of the prompt that:
1. Addresses the issues found in low-scoring outputs
2. Preserves the patterns that led to high-scoring outputs
3. Is clear and specific about expected behavior
4. Provides better structure for consistent outputs
5. Is concise without unnecessary verbosity

## Guidelines
- Keep the core functionality intact
- Make instructions more precise where outputs were unclear
- Add constraints or examples if outputs were inconsistent
- Remove or simplify instructions that led to verbose outputs
- Ensure the output format expectations are explicit

## Output
Provide ONLY the improved prompt, no explanations or commentary.
The prompt should be ready to use directly.

---
Improved Prompt:`

// OPROResult is the outcome of one OPRO optimization pass.
type OPROResult struct {
	Success      bool
	NewPrompt    string
	Error        string
	ExamplesUsed int
}

// OPRO implements Optimization by Prompting: it builds a meta-prompt from
// the highest and lowest scoring recent evaluations and asks the optimizer
// model to rewrite the template in light of them.
type OPRO struct {
	rewriter       PromptRewriter
	optimizerModel string
	timeout        time.Duration
	topK           int
	bottomK        int
}

// NewOPRO constructs an OPRO optimizer. optimizerModel defaults to
// "sonnet", timeout to 120s, topK to 5, bottomK to 3 — the originals'
// defaults.
func NewOPRO(rewriter PromptRewriter, optimizerModel string, timeout time.Duration, topK, bottomK int) *OPRO {
	if optimizerModel == "" {
		optimizerModel = "sonnet"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if topK == 0 {
		topK = 5
	}
	if bottomK == 0 {
		bottomK = 3
	}
	return &OPRO{rewriter: rewriter, optimizerModel: optimizerModel, timeout: timeout, topK: topK, bottomK: bottomK}
}

// Optimize rewrites currentPrompt in light of evaluationHistory.
func (o *OPRO) Optimize(ctx context.Context, templateName, currentPrompt string, evaluationHistory []*store.Evaluation) (OPROResult, error) {
	if len(evaluationHistory) == 0 {
		return OPROResult{Success: false, Error: "No evaluation history provided"}, nil
	}

	sorted := make([]*store.Evaluation, len(evaluationHistory))
	copy(sorted, evaluationHistory)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OverallScore < sorted[j].OverallScore })

	top := lastN(sorted, o.topK)
	bottom := firstN(sorted, o.bottomK)

	highScoring := formatExamples(top)
	lowScoring := formatExamples(bottom)
	issues := extractIssues(bottom)

	metaPrompt := fmt.Sprintf(oproMetaPrompt, truncateText(currentPrompt, 3000), highScoring, lowScoring, issues)

	newPrompt, err := o.rewriter.Rewrite(ctx, o.optimizerModel, metaPrompt, o.timeout)
	if err != nil {
		return OPROResult{Success: false, Error: err.Error()}, nil
	}

	newPrompt = strings.TrimSpace(newPrompt)
	if len(newPrompt) > 100 {
		return OPROResult{Success: true, NewPrompt: newPrompt, ExamplesUsed: len(top) + len(bottom)}, nil
	}
	return OPROResult{Success: false, Error: "Optimizer returned empty or invalid prompt"}, nil
}

func lastN(evals []*store.Evaluation, n int) []*store.Evaluation {
	if n > len(evals) {
		n = len(evals)
	}
	return evals[len(evals)-n:]
}

func firstN(evals []*store.Evaluation, n int) []*store.Evaluation {
	if n > len(evals) {
		n = len(evals)
	}
	return evals[:n]
}

func formatExamples(evals []*store.Evaluation) string {
	if len(evals) == 0 {
		return "No examples available."
	}
	var b strings.Builder
	for i, e := range evals {
		fmt.Fprintf(&b, "**Example %d** (Score: %.1f/10)\n", i+1, e.OverallScore)
		fmt.Fprintf(&b, "Feedback: %s\n", truncateText(e.Feedback, 300))
		if len(e.Suggestions) > 0 {
			n := len(e.Suggestions)
			if n > 3 {
				n = 3
			}
			fmt.Fprintf(&b, "Suggestions: %s\n", strings.Join(e.Suggestions[:n], "; "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func extractIssues(lowScoring []*store.Evaluation) string {
	counts := map[string]int{}
	order := []string{}
	for _, e := range lowScoring {
		for _, s := range e.Suggestions {
			normalized := strings.ToLower(strings.TrimSpace(s))
			if len(normalized) > 100 {
				normalized = normalized[:100]
			}
			if _, ok := counts[normalized]; !ok {
				order = append(order, normalized)
			}
			counts[normalized]++
		}
	}
	if len(counts) == 0 {
		return "No specific issues identified."
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	limit := len(order)
	if limit > 5 {
		limit = 5
	}
	lines := make([]string, 0, limit)
	for _, issue := range order[:limit] {
		lines = append(lines, fmt.Sprintf("- %s (occurred %d times)", issue, counts[issue]))
	}
	return strings.Join(lines, "\n")
}

func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
