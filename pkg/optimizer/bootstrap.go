package optimizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

const bootstrapTemplate = `You are an expert prompt engineer adding few-shot examples to improve prompt effectiveness.

## Current Prompt
` + "```" + `
%s
` + "```" + `

## Golden Examples
These are high-quality outputs that scored >= 9.0:

%s

## Task
Generate an improved prompt that:
1. Incorporates 2-3 of the best examples as few-shot demonstrations
2. Maintains the original prompt's core instructions
3. Uses examples to clarify expected output format and quality
4. Keeps the prompt concise (examples should be brief but representative)

## Guidelines
- Place examples after the main instructions
- Format examples clearly with "Example Input:" and "Example Output:"
- Choose diverse examples that cover different aspects
- Truncate long outputs to key parts that demonstrate quality
- Don't just append examples - integrate them naturally

## Output
Provide ONLY the improved prompt with integrated examples.
No explanations or commentary.

---
Improved Prompt with Examples:`

// BootstrapResult is the outcome of one bootstrap optimization pass.
type BootstrapResult struct {
	Success      bool
	NewPrompt    string
	Error        string
	ExamplesUsed int
}

// minGoldenExamples is the fewest golden examples bootstrap will work with.
const minGoldenExamples = 2

// Bootstrap rewrites a prompt by folding golden (score >= 9.0) examples
// into it as few-shot demonstrations.
type Bootstrap struct {
	rewriter       PromptRewriter
	optimizerModel string
	timeout        time.Duration
	maxExamples    int
}

// NewBootstrap constructs a Bootstrap optimizer. optimizerModel defaults
// to "sonnet", timeout to 120s, maxExamples to 5.
func NewBootstrap(rewriter PromptRewriter, optimizerModel string, timeout time.Duration, maxExamples int) *Bootstrap {
	if optimizerModel == "" {
		optimizerModel = "sonnet"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if maxExamples == 0 {
		maxExamples = 5
	}
	return &Bootstrap{rewriter: rewriter, optimizerModel: optimizerModel, timeout: timeout, maxExamples: maxExamples}
}

// Optimize rewrites currentPrompt using golden examples for (agent,
// templateName). Fails if fewer than two golden examples exist.
func (b *Bootstrap) Optimize(ctx context.Context, agent, templateName, currentPrompt string, examples []*store.GoldenExample) (BootstrapResult, error) {
	if len(examples) < minGoldenExamples {
		return BootstrapResult{Success: false, Error: fmt.Sprintf("Insufficient golden examples: %d < %d", len(examples), minGoldenExamples)}, nil
	}
	if len(examples) > b.maxExamples {
		examples = examples[:b.maxExamples]
	}

	formatted := formatGoldenExamples(examples)
	prompt := fmt.Sprintf(bootstrapTemplate, truncateText(currentPrompt, 3000), formatted)

	newPrompt, err := b.rewriter.Rewrite(ctx, b.optimizerModel, prompt, b.timeout)
	if err != nil {
		return BootstrapResult{Success: false, Error: err.Error()}, nil
	}

	newPrompt = strings.TrimSpace(newPrompt)
	if len(newPrompt) > 100 {
		return BootstrapResult{Success: true, NewPrompt: newPrompt, ExamplesUsed: len(examples)}, nil
	}
	return BootstrapResult{Success: false, Error: "Optimizer returned empty or invalid prompt"}, nil
}

func formatGoldenExamples(examples []*store.GoldenExample) string {
	var b strings.Builder
	for i, e := range examples {
		fmt.Fprintf(&b, "### Example %d (Score: %.1f/10)\n\n", i+1, e.Score)
		b.WriteString("**Input:**\n")
		fmt.Fprintf(&b, "```\n%s\n```\n\n", truncateText(e.InputPrompt, 500))
		b.WriteString("**Output:**\n")
		fmt.Fprintf(&b, "```\n%s\n```\n\n", truncateText(e.Output, 1000))
	}
	return strings.TrimRight(b.String(), "\n")
}

// GenerateFewShotSection produces a standalone "## Examples" section from
// golden examples, for callers that want to append demonstrations to a
// prompt without a full LLM rewrite.
func (b *Bootstrap) GenerateFewShotSection(examples []*store.GoldenExample, numExamples int) string {
	if numExamples > 0 && numExamples < len(examples) {
		examples = examples[:numExamples]
	}
	if len(examples) == 0 {
		return ""
	}

	var out strings.Builder
	out.WriteString("\n## Examples\n\n")
	for i, e := range examples {
		fmt.Fprintf(&out, "### Example %d\n\n", i+1)
		out.WriteString("**Input:**\n")
		fmt.Fprintf(&out, "%s\n\n", truncateText(e.InputPrompt, 300))
		out.WriteString("**Output:**\n")
		fmt.Fprintf(&out, "%s\n\n", truncateText(e.Output, 500))
	}
	return strings.TrimRight(out.String(), "\n")
}
