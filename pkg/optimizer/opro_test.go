package optimizer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

type fakeRewriter struct {
	response string
	err      error
	calls    int
	lastArgs struct {
		model, prompt string
		timeout       time.Duration
	}
}

func (f *fakeRewriter) Rewrite(ctx context.Context, model, prompt string, timeout time.Duration) (string, error) {
	f.calls++
	f.lastArgs.model, f.lastArgs.prompt, f.lastArgs.timeout = model, prompt, timeout
	return f.response, f.err
}

func evalWithScore(score float64, feedback string, suggestions ...string) *store.Evaluation {
	return &store.Evaluation{OverallScore: score, Feedback: feedback, Suggestions: suggestions}
}

func TestExtractIssuesRanksByFrequency(t *testing.T) {
	low := []*store.Evaluation{
		evalWithScore(2, "bad", "Be more concise", "Add examples"),
		evalWithScore(3, "bad", "Be more concise"),
	}
	issues := extractIssues(low)
	if !strings.Contains(issues, "be more concise (occurred 2 times)") {
		t.Fatalf("expected the repeated suggestion ranked first, got: %s", issues)
	}
}

func TestExtractIssuesNoSuggestions(t *testing.T) {
	if got := extractIssues(nil); got != "No specific issues identified." {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestFormatExamplesEmpty(t *testing.T) {
	if got := formatExamples(nil); got != "No examples available." {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestOPROOptimizeRejectsEmptyHistory(t *testing.T) {
	o := NewOPRO(&fakeRewriter{}, "", 0, 0, 0)
	result, err := o.Optimize(context.Background(), "tmpl", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for empty evaluation history")
	}
}

func TestOPROOptimizeSucceedsWithLongEnoughRewrite(t *testing.T) {
	rewriter := &fakeRewriter{response: strings.Repeat("improved instructions ", 20)}
	o := NewOPRO(rewriter, "", 0, 2, 1)

	history := []*store.Evaluation{
		evalWithScore(9.5, "great", "none"),
		evalWithScore(2.0, "bad", "be concise"),
	}

	result, err := o.Optimize(context.Background(), "tmpl", "current prompt", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if rewriter.calls != 1 {
		t.Fatalf("expected exactly one rewrite call, got %d", rewriter.calls)
	}
	if rewriter.lastArgs.model != "sonnet" {
		t.Fatalf("expected default optimizer model sonnet, got %q", rewriter.lastArgs.model)
	}
}

func TestOPROOptimizeRejectsShortRewrite(t *testing.T) {
	rewriter := &fakeRewriter{response: "too short"}
	o := NewOPRO(rewriter, "", 0, 0, 0)

	result, err := o.Optimize(context.Background(), "tmpl", "current", []*store.Evaluation{evalWithScore(5, "ok")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for a too-short rewrite")
	}
}
