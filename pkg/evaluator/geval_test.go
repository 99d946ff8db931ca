package evaluator

import "testing"

func TestParseCriterionResponseValidJSON(t *testing.T) {
	raw := `{"reasoning": "step by step", "score": 8, "feedback": "solid output"}`
	eval := parseCriterionResponse(TaskCompletion, raw)

	if eval.Score != 8 {
		t.Fatalf("expected score 8, got %v", eval.Score)
	}
	if eval.Feedback != "solid output" {
		t.Fatalf("unexpected feedback: %q", eval.Feedback)
	}
}

func TestParseCriterionResponseFallsBackToRegexOnBadJSON(t *testing.T) {
	raw := "I think this deserves a score: 7 out of the rubric"
	eval := parseCriterionResponse(OutputQuality, raw)

	if eval.Score != 7 {
		t.Fatalf("expected extracted score 7, got %v", eval.Score)
	}
	if eval.Feedback != "Unable to parse structured response" {
		t.Fatalf("unexpected feedback: %q", eval.Feedback)
	}
}

func TestExtractScoreFromText(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{`"score": 9.5`, 9.5},
		{"score: 6", 6},
		{"I'd rate this 4/10 honestly", 4},
		{"about 3 out of 10", 3},
		{"no score mentioned at all", 5.0},
		{"score: 15", 5.0}, // out of range, falls through to default
	}
	for _, c := range cases {
		if got := extractScoreFromText(c.text); got != c.want {
			t.Errorf("extractScoreFromText(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestGenerateSuggestionsFlagsLowScoresAndOverall(t *testing.T) {
	evaluations := []CriterionEvaluation{
		{Criterion: TaskCompletion, Score: 2, Feedback: "missed requirements"},
		{Criterion: OutputQuality, Score: 3, Feedback: "incoherent"},
		{Criterion: Safety, Score: 4, Feedback: "borderline"},
		{Criterion: ToolUtilization, Score: 9, Feedback: "great"},
	}

	suggestions := generateSuggestions(evaluations, 3.2)

	if len(suggestions) == 0 {
		t.Fatal("expected suggestions for low scores")
	}
	foundMultiple := false
	foundOverall := false
	for _, s := range suggestions {
		if s == "Multiple criteria scored poorly - consider prompt restructuring" {
			foundMultiple = true
		}
		if s == "Overall score very low - fundamental prompt issues likely" {
			foundOverall = true
		}
	}
	if !foundMultiple {
		t.Error("expected the multiple-low-scores suggestion")
	}
	if !foundOverall {
		t.Error("expected the low-overall-score suggestion")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected truncation of short text: %q", got)
	}
	long := "0123456789abcdef"
	got := truncate(long, 10)
	want := "0123456789... [truncated]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFormatRequirementsEmpty(t *testing.T) {
	if got := formatRequirements(nil); got != "No specific requirements provided" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestCriterionTitle(t *testing.T) {
	if got := criterionTitle(TaskCompletion); got != "Task Completion" {
		t.Fatalf("unexpected: %q", got)
	}
}
