package evaluator

import (
	"strings"
	"testing"
)

func TestAnalyzeSemanticCompleteness(t *testing.T) {
	a := NewAnalyzer()

	short := a.Analyze("too short", AnalyzeParams{})
	if short.Semantic.Completeness >= 1.0 {
		t.Fatalf("expected incomplete score for short output, got %v", short.Semantic.Completeness)
	}

	long := a.Analyze(strings.Repeat("word ", 200), AnalyzeParams{})
	if long.Semantic.Completeness != 1.0 {
		t.Fatalf("expected capped completeness of 1.0, got %v", long.Semantic.Completeness)
	}
}

func TestAnalyzeSemanticAccuracyMatchesRequirements(t *testing.T) {
	a := NewAnalyzer()
	result := a.Analyze("The implementation adds authentication and logging.", AnalyzeParams{
		Requirements: []string{"add authentication support", "provide caching layer"},
	})
	if result.Semantic.Accuracy != 0.5 {
		t.Fatalf("expected half of requirements matched, got %v", result.Semantic.Accuracy)
	}
}

func TestDetectPatternsFlagsExcessiveVerbosity(t *testing.T) {
	a := NewAnalyzer()
	output := strings.Repeat("basically this is really just essentially fine. ", 6)
	result := a.Analyze(output, AnalyzeParams{})

	found := false
	for _, p := range result.Patterns {
		if p.Type == PatternVerbosity {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a verbosity pattern to be detected")
	}
}

func TestDetectPatternsFlagsUnclosedCodeBlock(t *testing.T) {
	a := NewAnalyzer()
	result := a.Analyze("```go\nfunc main() {}\n", AnalyzeParams{})

	found := false
	for _, p := range result.Patterns {
		if p.Type == PatternFormatError {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an unclosed-code-block pattern")
	}
}

func TestAnalyzeStructureJSONFormat(t *testing.T) {
	a := NewAnalyzer()
	valid := a.Analyze(`{"status": "ok"}`, AnalyzeParams{ExpectedFormat: "json"})
	if valid.Structural.FormatConsistency != 1.0 {
		t.Fatalf("expected valid JSON to score 1.0, got %v", valid.Structural.FormatConsistency)
	}

	invalid := a.Analyze("not json at all", AnalyzeParams{ExpectedFormat: "json"})
	if invalid.Structural.FormatConsistency != 0.0 {
		t.Fatalf("expected invalid JSON to score 0.0, got %v", invalid.Structural.FormatConsistency)
	}
}

func TestOverallScorePatternPenalty(t *testing.T) {
	clean := AnalysisResult{
		Semantic:   SemanticScore{Completeness: 1, Accuracy: 1, Coherence: 1},
		Structural: StructuralScore{SchemaAdherence: 1, FormatConsistency: 1, Organization: 1},
		Efficiency: EfficiencyScore{EfficiencyRatio: 1},
	}
	penalized := clean
	penalized.Patterns = []DetectedPattern{{Severity: "high"}, {Severity: "high"}}

	if clean.OverallScore() <= penalized.OverallScore() {
		t.Fatalf("expected pattern penalty to reduce overall score: clean=%v penalized=%v", clean.OverallScore(), penalized.OverallScore())
	}
	if clean.OverallScore() != 1.0 {
		t.Fatalf("expected a perfectly clean result to score 1.0, got %v", clean.OverallScore())
	}
}

func TestCheckSchemaBasicRequiredFields(t *testing.T) {
	schema := map[string]interface{}{
		"required": []interface{}{"name", "id"},
	}
	full := map[string]interface{}{"name": "x", "id": "1"}
	partial := map[string]interface{}{"name": "x"}

	if got := checkSchemaBasic(full, schema); got != 1.0 {
		t.Fatalf("expected 1.0 for fully present required fields, got %v", got)
	}
	if got := checkSchemaBasic(partial, schema); got != 0.5 {
		t.Fatalf("expected 0.5 for half-present required fields, got %v", got)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := NewAnalyzer()
	out := "Some fairly ordinary agent output with no special patterns."
	r1 := a.Analyze(out, AnalyzeParams{})
	r2 := a.Analyze(out, AnalyzeParams{})
	if r1.OutputHash != r2.OutputHash {
		t.Fatal("expected identical output hash for identical input")
	}
	if len(r1.OutputHash) != 16 {
		t.Fatalf("expected 16-char hash, got %d", len(r1.OutputHash))
	}
}
