package evaluator

import "testing"

func TestComputeWeightedScoreFullSet(t *testing.T) {
	scores := map[string]float64{
		string(TaskCompletion):   10,
		string(OutputQuality):    10,
		string(TokenEfficiency):  10,
		string(ReasoningQuality): 10,
		string(ToolUtilization):  10,
		string(ContextRetention): 10,
		string(Safety):           10,
	}
	if got := ComputeWeightedScore(scores); got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestComputeWeightedScorePartialSet(t *testing.T) {
	scores := map[string]float64{
		string(TaskCompletion): 10, // weight 0.25
		string(Safety):         2,  // weight 0.05
	}
	got := ComputeWeightedScore(scores)
	tcWeight, safetyWeight := 0.25, 0.05
	want := (10*tcWeight + 2*safetyWeight) / (tcWeight + safetyWeight)
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestComputeWeightedScoreEmpty(t *testing.T) {
	if got := ComputeWeightedScore(map[string]float64{}); got != 0.0 {
		t.Fatalf("expected 0.0 for empty scores, got %v", got)
	}
}

func TestCriteriaWeightsSumToOne(t *testing.T) {
	var total float64
	for _, cfg := range Criteria {
		total += cfg.Weight
	}
	if diff := total - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected weights to sum to 1.0, got %v", total)
	}
}

func TestValidateScoresFlagsOutOfRangeAndMissing(t *testing.T) {
	scores := map[string]float64{
		string(TaskCompletion): 11, // out of range
		string(OutputQuality):  5,
	}
	errs := ValidateScores(scores)
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
}

func TestValidateScoresAllValid(t *testing.T) {
	scores := map[string]float64{}
	for _, m := range AllMetrics {
		scores[string(m)] = 7
	}
	if errs := ValidateScores(scores); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
