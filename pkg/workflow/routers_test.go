package workflow

import "testing"

func TestEvaluateAgentRouter(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{5.9, RouteAnalyzeOutput},
		{6.0, RouteContinue},
		{9.5, RouteContinue},
	}
	for _, c := range cases {
		if got := EvaluateAgentRouter(c.score); got != c.want {
			t.Errorf("EvaluateAgentRouter(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestAnalyzeOutputRouter(t *testing.T) {
	if got := AnalyzeOutputRouter(0); got != RouteContinue {
		t.Errorf("expected empty queue to continue, got %q", got)
	}
	if got := AnalyzeOutputRouter(3); got != RouteOptimizePrompts {
		t.Errorf("expected non-empty queue to optimize prompts, got %q", got)
	}
}

func TestOptimizePromptsRouterAlwaysContinues(t *testing.T) {
	if got := OptimizePromptsRouter(); got != RouteContinue {
		t.Errorf("expected optimize_prompts_router to always continue, got %q", got)
	}
}

func TestShouldEvaluateRouter(t *testing.T) {
	enabled := EvaluationConfig{Enabled: true, SamplingRate: 0.5}
	disabled := EvaluationConfig{Enabled: false, SamplingRate: 1.0}

	if ShouldEvaluateRouter(disabled, true, 0.0) {
		t.Error("expected disabled evaluation to never run")
	}
	if ShouldEvaluateRouter(enabled, false, 0.0) {
		t.Error("expected evaluation to be skipped with no last execution")
	}
	if !ShouldEvaluateRouter(enabled, true, 0.5) {
		t.Error("expected a sample within the sampling rate to evaluate")
	}
	if ShouldEvaluateRouter(enabled, true, 0.9) {
		t.Error("expected a sample above the sampling rate to skip evaluation")
	}
}

func TestScannerRouter(t *testing.T) {
	if got := ScannerRouter(ScanResult{}); got != RouteContinue {
		t.Errorf("expected a clean scan to continue, got %q", got)
	}
	blocked := ScanResult{BlockingFindings: 2, Findings: []Finding{{Severity: "critical", Subject: "pkg-x"}}}
	if got := ScannerRouter(blocked); got != RouteEscalate {
		t.Errorf("expected blocking findings to escalate, got %q", got)
	}
}

func TestEscalationFindingsCapsAtMax(t *testing.T) {
	var findings []Finding
	for i := 0; i < maxEscalationFindings+5; i++ {
		findings = append(findings, Finding{Severity: "high", Subject: "x"})
	}
	capped := escalationFindings(findings)
	if len(capped) != maxEscalationFindings {
		t.Fatalf("expected findings capped to %d, got %d", maxEscalationFindings, len(capped))
	}
}

func TestEscalationFindingsPassesThroughUnderCap(t *testing.T) {
	findings := []Finding{{Severity: "low", Subject: "x"}}
	capped := escalationFindings(findings)
	if len(capped) != 1 {
		t.Fatalf("expected findings left untouched, got %d", len(capped))
	}
}
