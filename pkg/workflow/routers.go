package workflow

// Router decision target names, mirroring the string labels the original
// router functions return (original_source/orchestrator/langgraph/
// routers/evaluation.py) — kept as plain strings since nothing downstream
// treats them as more than a dispatch key.
const (
	RouteAnalyzeOutput   = "analyze_output"
	RouteOptimizePrompts = "optimize_prompts"
	RouteContinue        = "continue_workflow"
	RouteEscalate        = "escalate"
)

// evaluationScoreThreshold is the overall_score cutoff below which
// evaluate_agent_router sends the run to analyze_output instead of
// straight back to the workflow (evaluation.py: "score < 6.0").
const evaluationScoreThreshold = 6.0

// EvaluateAgentRouter mirrors evaluate_agent_router: a low enough score
// diverts to output analysis before continuing; everything else
// continues straight through.
func EvaluateAgentRouter(overallScore float64) string {
	if overallScore < evaluationScoreThreshold {
		return RouteAnalyzeOutput
	}
	return RouteContinue
}

// AnalyzeOutputRouter mirrors analyze_output_router: a non-empty
// optimization queue diverts to optimize_prompts, otherwise continues.
func AnalyzeOutputRouter(queueLength int) string {
	if queueLength > 0 {
		return RouteOptimizePrompts
	}
	return RouteContinue
}

// OptimizePromptsRouter mirrors optimize_prompts_router: optimization
// always returns control to the workflow once it has processed its
// batch, regardless of how many attempts succeeded.
func OptimizePromptsRouter() string {
	return RouteContinue
}

// ShouldEvaluateRouter mirrors should_evaluate_router: evaluation only
// runs when auto-improvement is enabled for the project, there is a
// last agent execution to evaluate, and the sampling draw clears the
// configured rate. sample is the caller-supplied draw in [0, 1) so the
// decision stays a pure function of its inputs.
func ShouldEvaluateRouter(cfg EvaluationConfig, hasLastExecution bool, sample float64) bool {
	if !cfg.Enabled {
		return false
	}
	if !hasLastExecution {
		return false
	}
	return sample <= cfg.SamplingRate
}

// ScannerRouter mirrors dependency_check_node's next_decision selection:
// any blocking finding escalates with the findings attached; otherwise
// the workflow continues. Used identically for dependency, security,
// coverage, and environment scanners since they share one ScanResult
// shape.
func ScannerRouter(result ScanResult) string {
	if result.BlockingFindings > 0 {
		return RouteEscalate
	}
	return RouteContinue
}

// maxEscalationFindings caps how many findings are attached to an
// escalation's context, mirroring dependency_check_node's 10-finding cap
// on its formatted error message.
const maxEscalationFindings = 10

// escalationFindings trims a finding list to the router's display cap.
func escalationFindings(findings []Finding) []Finding {
	if len(findings) <= maxEscalationFindings {
		return findings
	}
	return findings[:maxEscalationFindings]
}
