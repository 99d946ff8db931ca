package workflow

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/store"
)

// runEvaluationPipeline mirrors evaluate_agent_node + analyze_output_node
// + optimize_prompts_node chained through their routers
// (original_source/orchestrator/langgraph/{nodes,routers}/*.py): score the
// output, queue optimization and save a golden example when warranted,
// then drain the optimization queue and push any successful rewrite into
// shadow testing. Every step is gated by ShouldEvaluateRouter /
// EvaluateAgentRouter / AnalyzeOutputRouter so a disabled or sampled-out
// call is a cheap no-op.
func (e *Engine) runEvaluationPipeline(ctx context.Context, rc *runContext, kind AgentKind, templateName string, params store_evalInput) {
	cfg := e.cfg.AutoImprovement
	if !ShouldEvaluateRouter(cfg.Evaluation, true, randomSample()) {
		return
	}

	eval, err := e.evaluate(ctx, kind, templateName, params)
	if err != nil {
		e.logger.Warn("evaluation pipeline: evaluate failed", "agent", kind, "error", err)
		return
	}
	if eval == nil {
		return // skipped by the evaluator's own internal sampling gate
	}

	if EvaluateAgentRouter(eval.OverallScore) != RouteAnalyzeOutput {
		return
	}

	if cfg.Optimization.Enabled && e.evaluator.NeedsOptimization(eval) {
		priority := int(10 - eval.OverallScore)
		e.scheduler.QueueOptimization(string(kind), templateName, "low evaluation score", priority)
	}
	if e.evaluator.IsGoldenExample(eval) {
		e.saveGoldenExample(ctx, rc, kind, templateName, params, eval)
	}

	if AnalyzeOutputRouter(e.scheduler.QueueSize()) != RouteOptimizePrompts {
		return
	}

	results := e.scheduler.ProcessQueue(ctx)
	_ = OptimizePromptsRouter() // always continue_workflow; kept for parity with the router set
	if !cfg.Deployment.Enabled {
		return
	}
	for _, r := range results {
		if r.Success && r.SourceVersion != nil {
			e.deployer.StartShadowTesting(ctx, *r.SourceVersion)
		}
	}
}

// store_evalInput carries the fields shared by the implementation and
// validation evaluation call sites so runEvaluationPipeline doesn't need
// two near-identical signatures.
type store_evalInput struct {
	Prompt             string
	Output             string
	TaskID             *string
	SessionID          *string
	AcceptanceCriteria []string
	FilesCreated       []string
	FilesModified      []string
	TestResults        map[string]interface{}
	PlanSummary        string
	IsValidation       bool
}

func (e *Engine) evaluate(ctx context.Context, kind AgentKind, templateName string, p store_evalInput) (*store.Evaluation, error) {
	if p.IsValidation {
		return e.evaluator.EvaluateValidation(ctx, evaluatorValidationParams(kind, p))
	}
	taskID := ""
	if p.TaskID != nil {
		taskID = *p.TaskID
	}
	return e.evaluator.EvaluateImplementation(ctx, evaluatorImplementationParams(kind, taskID, p))
}

func (e *Engine) saveGoldenExample(ctx context.Context, rc *runContext, kind AgentKind, templateName string, p store_evalInput, eval *store.Evaluation) {
	id := fmt.Sprintf("golden-%s-%s-%s", kind, templateName, eval.ID)
	evalID := eval.ID
	if _, err := rc.store.CreateGoldenExample(ctx, &store.GoldenExample{
		ID: id, Agent: string(kind), TemplateName: templateName,
		InputPrompt: p.Prompt, Output: p.Output, Score: eval.OverallScore, EvaluationID: &evalID,
	}); err != nil {
		e.logger.Warn("failed to save golden example", "error", err)
	}
}

func evaluatorImplementationParams(kind AgentKind, taskID string, p store_evalInput) evaluator.ImplementationParams {
	return evaluator.ImplementationParams{
		Agent: string(kind), Prompt: p.Prompt, Output: p.Output, TaskID: taskID,
		AcceptanceCriteria: p.AcceptanceCriteria, FilesCreated: p.FilesCreated,
		FilesModified: p.FilesModified, TestResults: p.TestResults, SessionID: p.SessionID,
	}
}

func evaluatorValidationParams(kind AgentKind, p store_evalInput) evaluator.ValidationParams {
	return evaluator.ValidationParams{
		Agent: string(kind), Prompt: p.Prompt, Output: p.Output, PlanSummary: p.PlanSummary,
		TaskID: p.TaskID, SessionID: p.SessionID,
	}
}

// randomSample draws a uniform float64 in [0, 1) for ShouldEvaluateRouter,
// mirroring the original's random.random() sampling gate the same way
// pkg/evaluator's internal sampling does.
func randomSample() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / float64(1<<53)
}
