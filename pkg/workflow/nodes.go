package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/progress"
	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// planningNode invokes the writer agent to produce an implementation
// plan, decomposes it into Tasks on first entry, and runs the shared
// evaluation pipeline against the plan output.
func (e *Engine) planningNode(ctx context.Context, rc *runContext) (string, *PendingInterrupt, error) {
	prompt := fmt.Sprintf("Create an implementation plan for project %s.", rc.project)
	resp, err := e.invokeAgent(ctx, rc, AgentWriter, "planning", prompt, e.cfg.ChatTimeout)
	if err != nil {
		return "", nil, err
	}

	existing, err := rc.store.FindAllTasks(ctx, 0)
	if err != nil {
		return "", nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "planning", Err: err}
	}
	if len(existing) == 0 {
		planned := parsePlanTasks(resp.Content)
		for i, t := range planned {
			t.Priority = len(planned) - i
			if _, err := rc.store.CreateTask(ctx, t); err != nil {
				return "", nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "planning", Err: err}
			}
		}
	}

	plan := map[string]interface{}{"summary": resp.Content}
	updated, err := rc.store.UpdateWorkflowState(ctx, rc.state.ID, store.WorkflowStateUpdate{Plan: plan})
	if err != nil {
		return "", nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "planning", Err: err}
	}
	rc.state = updated

	e.runEvaluationPipeline(ctx, rc, AgentWriter, "create_plan", store_evalInput{
		Prompt: prompt, Output: resp.Content,
	})

	return RouteContinue, nil, nil
}

// parsePlanTasks extracts "- " prefixed bullet lines from a plan's free
// text into an ordered task list. A plan that names no bullets yields a
// single catch-all task so Implementation always has something to do.
func parsePlanTasks(content string) []*store.Task {
	var titles []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			titles = append(titles, strings.TrimPrefix(line, "- "))
		}
	}
	if len(titles) == 0 {
		titles = []string{"Implement the plan"}
	}

	out := make([]*store.Task, len(titles))
	for i, title := range titles {
		out[i] = &store.Task{
			ID: fmt.Sprintf("task-%s", uuid.NewString()), Title: title, UserStory: title,
			AcceptanceCriteria: []string{}, Dependencies: []string{},
			FilesToCreate: []string{}, FilesToModify: []string{}, TestFiles: []string{},
		}
	}
	return out
}

// reviewerAssignment pairs a review agent kind with its fan-out slot.
type reviewerAssignment struct {
	kind   AgentKind
	output string
	score  float64
}

// validationNode fans two reviewers (validator, reviewer) out in
// parallel over the plan summary via errgroup, mirroring
// SubAgentRunner's concurrent-dispatch idiom
// (pkg/agent/orchestrator/runner.go) generalized from a goroutine+channel
// registry to the simpler errgroup shape this fixed two-way fan-out
// needs. Either reviewer indicating a failing score escalates.
func (e *Engine) validationNode(ctx context.Context, rc *runContext) (string, *PendingInterrupt, error) {
	planSummary, _ := rc.state.Plan["summary"].(string)

	assignments := []*reviewerAssignment{{kind: AgentValidator}, {kind: AgentReviewer}}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assignments {
		a := a
		g.Go(func() error {
			prompt := fmt.Sprintf("Review this plan for project %s:\n%s", rc.project, planSummary)
			resp, err := e.invokeAgent(gctx, rc, a.kind, "validation", prompt, e.cfg.ChatTimeout)
			if err != nil {
				return err
			}
			a.output = resp.Content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	var concerns []string
	for _, a := range assignments {
		eval, err := e.evaluator.EvaluateValidation(ctx, evaluator.ValidationParams{
			Agent: string(a.kind), Output: a.output, PlanSummary: planSummary,
		})
		if err != nil {
			e.logger.Warn("validation evaluation failed", "agent", a.kind, "error", err)
			continue
		}
		if eval != nil {
			a.score = eval.OverallScore
			if e.evaluator.IndicatesFailure(eval) {
				concerns = append(concerns, fmt.Sprintf("%s: %s", a.kind, eval.Feedback))
			}
		}
	}

	if len(concerns) > 0 {
		return RouteEscalate, &PendingInterrupt{
			Kind: "validation_rejected", Question: "Reviewers raised blocking concerns about the plan. Proceed anyway?",
			Options: []string{"continue", "revise"}, Context: map[string]interface{}{"concerns": concerns}, RaisedAt: "validation",
		}, nil
	}
	return RouteContinue, nil, nil
}

// implementationNode iterates every actionable task (dependencies
// satisfied, not already completed) and runs the ralph loop — writer
// invocation, evaluation, retry while failing and under budget — for
// each, emitting task/ralph progress events along the way.
func (e *Engine) implementationNode(ctx context.Context, rc *runContext) (string, *PendingInterrupt, error) {
	tasks, err := rc.store.FindAllTasks(ctx, 0)
	if err != nil {
		return "", nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "implementation", Err: err}
	}

	for _, task := range tasks {
		if task.Status == TaskCompleted || task.Status == TaskSkipped {
			continue
		}
		satisfied, err := rc.store.DependenciesSatisfied(ctx, task.Dependencies)
		if err != nil {
			return "", nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "implementation", Err: err}
		}
		if !satisfied {
			if _, err := rc.store.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: strPtr(TaskBlocked)}); err != nil {
				return "", nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "implementation", Err: err}
			}
			continue
		}

		if err := e.runTaskRalphLoop(ctx, rc, task); err != nil {
			return "", nil, err
		}
	}

	return RouteContinue, nil, nil
}

// runTaskRalphLoop is the per-task writer -> evaluate -> (retry | done)
// cycle the spec's glossary calls the "ralph loop."
func (e *Engine) runTaskRalphLoop(ctx context.Context, rc *runContext, task *store.Task) error {
	e.emit(progress.EventTaskStart, progress.TaskStartPayload{TaskID: task.ID, Title: task.Title})
	if _, err := rc.store.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: strPtr(TaskInProgress)}); err != nil {
		return &NodeError{Kind: ErrKindStorageUnavailable, Node: "implementation", Err: err}
	}

	success := false
	attempts := task.Attempts
	maxIter := e.cfg.MaxRalphIterations
	if maxIter <= 0 {
		maxIter = DefaultConfig.MaxRalphIterations
	}

	for iter := 1; iter <= maxIter; iter++ {
		prompt := fmt.Sprintf("Implement task %s: %s\n\nUser story: %s", task.ID, task.Title, task.UserStory)
		resp, err := e.invokeAgent(ctx, rc, AgentWriter, task.ID, prompt, e.cfg.ChatTimeout)
		attempts++
		if err != nil {
			var nerr *NodeError
			if asNodeError(err, &nerr) && nerr.Retryable() && attempts < task.MaxAttempts {
				continue
			}
			return err
		}

		taskID := task.ID
		eval, evalErr := e.evaluator.EvaluateImplementation(ctx, evaluatorImplementationParams(AgentWriter, taskID, store_evalInput{
			Prompt: prompt, Output: resp.Content, AcceptanceCriteria: task.AcceptanceCriteria,
		}))

		e.emit(progress.EventRalphIteration, progress.RalphIterationPayload{TaskID: task.ID, Iteration: iter, MaxIter: maxIter})

		if evalErr == nil && eval != nil {
			e.runEvaluationPipeline(ctx, rc, AgentWriter, "implement_task", store_evalInput{
				Prompt: prompt, Output: resp.Content, TaskID: &taskID, AcceptanceCriteria: task.AcceptanceCriteria,
			})
			if !e.evaluator.IndicatesFailure(eval) {
				success = true
				break
			}
		} else {
			// EvaluationFailure (spec §7): treat as a neutral pass so a
			// judge-model outage doesn't block the whole task.
			success = true
			break
		}

		if attempts >= task.MaxAttempts {
			break
		}
	}

	status := TaskCompleted
	if !success {
		status = TaskFailed
	}
	if _, err := rc.store.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: &status, Attempts: &attempts}); err != nil {
		return &NodeError{Kind: ErrKindStorageUnavailable, Node: "implementation", Err: err}
	}
	e.emit(progress.EventTaskComplete, progress.TaskCompletePayload{TaskID: task.ID, Success: success})
	return nil
}

// verificationNode runs the four Verification-phase scanners
// concurrently and escalates if any reports a blocking finding,
// mirroring dependency_check_node's next_decision selection generalized
// across every scanner kind.
func (e *Engine) verificationNode(ctx context.Context, rc *runContext) (string, *PendingInterrupt, error) {
	scanners := []Scanner{e.scanners.Dependency, e.scanners.Security, e.scanners.Coverage, e.scanners.Environment}
	results := make([]ScanResult, len(scanners))

	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scanners {
		if sc == nil {
			continue
		}
		i, sc := i, sc
		g.Go(func() error {
			r, err := sc.Check(gctx, rc.project, []string{"critical", "high"})
			if err != nil {
				return &NodeError{Kind: ErrKindStorageUnavailable, Node: sc.Name(), Err: err}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	var findings []Finding
	total := 0
	for i, r := range results {
		if scanners[i] == nil {
			continue
		}
		total += r.BlockingFindings
		findings = append(findings, r.Findings...)
	}

	aggregate := ScanResult{BlockingFindings: total, Findings: findings}
	if ScannerRouter(aggregate) == RouteEscalate {
		capped := escalationFindings(findings)
		ctxMap := map[string]interface{}{"blocking_findings": total}
		return RouteEscalate, &PendingInterrupt{
			Kind: "verification_blocked", Question: "Verification scanners reported blocking findings. How should the workflow proceed?",
			Options: []string{"continue", "abort"}, Context: mergeFindings(ctxMap, capped), RaisedAt: "verification",
		}, nil
	}
	return RouteContinue, nil, nil
}

func mergeFindings(ctxMap map[string]interface{}, findings []Finding) map[string]interface{} {
	list := make([]map[string]string, len(findings))
	for i, f := range findings {
		list[i] = map[string]string{"severity": f.Severity, "subject": f.Subject, "description": f.Description}
	}
	ctxMap["findings"] = list
	return ctxMap
}

// completionNode snapshots a final checkpoint and prunes old ones, then
// lets Run's default "continue" decision push the phase past
// PhaseCompletion, ending the loop.
func (e *Engine) completionNode(ctx context.Context, rc *runContext) (string, *PendingInterrupt, error) {
	if _, err := e.CreateCheckpoint(ctx, rc.project, "completion", "workflow completed", nil); err != nil {
		e.logger.Warn("failed to create completion checkpoint", "error", err)
	}
	if _, err := e.PruneOldCheckpoints(ctx, rc.project, e.cfg.CheckpointKeepCount); err != nil {
		e.logger.Warn("failed to prune checkpoints", "error", err)
	}
	return RouteContinue, nil, nil
}

func strPtr(s string) *string { return &s }
