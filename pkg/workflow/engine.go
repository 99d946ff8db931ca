package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devctrl/orchestrator/pkg/audit"
	"github.com/devctrl/orchestrator/pkg/budget"
	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/optimizer"
	"github.com/devctrl/orchestrator/pkg/progress"
	"github.com/devctrl/orchestrator/pkg/store"
)

// Additional progress event types the engine emits alongside the fixed
// set in pkg/progress/types.go. progress.EventType is a plain string
// type, so extending it here composes cleanly with Publisher.AsCallback
// without pkg/progress needing to know about checkpoints.
const (
	EventCheckpointCreated  progress.EventType = "checkpoint_created"
	EventCheckpointRollback progress.EventType = "checkpoint_rollback"
)

// CheckpointEventPayload is the payload for EventCheckpointCreated and
// EventCheckpointRollback.
type CheckpointEventPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phase int    `json:"phase"`
}

// Deps bundles every component the engine composes. None of these are
// optional in production; tests construct a Deps with fakes wherever a
// live Postgres/LLM dependency would otherwise be required.
type Deps struct {
	Stores    *store.Registry
	Invoker   AgentInvoker
	Budgets   func(project string) *budget.Engine
	Evaluator *evaluator.Evaluator
	Optimizer *optimizer.Optimizer
	Scheduler *optimizer.Scheduler
	Deployer  *optimizer.Deployer
	Scanners  ScannerSet
	Progress  progress.Callback
	Logger    *slog.Logger
}

// Engine drives the five-phase state machine (spec §4.6). Exactly one Run
// may be in flight per project at a time, enforced by ProjectLock.
type Engine struct {
	stores    *store.Registry
	lock      *ProjectLock
	invoker   AgentInvoker
	budgets   func(project string) *budget.Engine
	evaluator *evaluator.Evaluator
	optimizer *optimizer.Optimizer
	scheduler *optimizer.Scheduler
	deployer  *optimizer.Deployer
	scanners  ScannerSet
	progress  progress.Callback
	cfg       Config
	logger    *slog.Logger
}

// New constructs an Engine. cfg defaults to DefaultConfig when zero.
func New(deps Deps, cfg Config) *Engine {
	if cfg.ChatTimeout == 0 {
		cfg = DefaultConfig
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progressCb := deps.Progress
	if progressCb == nil {
		progressCb = func(progress.EventType, interface{}) {}
	}
	return &Engine{
		stores:    deps.Stores,
		lock:      NewProjectLock(),
		invoker:   deps.Invoker,
		budgets:   deps.Budgets,
		evaluator: deps.Evaluator,
		optimizer: deps.Optimizer,
		scheduler: deps.Scheduler,
		deployer:  deps.Deployer,
		scanners:  deps.Scanners,
		progress:  progressCb,
		cfg:       cfg,
		logger:    logger,
	}
}

// emit publishes a progress event, matching spec §4.6's requirement that
// callback errors never abort the workflow: progress.Callback already
// has no error return, so a panicking callback is the only failure mode
// left, and that is the caller's bug to fix, not the engine's to hide.
func (e *Engine) emit(eventType progress.EventType, payload interface{}) {
	e.progress(eventType, payload)
}

// runContext threads the mutable, per-run values node functions need
// without every node re-fetching them from the store.
type runContext struct {
	project string
	store   *store.Store
	budget  *budget.Engine
	state   *store.WorkflowState
	tasks   []*store.Task
}

// Run drives a project from its current phase to Completion, suspension
// on a pending interrupt, or a fatal error. It acquires the project's
// lock for its entire lifetime (SPEC_FULL.md §14 resolution (i)) so a
// second concurrent Run for the same project blocks rather than racing.
func (e *Engine) Run(ctx context.Context, project string) (*RunOutcome, error) {
	release := e.lock.Acquire(project)
	defer release()
	return e.runLocked(ctx, project, nil)
}

// Resume re-enters a suspended run, merging in either an autonomous
// default resolution or a human response for its pending interrupt
// (spec §4.6: `resume(project, {autonomous?, human_response?})`).
func (e *Engine) Resume(ctx context.Context, project string, input ResumeInput) (*RunOutcome, error) {
	release := e.lock.Acquire(project)
	defer release()
	return e.runLocked(ctx, project, &input)
}

func (e *Engine) runLocked(ctx context.Context, project string, resume *ResumeInput) (*RunOutcome, error) {
	s := e.stores.Get(project)
	state, err := s.GetOrCreateWorkflowState(ctx)
	if err != nil {
		return nil, &NodeError{Kind: ErrKindStorageUnavailable, Node: "run", Err: err}
	}

	rc := &runContext{project: project, store: s, budget: e.budgets(project), state: state}

	if resume != nil {
		if err := e.resolveInterrupt(ctx, rc, *resume); err != nil {
			return nil, err
		}
	}

	retries := 0
	for {
		if Phase(rc.state.CurrentPhase) > PhaseCompletion {
			break
		}

		phase := Phase(rc.state.CurrentPhase)
		e.emit(progress.EventNodeStart, progress.NodeStartPayload{Node: phase.String(), Timestamp: time.Now().UTC().Format(time.RFC3339)})

		decision, interrupt, err := e.dispatchPhase(ctx, rc, phase)

		e.emit(progress.EventNodeEnd, progress.NodeEndPayload{Node: phase.String(), Timestamp: time.Now().UTC().Format(time.RFC3339)})

		if err != nil {
			var nerr *NodeError
			if asNodeError(err, &nerr) && nerr.Retryable() && retries < MaxStorageRetries {
				retries++
				e.logger.Warn("retryable node error, staying in phase", "phase", phase, "attempt", retries, "error", err)
				continue
			}
			e.emit(progress.EventWorkflowError, progress.WorkflowErrorPayload{Error: err.Error()})
			return &RunOutcome{Project: project, Phase: phase, Status: "failed", Error: err.Error(), StoppedAt: time.Now()}, err
		}
		retries = 0

		switch decision {
		case DecisionEscalate:
			if err := e.setPendingInterrupt(ctx, rc, interrupt); err != nil {
				return nil, err
			}
			e.emit(progress.EventPauseRequested, progress.PauseRequestedPayload{Message: interrupt.Question})
			return &RunOutcome{Project: project, Phase: phase, Status: "suspended", Interrupt: interrupt, StoppedAt: time.Now()}, nil
		case DecisionAbort:
			e.emit(progress.EventWorkflowError, progress.WorkflowErrorPayload{Error: "workflow aborted"})
			return &RunOutcome{Project: project, Phase: phase, Status: "failed", Error: "aborted", StoppedAt: time.Now()}, nil
		case DecisionRetry:
			continue
		default: // continue
			if err := e.advancePhase(ctx, rc); err != nil {
				return nil, err
			}
		}
	}

	e.emit(progress.EventWorkflowComplete, progress.WorkflowCompletePayload{Success: true})
	return &RunOutcome{Project: project, Phase: PhaseCompletion, Status: "completed", StoppedAt: time.Now()}, nil
}

// asNodeError is a small helper so Run's error switch doesn't need the
// caller to import errors.As at every call site.
func asNodeError(err error, target **NodeError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ne, ok := err.(*NodeError); ok {
			*target = ne
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// dispatchPhase runs the node(s) for one phase and returns the router
// decision that should drive the engine's next step.
func (e *Engine) dispatchPhase(ctx context.Context, rc *runContext, phase Phase) (decision string, interrupt *PendingInterrupt, err error) {
	switch phase {
	case PhasePlanning:
		return e.planningNode(ctx, rc)
	case PhaseValidation:
		return e.validationNode(ctx, rc)
	case PhaseImplementation:
		return e.implementationNode(ctx, rc)
	case PhaseVerification:
		return e.verificationNode(ctx, rc)
	case PhaseCompletion:
		return e.completionNode(ctx, rc)
	default:
		return "", nil, &NodeError{Kind: ErrKindInternalAssertion, Node: "dispatch", Err: fmt.Errorf("unknown phase %d", phase)}
	}
}

// advancePhase marks the current phase completed and moves to the next
// one, persisting both through a single WorkflowState update.
func (e *Engine) advancePhase(ctx context.Context, rc *runContext) error {
	phaseKey := fmt.Sprintf("%d", rc.state.CurrentPhase)
	status := copyPhaseStatus(rc.state.PhaseStatus)
	status[phaseKey] = PhaseStatusCompleted

	next := rc.state.CurrentPhase + 1
	updated, err := rc.store.UpdateWorkflowState(ctx, rc.state.ID, store.WorkflowStateUpdate{
		CurrentPhase: &next,
		PhaseStatus:  status,
	})
	if err != nil {
		return &NodeError{Kind: ErrKindStorageUnavailable, Node: "advance_phase", Err: err}
	}
	rc.state = updated
	return nil
}

func copyPhaseStatus(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// setPendingInterrupt persists the interrupt into WorkflowState's
// implementation_result bag (there is no dedicated column; spec §4.6
// treats pending_interrupt as part of the state the checkpoint snapshot
// already captures via ImplementationResult) and marks next_decision
// escalate so a checkpoint taken mid-suspension reflects it.
func (e *Engine) setPendingInterrupt(ctx context.Context, rc *runContext, interrupt *PendingInterrupt) error {
	result := map[string]interface{}{}
	for k, v := range rc.state.ImplementationResult {
		result[k] = v
	}
	result["pending_interrupt"] = map[string]interface{}{
		"kind": interrupt.Kind, "question": interrupt.Question,
		"options": interrupt.Options, "context": interrupt.Context, "raised_at": interrupt.RaisedAt,
	}
	decision := DecisionEscalate
	updated, err := rc.store.UpdateWorkflowState(ctx, rc.state.ID, store.WorkflowStateUpdate{
		ImplementationResult: result,
		NextDecision:         &decision,
	})
	if err != nil {
		return &NodeError{Kind: ErrKindStorageUnavailable, Node: "set_interrupt", Err: err}
	}
	rc.state = updated
	return nil
}

// resolveInterrupt consumes a ResumeInput against the persisted pending
// interrupt. Autonomous mode always resolves with DecisionContinue (the
// default action); a human response is recorded as-is and also resolves
// to continue, since any stricter routing based on the answer's content
// belongs to the node that raised the interrupt, not to Resume itself.
func (e *Engine) resolveInterrupt(ctx context.Context, rc *runContext, input ResumeInput) error {
	result := map[string]interface{}{}
	for k, v := range rc.state.ImplementationResult {
		result[k] = v
	}
	delete(result, "pending_interrupt")
	if input.HumanResponse != nil {
		result["last_escalation_response"] = *input.HumanResponse
		e.emit(progress.EventEscalationResponse, progress.EscalationResponsePayload{Answer: *input.HumanResponse})
	}
	decision := DecisionContinue
	updated, err := rc.store.UpdateWorkflowState(ctx, rc.state.ID, store.WorkflowStateUpdate{
		ImplementationResult: result,
		NextDecision:         &decision,
	})
	if err != nil {
		return &NodeError{Kind: ErrKindStorageUnavailable, Node: "resolve_interrupt", Err: err}
	}
	rc.state = updated
	return nil
}
