package workflow

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/pkg/audit"
)

// invokeAgent wraps one external-agent invocation in the full plumbing
// spec §4.3/§4.2 require around it: a budget check before the call, an
// audit scope spanning it, conversation-continuity session bookkeeping,
// and a spend record after it. This is the single choke point every
// phase node calls through, so no node has to re-derive that sequencing.
func (e *Engine) invokeAgent(ctx context.Context, rc *runContext, kind AgentKind, taskID, prompt string, timeout time.Duration) (InvocationResponse, error) {
	sessions := audit.NewSessionRecorder(rc.store, e.logger)
	recorder := audit.NewRecorder(rc.store, e.logger)

	invocationBudget := rc.budget.GetInvocationBudget()
	if err := rc.budget.RequireBudget(ctx, taskID, invocationBudget); err != nil {
		return InvocationResponse{}, &NodeError{Kind: ErrKindBudgetExceeded, Node: string(kind), Err: err}
	}

	sessionArgs, err := sessions.GetSessionIDArgs(ctx, taskID, string(kind))
	if err != nil {
		return InvocationResponse{}, &NodeError{Kind: ErrKindStorageUnavailable, Node: string(kind), Err: err}
	}
	var newSessionID *string
	if len(sessionArgs) == 2 {
		id := sessionArgs[1]
		newSessionID = &id
	}

	req := InvocationRequest{
		Project:      rc.project,
		AgentBinary:  e.cfg.agentBinary(kind),
		Prompt:       prompt,
		OutputFormat: "json",
		NewSessionID: newSessionID,
		MaxBudgetUSD: invocationBudget,
		Timeout:      timeout,
	}

	var resp InvocationResponse
	recordErr := recorder.Do(ctx, audit.RecordParams{
		Agent: string(kind), TaskID: taskID, Prompt: prompt, SessionID: newSessionID,
	}, func(ctx context.Context, scope *audit.Scope) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r, ierr := e.invoker.Invoke(callCtx, kind, req)
		resp = r
		if ierr != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				scope.SetTimeout(timeout.Seconds())
				return &NodeError{Kind: ErrKindAgentTimeout, Node: string(kind), Err: ierr}
			}
			scope.SetError(ierr.Error())
			return &NodeError{Kind: ErrKindAgentNonZeroExit, Node: string(kind), Err: ierr}
		}
		scope.SetResult(true, &r.ExitCode, len(r.Content), 0, r.CostUSD, r.Model, nil)
		return nil
	})
	if recordErr != nil {
		return resp, recordErr
	}

	if resp.CostUSD != nil {
		if _, serr := rc.budget.RecordSpend(ctx, taskID, string(kind), *resp.CostUSD, resp.Model, resp.PromptTokens, resp.CompletionTokens); serr != nil {
			e.logger.Warn("failed to record spend", "error", serr)
		}
	}
	if newSessionID != nil {
		cost := 0.0
		if resp.CostUSD != nil {
			cost = *resp.CostUSD
		}
		if cerr := sessions.RecordInvocation(ctx, *newSessionID, cost); cerr != nil {
			e.logger.Warn("failed to touch session", "error", cerr)
		}
	}
	return resp, nil
}
