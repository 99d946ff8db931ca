package workflow

import (
	"context"
	"time"
)

// AgentKind is the closed set of agent roles the engine dispatches to,
// matching the "writer"|"validator"|"reviewer" enum shared by every
// store entity that references an agent (ent/schema/{auditentry,
// evaluation,session,...}.go). Spec §9 calls for tagged variants in
// place of open dynamic dispatch; this is that enum for the agent axis.
type AgentKind string

const (
	AgentWriter    AgentKind = "writer"
	AgentValidator AgentKind = "validator"
	AgentReviewer  AgentKind = "reviewer"
)

// InvocationRequest is the fully-resolved external-CLI invocation
// contract from spec §6: an agent binary invoked as
//
//	agent_binary -p prompt --output-format {json|text|stream-json}
//	  [--max-turns N] [--allowedTools csv]
//	  [--resume session_id | --session-id session_id]
//	  --max-budget-usd ceiling
type InvocationRequest struct {
	Project         string
	AgentBinary     string
	Prompt          string
	OutputFormat    string // "json" | "text" | "stream-json"
	MaxTurns        *int
	AllowedTools    []string
	ResumeSessionID *string
	NewSessionID    *string
	MaxBudgetUSD    float64
	Timeout         time.Duration
}

// InvocationResponse is the parsed {cost_usd?, model?, session_id?,
// content, tokens?} shape spec §6 specifies for every invocation result.
type InvocationResponse struct {
	Content          string
	CostUSD          *float64
	Model            *string
	SessionID        *string
	PromptTokens     *int
	CompletionTokens *int
	ExitCode         int
	TimedOut         bool
}

// AgentInvoker executes one external-agent invocation. It mirrors
// pkg/queue.SessionExecutor's interface-injection boundary: the engine
// stays unit-testable against a fake invoker, while pkg/agentproc
// supplies the concrete os/exec-based implementation that actually
// shells out to the agent binary.
type AgentInvoker interface {
	Invoke(ctx context.Context, kind AgentKind, req InvocationRequest) (InvocationResponse, error)
}
