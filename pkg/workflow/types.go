// Package workflow implements the Workflow Engine component (C6): the
// five-phase state machine (Planning, Validation, Implementation,
// Verification, Completion) that drives a project from task plan to
// completed, reviewed, deployed work. It composes every other core
// component — Store, Budget Engine, Audit/Session Recorder, Evaluator,
// Optimizer/Scheduler/Deployer — rather than reimplementing any of their
// concerns, and broadcasts lifecycle events through pkg/progress.
//
// The phase graph and its routers are ported from
// original_source/orchestrator/langgraph/{nodes,routers}/*.py, but
// expressed as explicit Go dispatch (a phase-indexed handler table plus
// plain decision functions) rather than a literal graph-execution
// library, since nothing in the retrieval pack supplies a generic graph
// engine for Go.
package workflow

import "time"

// Phase is one of the five stages of spec §4.6's state machine. Values
// match WorkflowState.current_phase (ent/schema/workflowstate.go: "1..5").
type Phase int

const (
	PhasePlanning Phase = iota + 1
	PhaseValidation
	PhaseImplementation
	PhaseVerification
	PhaseCompletion
)

// String renders the phase name used in progress events and logs.
func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseValidation:
		return "validation"
	case PhaseImplementation:
		return "implementation"
	case PhaseVerification:
		return "verification"
	case PhaseCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// Phase-status values stored in WorkflowState.phase_status, keyed by
// phase number as a string.
const (
	PhaseStatusPending    = "pending"
	PhaseStatusInProgress = "in_progress"
	PhaseStatusCompleted  = "completed"
	PhaseStatusFailed     = "failed"
	PhaseStatusSkipped    = "skipped"
)

// Task status values, mirroring ent/schema/task.go's enum.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskBlocked    = "blocked"
	TaskSkipped    = "skipped"
)

// NextDecision values, mirroring WorkflowState.next_decision's enum.
const (
	DecisionContinue = "continue"
	DecisionRetry    = "retry"
	DecisionEscalate = "escalate"
	DecisionRollback = "rollback"
	DecisionAbort    = "abort"
)

// PendingInterrupt suspends the engine at a node boundary pending either a
// human response (interactive execution mode) or a default autonomous
// resolution (afk mode), per spec §4.6.
type PendingInterrupt struct {
	Kind     string                 `json:"kind"`
	Question string                 `json:"question"`
	Options  []string               `json:"options,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
	// RaisedAt is the node name that set this interrupt.
	RaisedAt string `json:"raised_at"`
}

// ResumeInput is the payload to Engine.Resume. Exactly one of Autonomous
// or HumanResponse drives how a pending interrupt is resolved.
type ResumeInput struct {
	Autonomous    bool
	HumanResponse *string
}

// RunOutcome is the terminal report of one Engine.Run/Resume call.
type RunOutcome struct {
	Project   string
	Phase     Phase
	Status    string // "completed", "suspended", "failed"
	Interrupt *PendingInterrupt
	Error     string
	StoppedAt time.Time
}
