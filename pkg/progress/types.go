// Package progress broadcasts workflow lifecycle events over Postgres
// LISTEN/NOTIFY, backing the core's progress callback (spec §4.6) and the
// Store's live-query contract (spec §4.1). The WebSocket fan-out that
// consumes these notifications belongs to the out-of-scope API layer;
// this package only produces and subscribes to the notifications.
package progress

// EventType names one of the progress-event-stream events (spec §6).
type EventType string

const (
	EventNodeStart          EventType = "node_start"
	EventNodeEnd            EventType = "node_end"
	EventRalphIteration     EventType = "ralph_iteration"
	EventTaskStart          EventType = "task_start"
	EventTaskComplete       EventType = "task_complete"
	EventMetricsUpdate      EventType = "metrics_update"
	EventWorkflowComplete   EventType = "workflow_complete"
	EventWorkflowError      EventType = "workflow_error"
	EventPauseRequested     EventType = "pause_requested"
	EventEscalationResponse EventType = "escalation_response"
)

// NodeStartPayload is the payload for EventNodeStart.
type NodeStartPayload struct {
	Node      string      `json:"node"`
	Input     interface{} `json:"input,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NodeEndPayload is the payload for EventNodeEnd.
type NodeEndPayload struct {
	Node      string      `json:"node"`
	Output    interface{} `json:"output,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// RalphIterationPayload is the payload for EventRalphIteration.
type RalphIterationPayload struct {
	TaskID      string `json:"task_id"`
	Iteration   int    `json:"iteration"`
	MaxIter     int    `json:"max_iter"`
	TestsPassed int    `json:"tests_passed"`
	TestsTotal  int    `json:"tests_total"`
}

// TaskStartPayload is the payload for EventTaskStart.
type TaskStartPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

// TaskCompletePayload is the payload for EventTaskComplete.
type TaskCompletePayload struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
}

// MetricsUpdatePayload is the payload for EventMetricsUpdate.
type MetricsUpdatePayload struct {
	Tokens         int  `json:"tokens"`
	CostUSD        float64 `json:"cost"`
	FilesCreated   *int `json:"files_created,omitempty"`
	FilesModified  *int `json:"files_modified,omitempty"`
}

// WorkflowCompletePayload is the payload for EventWorkflowComplete.
type WorkflowCompletePayload struct {
	Success bool        `json:"success"`
	Results interface{} `json:"results,omitempty"`
}

// WorkflowErrorPayload is the payload for EventWorkflowError.
type WorkflowErrorPayload struct {
	Error string `json:"error"`
}

// PauseRequestedPayload is the payload for EventPauseRequested.
type PauseRequestedPayload struct {
	Message string `json:"message"`
}

// EscalationResponsePayload is the payload for EventEscalationResponse.
type EscalationResponsePayload struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// Callback is the signature the Workflow Engine invokes on every node
// entry/exit, task start/complete, and ralph-loop iteration (spec §4.6).
// Implementations must not block the caller for long and must never
// propagate an error back into the workflow — callback errors are
// logged and swallowed by whoever registers the callback.
type Callback func(eventType EventType, payload interface{})
