// Package agentproc implements workflow.AgentInvoker by shelling out to an
// external agent CLI binary, the literal contract spec §6 and the
// original system's Project.spawn_worker_claude describe: build argv,
// run it with a working directory and timeout, and parse whatever JSON
// (or plain text) it prints to stdout.
package agentproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/devctrl/orchestrator/pkg/workflow"
)

// DefaultAllowedTools mirrors spawn_worker_claude's default tool set for
// an implementation-phase worker when the caller doesn't specify one.
var DefaultAllowedTools = []string{
	"Read", "Write", "Edit",
	"Bash(npm*)", "Bash(pytest*)", "Bash(python*)", "Bash(go*)",
	"Bash(ls*)", "Bash(mkdir*)",
}

// Invoker runs agent CLI binaries under a per-project working directory.
// It satisfies workflow.AgentInvoker.
type Invoker struct {
	// ProjectDir resolves a project name to the directory the agent
	// process should run in (cwd), mirroring ProjectManager.get_project.
	ProjectDir func(project string) string
	logger     *slog.Logger
}

// New constructs an Invoker. logger defaults to slog.Default() when nil.
func New(projectDir func(project string) string, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{ProjectDir: projectDir, logger: logger}
}

// rawOutput is the `{cost_usd?, model?, session_id?, content, tokens?}`
// shape spec §6 specifies. tokens is nested per the original's usage
// dict; unknown fields fall through to workflow.InvocationResponse's
// caller (AuditEntry.metadata is populated from the unparsed raw bytes
// by the caller, not here — agentproc only extracts the fields the
// engine itself needs).
type rawOutput struct {
	CostUSD   *float64 `json:"cost_usd"`
	Model     *string  `json:"model"`
	SessionID *string  `json:"session_id"`
	Content   string   `json:"content"`
	Tokens    *struct {
		Prompt     *int `json:"prompt"`
		Completion *int `json:"completion"`
	} `json:"tokens"`
}

// Invoke builds the argv spec §6 specifies, runs it, and parses stdout.
// A process that exits non-zero or times out returns an error the caller
// (pkg/workflow's invokeAgent) tags with the right ErrKind; Invoke itself
// only reports what actually happened.
func (iv *Invoker) Invoke(ctx context.Context, kind workflow.AgentKind, req workflow.InvocationRequest) (workflow.InvocationResponse, error) {
	args := buildArgs(req)

	cmd := exec.CommandContext(ctx, req.AgentBinary, args...)
	if iv.ProjectDir != nil {
		cmd.Dir = iv.ProjectDir(req.Project)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	resp := workflow.InvocationResponse{
		Content:  stdout.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	if ctx.Err() != nil {
		resp.TimedOut = true
		return resp, ctx.Err()
	}

	if runErr != nil {
		iv.logger.Warn("agent invocation failed", "agent", kind, "stderr", stderr.String(), "error", runErr)
		return resp, fmt.Errorf("agentproc: %s exited with error: %w", req.AgentBinary, runErr)
	}

	parsed, ok := parseOutput(stdout.Bytes())
	if !ok {
		// Plain-text output is valid per spec §6; content is already set
		// from the raw stdout above.
		return resp, nil
	}

	resp.Content = parsed.Content
	resp.CostUSD = parsed.CostUSD
	resp.Model = parsed.Model
	resp.SessionID = parsed.SessionID
	if parsed.Tokens != nil {
		resp.PromptTokens = parsed.Tokens.Prompt
		resp.CompletionTokens = parsed.Tokens.Completion
	}
	return resp, nil
}

// parseOutput mirrors spawn_worker_claude's "try to parse JSON output,
// fall back to raw text" behavior.
func parseOutput(stdout []byte) (*rawOutput, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var out rawOutput
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, false
	}
	return &out, true
}

// buildArgs assembles the CLI argv from spec §6's contract:
//
//	[agent_binary, "-p", prompt, "--output-format", fmt,
//	 "--max-turns", n?, "--allowedTools", csv?,
//	 "--resume", id | "--session-id", id, "--max-budget-usd", ceiling]
func buildArgs(req workflow.InvocationRequest) []string {
	format := req.OutputFormat
	if format == "" {
		format = "json"
	}

	args := []string{"-p", req.Prompt, "--output-format", format}

	if req.MaxTurns != nil {
		args = append(args, "--max-turns", strconv.Itoa(*req.MaxTurns))
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}

	switch {
	case req.ResumeSessionID != nil:
		args = append(args, "--resume", *req.ResumeSessionID)
	case req.NewSessionID != nil:
		args = append(args, "--session-id", *req.NewSessionID)
	}

	if req.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(req.MaxBudgetUSD, 'f', -1, 64))
	}

	return args
}
