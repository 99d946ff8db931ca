package agentproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devctrl/orchestrator/pkg/workflow"
)

func strPtr(s string) *string { return &s }

func TestBuildArgsIncludesAllOptionalFlags(t *testing.T) {
	maxTurns := 5
	req := workflow.InvocationRequest{
		Prompt: "do the thing", OutputFormat: "json", MaxTurns: &maxTurns,
		AllowedTools: []string{"Read", "Write"}, NewSessionID: strPtr("sess-1"), MaxBudgetUSD: 1.5,
	}
	args := buildArgs(req)

	want := []string{
		"-p", "do the thing", "--output-format", "json",
		"--max-turns", "5", "--allowedTools", "Read,Write",
		"--session-id", "sess-1", "--max-budget-usd", "1.5",
	}
	if len(args) != len(want) {
		t.Fatalf("buildArgs = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("buildArgs[%d] = %q, want %q (full: %v)", i, args[i], want[i], args)
		}
	}
}

func TestBuildArgsPrefersResumeOverNewSession(t *testing.T) {
	req := workflow.InvocationRequest{
		Prompt: "p", ResumeSessionID: strPtr("old"), NewSessionID: strPtr("new"),
	}
	args := buildArgs(req)

	foundResume, foundNew := false, false
	for _, a := range args {
		if a == "old" {
			foundResume = true
		}
		if a == "new" {
			foundNew = true
		}
	}
	if !foundResume || foundNew {
		t.Fatalf("expected --resume to take precedence over --session-id, got %v", args)
	}
}

func TestBuildArgsDefaultsOutputFormat(t *testing.T) {
	args := buildArgs(workflow.InvocationRequest{Prompt: "p"})
	for i, a := range args {
		if a == "--output-format" {
			if args[i+1] != "json" {
				t.Fatalf("expected default output format json, got %q", args[i+1])
			}
			return
		}
	}
	t.Fatal("expected --output-format flag to always be present")
}

func TestParseOutputFallsBackToRawTextOnNonJSON(t *testing.T) {
	if _, ok := parseOutput([]byte("plain text response")); ok {
		t.Fatal("expected non-JSON stdout to report ok=false")
	}
}

func TestParseOutputExtractsKnownFields(t *testing.T) {
	out, ok := parseOutput([]byte(`{"content":"done","cost_usd":0.03,"model":"haiku","session_id":"s1","tokens":{"prompt":10,"completion":20}}`))
	if !ok {
		t.Fatal("expected valid JSON stdout to parse")
	}
	if out.Content != "done" || *out.CostUSD != 0.03 || *out.Model != "haiku" || *out.SessionID != "s1" {
		t.Fatalf("unexpected parsed fields: %+v", out)
	}
	if out.Tokens == nil || *out.Tokens.Prompt != 10 || *out.Tokens.Completion != 20 {
		t.Fatalf("unexpected token fields: %+v", out.Tokens)
	}
}

// writeFakeAgent writes an executable shell script standing in for the
// agent CLI: it ignores every flag passed to it and always emits a fixed
// JSON payload, letting Invoke's parsing path run end to end without a
// real agent binary installed.
func writeFakeAgent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake agent script: %v", err)
	}
	return path
}

func TestInvokeParsesSuccessfulJSONResponse(t *testing.T) {
	bin := writeFakeAgent(t, `echo '{"content":"implemented the feature","cost_usd":0.12,"model":"sonnet","session_id":"sess-9"}'`)
	iv := New(func(project string) string { return "" }, nil)

	resp, err := iv.Invoke(context.Background(), workflow.AgentWriter, workflow.InvocationRequest{
		AgentBinary: bin, Prompt: "implement it", Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "implemented the feature" || resp.CostUSD == nil || *resp.CostUSD != 0.12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", resp.ExitCode)
	}
}

func TestInvokeReturnsErrorOnNonZeroExit(t *testing.T) {
	bin := writeFakeAgent(t, `echo 'boom' 1>&2; exit 1`)
	iv := New(nil, nil)

	_, err := iv.Invoke(context.Background(), workflow.AgentWriter, workflow.InvocationRequest{
		AgentBinary: bin, Prompt: "p",
	})
	if err == nil {
		t.Fatal("expected a non-zero exit to surface an error")
	}
}

func TestInvokeReportsTimeout(t *testing.T) {
	bin := writeFakeAgent(t, `sleep 2`)
	iv := New(nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := iv.Invoke(ctx, workflow.AgentWriter, workflow.InvocationRequest{
		AgentBinary: bin, Prompt: "p",
	})
	if err == nil {
		t.Fatal("expected context deadline to surface an error")
	}
	if !resp.TimedOut {
		t.Fatalf("expected TimedOut=true, got %+v", resp)
	}
}
