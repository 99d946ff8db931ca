// Package audit implements the Audit/Session Recorder component (C3):
// scoped recording of every external-agent invocation (start, duration,
// cost, terminal status) and per-task conversation-continuity sessions.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/devctrl/orchestrator/pkg/prompthash"
	"github.com/devctrl/orchestrator/pkg/store"
)

// Recorder wraps every external-agent invocation in a scoped AuditEntry:
// pending on entry, committed with a terminal status on exit. The scope
// guarantees release on all exit paths via Record's deferred commit.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRecorder constructs a Recorder bound to a project-scoped Store.
func NewRecorder(s *store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger}
}

// RecordParams are the entry-time fields of an invocation.
type RecordParams struct {
	Agent       string
	TaskID      string
	Prompt      string
	SessionID   *string
	CommandArgs []string
}

// Scope is the in-flight handle returned by Record; exactly one of
// SetResult, SetTimeout, or SetError should be called before the scope
// closes. Calling none leaves the entry committed as a bare success with
// zero-length output, matching a no-op invocation.
type Scope struct {
	recorder *Recorder
	entryID  string
	start    time.Time
	result   store.AuditEntryResult
	set      bool
}

// SetResult records a completed invocation's terminal fields.
func (s *Scope) SetResult(success bool, exitCode *int, outputLength, errorLength int, costUSD *float64, model, parsedOutputType *string) {
	status := "success"
	if !success {
		status = "failed"
	}
	s.result = store.AuditEntryResult{
		Status: status, ExitCode: exitCode, OutputLength: outputLength,
		ErrorLength: errorLength, CostUSD: costUSD, Model: model, ParsedOutputType: parsedOutputType,
	}
	s.set = true
}

// SetTimeout marks the invocation as having exceeded its deadline.
func (s *Scope) SetTimeout(seconds float64) {
	s.result = store.AuditEntryResult{Status: "timeout", Metadata: map[string]interface{}{"timeout_seconds": seconds}}
	s.set = true
}

// SetError marks the invocation as having failed with an exception.
func (s *Scope) SetError(message string) {
	s.result = store.AuditEntryResult{Status: "error", Metadata: map[string]interface{}{"error": message}}
	s.set = true
}

// Close commits the scope with its final duration. Safe to call via
// defer; each call commits the current result again, and Do calls it
// exactly once on each path.
func (s *Scope) Close(ctx context.Context) error {
	s.result.DurationSeconds = time.Since(s.start).Seconds()
	if !s.set {
		s.result.Status = "success"
	}
	_, err := s.recorder.store.CommitAuditEntry(ctx, s.entryID, s.result)
	return err
}

// Record creates a pending AuditEntry and returns its Scope. Callers must
// arrange to call Scope.Close exactly once (typically via defer) on every
// exit path, including panics recovered upstream — see Do for a wrapper
// that handles this automatically.
func (r *Recorder) Record(ctx context.Context, p RecordParams) (*Scope, error) {
	id := generateAuditID(p.Agent, p.TaskID)
	hash := prompthash.Compute(p.Prompt)
	commandArgs := p.CommandArgs
	if commandArgs == nil {
		commandArgs = []string{}
	}
	_, err := r.store.CreatePendingAuditEntry(ctx, &store.AuditEntry{
		ID: id, Agent: p.Agent, TaskID: p.TaskID, SessionID: p.SessionID,
		PromptHash: hash, PromptLength: len(p.Prompt), CommandArgs: commandArgs,
	})
	if err != nil {
		return nil, err
	}
	return &Scope{recorder: r, entryID: id, start: time.Now()}, nil
}

// Do wraps fn in a Record/Close scope, mirroring the original's
// `with Recorder.record(...) as ctx:` contract: fn receives the open
// Scope to call SetResult/SetTimeout/SetError on, and Close always runs
// before Do returns. If fn panics, the scope is committed as status=error
// with the panic value in metadata and the panic is re-raised.
func (r *Recorder) Do(ctx context.Context, p RecordParams, fn func(ctx context.Context, scope *Scope) error) error {
	scope, err := r.Record(ctx, p)
	if err != nil {
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			scope.SetError(fmt.Sprintf("panic: %v", rec))
			_ = scope.Close(ctx)
			panic(rec)
		}
	}()

	fnErr := fn(ctx, scope)
	if fnErr != nil && !scope.set {
		scope.SetError(fnErr.Error())
	}
	if closeErr := scope.Close(ctx); closeErr != nil {
		r.logger.Error("failed to commit audit entry", "entry_id", scope.entryID, "error", closeErr)
		if fnErr == nil {
			return closeErr
		}
	}
	return fnErr
}

// generateAuditID builds the "audit-<YYYYMMDDHHMMSS>-<agent>-<task_id>"
// identifier format from spec §4.3.
func generateAuditID(agent, taskID string) string {
	return fmt.Sprintf("audit-%s-%s-%s", time.Now().Format("20060102150405"), agent, taskID)
}

// randomHex12 generates the 12 hex characters used as session id entropy
// alongside task_id+timestamp, standing in for the original's
// hash(task_id + now + random)[:12].
func randomHex12() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
