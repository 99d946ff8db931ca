package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/auditentry"
)

// AuditEntry is the store-layer view of an AuditEntry row.
type AuditEntry struct {
	ID                string
	Project           string
	Agent             string
	TaskID            string
	SessionID         *string
	PromptHash        string
	PromptLength      int
	CommandArgs       []string
	ExitCode          *int
	Status            string
	DurationSeconds   float64
	OutputLength      int
	ErrorLength       int
	ParsedOutputType  *string
	CostUSD           *float64
	Model             *string
	Metadata          map[string]interface{}
	Timestamp         time.Time
}

func fromEntAudit(a *ent.AuditEntry) *AuditEntry {
	return &AuditEntry{
		ID:               a.ID,
		Project:          a.Project,
		Agent:            string(a.Agent),
		TaskID:           a.TaskID,
		SessionID:        a.SessionID,
		PromptHash:       a.PromptHash,
		PromptLength:     a.PromptLength,
		CommandArgs:      a.CommandArgs,
		ExitCode:         a.ExitCode,
		Status:           string(a.Status),
		DurationSeconds:  a.DurationSeconds,
		OutputLength:     a.OutputLength,
		ErrorLength:      a.ErrorLength,
		ParsedOutputType: a.ParsedOutputType,
		CostUSD:          a.CostUsd,
		Model:            a.Model,
		Metadata:         a.Metadata,
		Timestamp:        a.Timestamp,
	}
}

// CreatePendingAuditEntry inserts the pending AuditEntry created on
// Recorder.record() entry (spec §4.3).
func (s *Store) CreatePendingAuditEntry(ctx context.Context, e *AuditEntry) (*AuditEntry, error) {
	created, err := s.client.AuditEntry.Create().
		SetID(e.ID).
		SetProject(s.project).
		SetAgent(auditentry.Agent(e.Agent)).
		SetTaskID(e.TaskID).
		SetNillableSessionID(e.SessionID).
		SetPromptHash(e.PromptHash).
		SetPromptLength(e.PromptLength).
		SetCommandArgs(e.CommandArgs).
		Save(ctx)
	if err != nil {
		return nil, wrapErr("create audit entry", err)
	}
	return fromEntAudit(created), nil
}

// AuditEntryResult carries the terminal fields committed on scope exit.
type AuditEntryResult struct {
	Status           string
	ExitCode         *int
	DurationSeconds  float64
	OutputLength     int
	ErrorLength      int
	ParsedOutputType *string
	CostUSD          *float64
	Model            *string
	Metadata         map[string]interface{}
}

// CommitAuditEntry writes the terminal status/metrics for an in-flight
// AuditEntry. Per spec §3's invariant, this happens exactly once per
// entry — callers (pkg/audit) enforce that by only ever calling it from
// the scope-exit path.
func (s *Store) CommitAuditEntry(ctx context.Context, id string, r AuditEntryResult) (*AuditEntry, error) {
	q := s.client.AuditEntry.UpdateOneID(id).
		Where(auditentry.Project(s.project)).
		SetStatus(auditentry.Status(r.Status)).
		SetDurationSeconds(r.DurationSeconds).
		SetOutputLength(r.OutputLength).
		SetErrorLength(r.ErrorLength)
	if r.ExitCode != nil {
		q = q.SetExitCode(*r.ExitCode)
	}
	if r.ParsedOutputType != nil {
		q = q.SetParsedOutputType(*r.ParsedOutputType)
	}
	if r.CostUSD != nil {
		q = q.SetCostUsd(*r.CostUSD)
	}
	if r.Model != nil {
		q = q.SetModel(*r.Model)
	}
	if r.Metadata != nil {
		q = q.SetMetadata(r.Metadata)
	}
	updated, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("commit audit entry", err)
	}
	return fromEntAudit(updated), nil
}

// FindAuditByTask returns every AuditEntry for a task, newest first.
func (s *Store) FindAuditByTask(ctx context.Context, taskID string) ([]*AuditEntry, error) {
	rows, err := s.client.AuditEntry.Query().
		Where(auditentry.Project(s.project), auditentry.TaskID(taskID)).
		Order(ent.Desc(auditentry.FieldTimestamp)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("find audit by task", err)
	}
	out := make([]*AuditEntry, len(rows))
	for i, r := range rows {
		out[i] = fromEntAudit(r)
	}
	return out, nil
}
