package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AuditEntry holds the schema definition for the AuditEntry entity.
// One row per external-agent invocation, written by the Audit/Session Recorder.
type AuditEntry struct {
	ent.Schema
}

// Fields of the AuditEntry.
func (AuditEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("audit_id").
			Unique().
			Immutable().
			Comment("audit-<YYYYMMDDHHMMSS>-<agent>-<task_id>"),
		field.String("project").
			Immutable(),
		field.Enum("agent").
			Values("writer", "validator", "reviewer").
			Immutable(),
		field.String("task_id").
			Immutable(),
		field.String("session_id").
			Optional().
			Nillable(),
		field.String("prompt_hash").
			Immutable().
			Comment("16-hex truncation of SHA-256(prompt)"),
		field.Int("prompt_length").
			Immutable(),
		field.JSON("command_args", []string{}).
			Immutable(),
		field.Int("exit_code").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("pending", "success", "failed", "timeout", "error").
			Default("pending"),
		field.Float("duration_seconds").
			Default(0),
		field.Int("output_length").
			Default(0),
		field.Int("error_length").
			Default(0),
		field.String("parsed_output_type").
			Optional().
			Nillable(),
		field.Float("cost_usd").
			Optional().
			Nillable(),
		field.String("model").
			Optional().
			Nillable(),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the AuditEntry.
func (AuditEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "task_id"),
		index.Fields("project", "agent", "status"),
		index.Fields("project", "timestamp"),
	}
}
