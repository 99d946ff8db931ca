package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// WorkflowState holds the schema definition for the WorkflowState entity.
// Singleton per project: one row per project namespace.
type WorkflowState struct {
	ent.Schema
}

// Fields of the WorkflowState.
func (WorkflowState) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("state_id").
			Unique().
			Immutable(),
		field.String("project").
			Unique().
			Immutable(),
		field.Int("current_phase").
			Default(1).
			Comment("1..5"),
		field.JSON("phase_status", map[string]string{}).
			Comment("phase number (string key) -> pending|in_progress|completed|failed|skipped"),
		field.Int("iteration_count").
			Default(0),
		field.JSON("plan", map[string]interface{}{}).
			Optional(),
		field.Text("validation_feedback").
			Optional().
			Nillable(),
		field.Text("verification_feedback").
			Optional().
			Nillable(),
		field.JSON("implementation_result", map[string]interface{}{}).
			Optional(),
		field.Enum("next_decision").
			Values("continue", "retry", "escalate", "rollback", "abort").
			Optional().
			Nillable(),
		field.Enum("execution_mode").
			Values("afk", "interactive").
			Default("afk"),
		field.Bool("discussion_complete").
			Default(false),
		field.Bool("research_complete").
			Default(false),
		field.Text("research_findings").
			Optional().
			Nillable(),
		field.JSON("token_usage", map[string]interface{}{}).
			Optional(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the WorkflowState.
func (WorkflowState) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project").
			Unique(),
	}
}
