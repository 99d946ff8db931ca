package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds the schema definition for the Checkpoint entity.
// A restorable snapshot of WorkflowState plus a task-progress summary.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("checkpoint_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.String("name").
			Immutable(),
		field.Text("notes").
			Optional().
			Nillable().
			Immutable(),
		field.Int("phase").
			Immutable(),
		field.JSON("task_progress", map[string]int{}).
			Immutable().
			Comment("Task.status -> count, at snapshot time"),
		field.JSON("state_snapshot", map[string]interface{}{}).
			Immutable().
			Comment("Full WorkflowState, value copy"),
		field.JSON("files_snapshot", []string{}).
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable().
			Comment("Monotonically increasing within a project"),
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "created_at"),
	}
}
