package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Task holds the schema definition for the Task entity.
// A single unit of work inside a project's Implementation phase.
type Task struct {
	ent.Schema
}

// Fields of the Task.
func (Task) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("task_id").
			Unique().
			Immutable().
			Comment("Unique within the project namespace"),
		field.String("project").
			Immutable().
			Comment("Project namespace this task belongs to"),
		field.String("title"),
		field.Text("user_story"),
		field.JSON("acceptance_criteria", []string{}).
			Comment("Ordered list of acceptance criteria"),
		field.JSON("dependencies", []string{}).
			Comment("Task ids this task depends on"),
		field.Enum("status").
			Values("pending", "in_progress", "completed", "failed", "blocked", "skipped").
			Default("pending"),
		field.Int("priority").
			Default(0),
		field.String("milestone_id").
			Optional().
			Nillable(),
		field.JSON("files_to_create", []string{}),
		field.JSON("files_to_modify", []string{}),
		field.JSON("test_files", []string{}),
		field.Int("attempts").
			Default(0).
			Comment("Invariant: attempts <= max_attempts"),
		field.Int("max_attempts").
			Default(3),
		field.Text("error").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the Task.
func (Task) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "id").
			Unique(),
		index.Fields("project", "status"),
		index.Fields("project", "priority"),
	}
}
