package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// GoldenExample holds the schema definition for the GoldenExample entity.
// An input/output pair whose G-Eval overall_score cleared the golden
// threshold, captured as few-shot material for bootstrap optimization.
type GoldenExample struct {
	ent.Schema
}

// Fields of the GoldenExample.
func (GoldenExample) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("example_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.Enum("agent").
			Values("writer", "validator", "reviewer").
			Immutable(),
		field.String("template_name").
			Immutable(),
		field.Text("input_prompt").
			Immutable(),
		field.Text("output").
			Immutable(),
		field.Float("score").
			Immutable(),
		field.String("evaluation_id").
			Optional().
			Nillable().
			Immutable(),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the GoldenExample.
func (GoldenExample) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "agent", "template_name"),
	}
}
