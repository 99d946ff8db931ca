package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Evaluation holds the schema definition for the Evaluation entity.
// A G-Eval (LLM-as-judge) score for a single (prompt, output) pair.
type Evaluation struct {
	ent.Schema
}

// Fields of the Evaluation.
func (Evaluation) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("evaluation_id").
			Unique().
			Immutable().
			Comment("eval-<agent>-<ts>-<hash-prefix>"),
		field.String("project").
			Immutable(),
		field.Enum("agent").
			Values("writer", "validator", "reviewer").
			Immutable(),
		field.String("node").
			Immutable(),
		field.String("task_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("session_id").
			Optional().
			Nillable().
			Immutable(),
		field.JSON("scores", map[string]float64{}).
			Immutable().
			Comment("criterion -> score 1..10"),
		field.Float("overall_score").
			Immutable(),
		field.Text("feedback").
			Immutable(),
		field.JSON("suggestions", []string{}).
			Immutable(),
		field.String("prompt_hash").
			Immutable(),
		field.String("prompt_version").
			Optional().
			Nillable().
			Immutable(),
		field.String("evaluator_model").
			Immutable(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
	}
}

// Indexes of the Evaluation.
func (Evaluation) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "agent", "node"),
		index.Fields("project", "prompt_version"),
		index.Fields("project", "timestamp"),
	}
}
