package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OptimizationAttempt holds the schema definition for the OptimizationAttempt
// entity. One row per call to the Optimizer, whether or not it produced a
// deployable PromptVersion.
type OptimizationAttempt struct {
	ent.Schema
}

// Fields of the OptimizationAttempt.
func (OptimizationAttempt) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("optimization_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.Enum("agent").
			Values("writer", "validator", "reviewer").
			Immutable(),
		field.String("template_name").
			Immutable(),
		field.Enum("method").
			Values("opro", "bootstrap").
			Immutable(),
		field.String("source_version").
			Optional().
			Nillable().
			Immutable(),
		field.String("target_version").
			Optional().
			Nillable().
			Immutable(),
		field.Bool("success").
			Immutable(),
		field.Float("source_score").
			Optional().
			Nillable().
			Immutable(),
		field.Float("target_score").
			Optional().
			Nillable().
			Immutable(),
		field.Float("improvement").
			Optional().
			Nillable().
			Immutable().
			Comment("target_score - source_score"),
		field.Int("samples_used").
			Immutable(),
		field.JSON("validation_results", map[string]interface{}{}).
			Optional(),
		field.Text("error").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the OptimizationAttempt.
func (OptimizationAttempt) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "agent", "template_name"),
		index.Fields("project", "created_at"),
	}
}
