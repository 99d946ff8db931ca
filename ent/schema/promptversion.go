package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PromptVersion holds the schema definition for the PromptVersion entity.
// A single version of a (agent, template_name) prompt moving through the
// draft -> shadow -> canary -> production -> retired deployment lifecycle.
type PromptVersion struct {
	ent.Schema
}

// Fields of the PromptVersion.
func (PromptVersion) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("version_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.Enum("agent").
			Values("writer", "validator", "reviewer").
			Immutable(),
		field.String("template_name").
			Immutable(),
		field.Text("content").
			Immutable().
			Comment(">= 100 chars, opaque to the core"),
		field.Int("version").
			Immutable().
			Comment("Monotonic per (agent, template_name)"),
		field.String("parent_version").
			Optional().
			Nillable().
			Immutable(),
		field.Enum("optimization_method").
			Values("manual", "opro", "bootstrap", "instruction").
			Immutable(),
		field.Enum("status").
			Values("draft", "shadow", "canary", "production", "retired").
			Default("draft"),
		field.JSON("metrics", map[string]interface{}{}).
			Optional(),
	}
}

// Indexes of the PromptVersion.
func (PromptVersion) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "agent", "template_name", "version").
			Unique(),
		index.Fields("project", "agent", "template_name", "status"),
	}
}
