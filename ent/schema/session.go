package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session holds the schema definition for the Session entity.
// Tracks conversation continuity (resume ids) for one (task, agent) pair.
type Session struct {
	ent.Schema
}

// Fields of the Session.
func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_id").
			Unique().
			Immutable().
			Comment("hash(task_id + now + random)[:12]"),
		field.String("project").
			Immutable(),
		field.String("task_id").
			Immutable(),
		field.Enum("agent").
			Values("writer", "validator", "reviewer").
			Immutable(),
		field.Enum("status").
			Values("active", "closed").
			Default("active"),
		field.Int("invocation_count").
			Default(0),
		field.Float("total_cost_usd").
			Default(0),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("closed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the Session.
func (Session) Indexes() []ent.Index {
	return []ent.Index{
		// At most one active session per (task_id, agent) is enforced at
		// the repository layer (a partial unique index on status="active"
		// isn't portably expressible through ent's index builder).
		index.Fields("project", "task_id", "agent"),
		index.Fields("project", "status"),
	}
}
