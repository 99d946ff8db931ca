package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// BudgetRecord holds the schema definition for the BudgetRecord entity.
// Append-mostly ledger of spend; soft-deletes insert a compensating
// negative record rather than deleting history.
type BudgetRecord struct {
	ent.Schema
}

// Fields of the BudgetRecord.
func (BudgetRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("record_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.String("task_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("agent").
			Immutable().
			Comment("writer|validator|reviewer|system_reset"),
		field.Float("cost_usd").
			Immutable().
			Comment("May be negative for reset records"),
		field.Int("tokens_input").
			Optional().
			Nillable().
			Immutable(),
		field.Int("tokens_output").
			Optional().
			Nillable().
			Immutable(),
		field.String("model").
			Optional().
			Nillable().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the BudgetRecord.
func (BudgetRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "task_id"),
		index.Fields("project", "agent"),
		index.Fields("project", "created_at"),
	}
}
