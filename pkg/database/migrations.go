package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These indexes enable efficient full-text search over task prose fields
// that Ent's schema-level indexes don't cover.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	// GIN index for Task.user_story full-text search
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_story_gin
		ON tasks USING gin(to_tsvector('english', user_story))`)
	if err != nil {
		return fmt.Errorf("failed to create user_story GIN index: %w", err)
	}

	// GIN index for AuditEntry.metadata JSONB lookups
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_metadata_gin
		ON audit_entries USING gin(metadata)`)
	if err != nil {
		return fmt.Errorf("failed to create audit metadata GIN index: %w", err)
	}

	return nil
}
