package store

import (
	"context"
	"log/slog"

	"github.com/devctrl/orchestrator/pkg/progress"
)

// TaskChangesChannel is the Postgres NOTIFY channel populated by the
// tasks_notify trigger (migration 000002), shared across every project.
const TaskChangesChannel = "task_changes"

// TaskChange is one row mutation delivered to a WatchTasks callback.
type TaskChange struct {
	Op     string // "INSERT", "UPDATE", or "DELETE"
	TaskID string
	Task   *Task // nil when Op == "DELETE"
}

// WatchTasks implements the Store's live-query contract
// (TaskRepository.watch_tasks(callback) in spec §4.1): callback is invoked
// once per task insert/update/delete in this Store's project, for as long
// as the returned subscription is open. dsn must be a pgx-compatible
// connection string distinct from the pooled database/sql DSN, since
// LISTEN needs a dedicated connection (see pkg/progress.Listener).
//
// Deletes carry only the task id (row already gone by the time NOTIFY
// fires) — callers needing full state for those should track it
// themselves before deletion.
func (s *Store) WatchTasks(ctx context.Context, dsn string, logger *slog.Logger, callback func(TaskChange)) (*progress.Subscription, error) {
	l := progress.NewListener(dsn, TaskChangesChannel, logger)
	return l.Listen(ctx, func(n progress.Notification) {
		project, _ := n["project"].(string)
		if project != s.project {
			return
		}
		op, _ := n["op"].(string)
		taskID, _ := n["task_id"].(string)
		if taskID == "" {
			return
		}
		if op == "DELETE" {
			callback(TaskChange{Op: op, TaskID: taskID})
			return
		}
		t, err := s.FindTaskByID(ctx, taskID)
		if err != nil {
			return
		}
		callback(TaskChange{Op: op, TaskID: taskID, Task: t})
	})
}
