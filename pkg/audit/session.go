package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

// SessionRecorder maintains conversation-continuity sessions: at most one
// active session per (task_id, agent); creating a new one implicitly
// closes the previous (spec §4.3 invariant).
type SessionRecorder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSessionRecorder constructs a SessionRecorder bound to a project-scoped Store.
func NewSessionRecorder(s *store.Store, logger *slog.Logger) *SessionRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRecorder{store: s, logger: logger}
}

// CreateSession closes any existing active session for (task_id, agent)
// then opens a fresh one, returning it.
func (r *SessionRecorder) CreateSession(ctx context.Context, taskID, agent string) (*store.Session, error) {
	if existing, err := r.store.FindActiveSession(ctx, taskID, agent); err == nil {
		if _, closeErr := r.store.CloseSession(ctx, existing.ID); closeErr != nil {
			return nil, closeErr
		}
	} else if err != store.ErrNotFound {
		return nil, err
	}

	id := generateSessionID(taskID)
	sess, err := r.store.CreateSession(ctx, id, taskID, agent)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("created session", "session_id", sess.ID, "task_id", taskID, "agent", agent)
	return sess, nil
}

// GetResumeArgs returns ["--resume", id] if a task/agent pair has an
// active session to continue, or nil if this must be a fresh invocation.
func (r *SessionRecorder) GetResumeArgs(ctx context.Context, taskID, agent string) ([]string, error) {
	sess, err := r.store.FindActiveSession(ctx, taskID, agent)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{"--resume", sess.ID}, nil
}

// GetSessionIDArgs forces a known session id for a new invocation,
// creating the session first if one doesn't already exist.
func (r *SessionRecorder) GetSessionIDArgs(ctx context.Context, taskID, agent string) ([]string, error) {
	sess, err := r.store.FindActiveSession(ctx, taskID, agent)
	if err == store.ErrNotFound {
		sess, err = r.CreateSession(ctx, taskID, agent)
	}
	if err != nil {
		return nil, err
	}
	return []string{"--session-id", sess.ID}, nil
}

// TouchSession calls store.TouchSession with a zero cost: updated_at is
// refreshed and invocation_count goes up by one; the cost total is
// unchanged.
func (r *SessionRecorder) TouchSession(ctx context.Context, sessionID string) error {
	_, err := r.store.TouchSession(ctx, sessionID, 0)
	return err
}

// RecordInvocation increments the invocation counter and adds to the
// session's running cost total.
func (r *SessionRecorder) RecordInvocation(ctx context.Context, sessionID string, costUSD float64) error {
	_, err := r.store.TouchSession(ctx, sessionID, costUSD)
	return err
}

// CloseSession closes the active session for (task_id, agent), if any.
// A no-op (not an error) when none is active.
func (r *SessionRecorder) CloseSession(ctx context.Context, taskID, agent string) error {
	sess, err := r.store.FindActiveSession(ctx, taskID, agent)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.store.CloseSession(ctx, sess.ID)
	return err
}

// generateSessionID derives a session id from task_id + current time +
// random entropy, truncated to 12 hex characters, mirroring the
// original's hash(task_id + now + random)[:12].
func generateSessionID(taskID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d-%s", taskID, time.Now().UnixNano(), randomHex12())))
	return hex.EncodeToString(sum[:])[:12]
}
