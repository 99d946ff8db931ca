package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// Listener subscribes to a single Postgres NOTIFY channel using a
// dedicated connection (NOTIFY/LISTEN requires a long-lived connection,
// which database/sql's pooled interface doesn't expose). One Listener
// per channel; callers create one per project (or one for the shared
// "task_changes" channel backing the Store's watch_tasks contract).
type Listener struct {
	dsn     string
	channel string
	logger  *slog.Logger
}

// NewListener returns a Listener for the given channel. dsn must be a
// pgx-compatible connection string (see pkg/database.Config).
func NewListener(dsn, channel string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{dsn: dsn, channel: channel, logger: logger}
}

// Notification is one payload received on the channel, already
// unmarshaled from JSON into a generic map. Callers that know the shape
// (e.g. progress events vs. task-change events) re-marshal/unmarshal as
// needed; this keeps Listener generic over both uses.
type Notification map[string]interface{}

// Subscription is returned by Listen; closing it stops the background
// goroutine and releases the connection.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Listen opens a dedicated connection, issues LISTEN <channel>, and
// invokes handler for every notification received until ctx is
// cancelled or Subscription.Close is called. Connection errors are
// logged and the listen loop exits; callers that need resilience should
// re-invoke Listen (e.g. from a supervising goroutine with backoff).
func (l *Listener) Listen(ctx context.Context, handler func(Notification)) (*Subscription, error) {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "LISTEN \""+l.channel+"\""); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer conn.Close(context.Background())
		for {
			notif, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				l.logger.Warn("progress: listener error, stopping", "channel", l.channel, "error", err)
				return
			}
			var payload Notification
			if err := json.Unmarshal([]byte(notif.Payload), &payload); err != nil {
				// Non-JSON payloads (shouldn't happen given our
				// publishers) are delivered as a single "raw" key.
				payload = Notification{"raw": notif.Payload}
			}
			handler(payload)
		}
	}()

	return &Subscription{cancel: cancel, done: done}, nil
}
