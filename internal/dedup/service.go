// Package dedup keeps the durable ledger of Slack event ids that have
// already been handled, so redelivered events do not create duplicate
// side effects.
package dedup

import (
	"context"
	"log/slog"

	"github.com/fixbothq/fixbot/internal/db"
)

// Service answers "seen?" and "mark seen" against the processed-event
// ledger. Rows are write-once: never updated, never deleted.
type Service struct {
	conn   db.Conn
	logger *slog.Logger
}

// NewService creates a dedup service.
func NewService(log *slog.Logger, conn db.Conn) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conn:   conn,
		logger: log.With(slog.String("service", "dedup")),
	}
}

// HasProcessed reports whether the event id is already in the ledger.
func (s *Service) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_slack_events WHERE event_ts = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed records the event id and returns true when this call
// owns the event. The conditional insert is atomic, so exactly one of
// any set of concurrent callers wins; the rest get false and must
// abort silently.
func (s *Service) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := s.conn.Exec(ctx,
		`INSERT INTO processed_slack_events (event_ts, event_type)
		 VALUES ($1, $2)
		 ON CONFLICT (event_ts) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("event already marked", slog.String("event_ts", eventID))
		return false, nil
	}
	return true, nil
}
