package workspace

import (
	"context"
	"log/slog"

	"github.com/fixbothq/fixbot/internal/db"
)

// SequenceAllocator hands out per-workspace monotonic counters used to
// build human-readable display ids.
type SequenceAllocator struct {
	conn   db.Conn
	logger *slog.Logger
}

// NewSequenceAllocator creates a sequence allocator.
func NewSequenceAllocator(log *slog.Logger, conn db.Conn) *SequenceAllocator {
	if log == nil {
		log = slog.Default()
	}
	return &SequenceAllocator{
		conn:   conn,
		logger: log.With(slog.String("service", "sequence")),
	}
}

// Next returns the next value for (workspace, counterType), starting
// at 1 for a fresh counter. The upsert increments and reads in one
// statement, so concurrent allocations in the same workspace never
// hand out the same number.
func (a *SequenceAllocator) Next(ctx context.Context, workspaceID, counterType string) (int64, error) {
	pgWorkspaceID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return 0, err
	}
	var value int64
	err = a.conn.QueryRow(ctx,
		`INSERT INTO workspace_counters (workspace_id, counter_type, current_value)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (workspace_id, counter_type)
		 DO UPDATE SET current_value = workspace_counters.current_value + 1
		 RETURNING current_value`,
		pgWorkspaceID, counterType,
	).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}
