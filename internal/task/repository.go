// Package task persists work items and their audit trail.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fixbothq/fixbot/internal/db"
	"github.com/fixbothq/fixbot/internal/extract"
	"github.com/fixbothq/fixbot/internal/workspace"
)

var ErrTaskNotFound = errors.New("task not found")

// SequenceSource allocates per-workspace task numbers.
type SequenceSource interface {
	Next(ctx context.Context, workspaceID, counterType string) (int64, error)
}

// Repository writes tasks, task messages, and activity entries. It is
// one of several writers to the shared task store; reads for the board
// boundary live here too.
type Repository struct {
	conn     db.Conn
	sequence SequenceSource
	logger   *slog.Logger
}

// NewRepository creates a task repository.
func NewRepository(log *slog.Logger, conn db.Conn, sequence SequenceSource) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{
		conn:     conn,
		sequence: sequence,
		logger:   log.With(slog.String("service", "task")),
	}
}

const taskColumns = `id, workspace_id, repository_id, task_number, display_id, title, description,
	status, priority, task_type, source_channel_id, source_channel_name, source_message_ts,
	source_thread_ts, code_context, ai_extraction, labels, assignee_id, created_by_id, created_at, updated_at, completed_at`

// Create allocates a sequence number, inserts the task in backlog, and
// appends a "created" activity entry. A failed activity write after a
// successful insert is logged and tolerated: the task exists, the
// audit trail has a gap, and nothing retries it.
func (r *Repository) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	pgWorkspaceID, err := db.ParseUUID(input.WorkspaceID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("invalid workspace id: %w", err)
	}

	number, err := r.sequence.Next(ctx, input.WorkspaceID, workspace.CounterTypeTaskNumber)
	if err != nil {
		return CreateResult{}, fmt.Errorf("allocate task number: %w", err)
	}

	var slug string
	if err := r.conn.QueryRow(ctx,
		`SELECT slug FROM workspaces WHERE id = $1`, pgWorkspaceID,
	).Scan(&slug); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return CreateResult{}, fmt.Errorf("workspace slug: %w", err)
	}
	displayID := fmt.Sprintf("%s-%d", displayPrefix(slug), number)

	createdBy := r.resolveSlackUser(ctx, input.SlackUserID)

	var pgRepositoryID pgtype.UUID
	if strings.TrimSpace(input.RepositoryID) != "" {
		pgRepositoryID, err = db.ParseUUID(input.RepositoryID)
		if err != nil {
			return CreateResult{}, fmt.Errorf("invalid repository id: %w", err)
		}
	}

	codeContext, err := marshalNullable(input.Draft.CodeContext)
	if err != nil {
		return CreateResult{}, fmt.Errorf("marshal code context: %w", err)
	}
	extraction, err := marshalNullable(input.Extraction)
	if err != nil {
		return CreateResult{}, fmt.Errorf("marshal extraction metadata: %w", err)
	}

	var taskID pgtype.UUID
	err = r.conn.QueryRow(ctx,
		`INSERT INTO tasks (workspace_id, repository_id, task_number, display_id, title, description,
			status, priority, task_type, source_channel_id, source_channel_name,
			source_message_ts, source_thread_ts, code_context, ai_extraction, created_by_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id`,
		pgWorkspaceID, pgRepositoryID, number, displayID,
		input.Draft.Title, db.ToPgText(input.Draft.Description),
		string(StatusBacklog), string(input.Draft.Priority), string(input.Draft.TaskType),
		input.SlackChannelID, input.SlackChannelName, input.SlackMessageTS, input.SlackThreadTS,
		codeContext, extraction, createdBy,
	).Scan(&taskID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("insert task: %w", err)
	}

	if err := r.appendActivity(ctx, taskID, createdBy, ActivityCreated, nil,
		map[string]any{"source": SourceSlack}); err != nil {
		r.logger.Warn("created-activity write failed",
			slog.String("task_id", taskID.String()), slog.Any("error", err))
	}

	return CreateResult{TaskID: taskID.String(), DisplayID: displayID}, nil
}

// AddMessage appends a conversation message linked to a task. The
// submitter is resolved best-effort; no match just leaves the author
// unset.
func (r *Repository) AddMessage(ctx context.Context, input AddMessageInput) error {
	pgTaskID, err := db.ParseUUID(input.TaskID)
	if err != nil {
		return fmt.Errorf("invalid task id: %w", err)
	}
	author := r.resolveSlackUser(ctx, input.SlackUserID)
	_, err = r.conn.Exec(ctx,
		`INSERT INTO task_messages (task_id, author_id, content, slack_message_ts)
		 VALUES ($1, $2, $3, $4)`,
		pgTaskID, author, input.Content, input.SlackMessageTS,
	)
	if err != nil {
		return fmt.Errorf("insert task message: %w", err)
	}
	return nil
}

// UpdateStatus patches a task found by its human-readable display id.
// An unknown display id is a silent no-op: the external caller only
// knows display ids and may well typo one. completed_at is set exactly
// when the new status is done and left untouched otherwise.
func (r *Repository) UpdateStatus(ctx context.Context, workspaceID, displayID string, newStatus Status, slackUserID string) error {
	pgWorkspaceID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}

	var (
		taskID    pgtype.UUID
		oldStatus string
	)
	err = r.conn.QueryRow(ctx,
		`SELECT id, status FROM tasks WHERE workspace_id = $1 AND display_id = $2`,
		pgWorkspaceID, strings.TrimSpace(displayID),
	).Scan(&taskID, &oldStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("status update for unknown display id",
				slog.String("display_id", displayID))
			return nil
		}
		return err
	}

	_, err = r.conn.Exec(ctx,
		`UPDATE tasks
		 SET status = $2, updated_at = now(),
		     completed_at = CASE WHEN $2 = 'done' THEN now() ELSE completed_at END
		 WHERE id = $1`,
		taskID, string(newStatus),
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	changes := map[string]any{
		"field":    "status",
		"oldValue": oldStatus,
		"newValue": string(newStatus),
	}
	actor := r.resolveSlackUser(ctx, slackUserID)
	if err := r.appendActivity(ctx, taskID, actor, ActivityStatusChanged, changes, nil); err != nil {
		r.logger.Warn("status-activity write failed",
			slog.String("task_id", taskID.String()), slog.Any("error", err))
	}
	return nil
}

// Assign sets a task's assignee, found by display id. Unknown display
// ids no-op like UpdateStatus does. The assignee user is provisioned on
// first sight so assignment works before anyone has touched the board.
func (r *Repository) Assign(ctx context.Context, workspaceID, displayID, assigneeSlackUserID, actorSlackUserID string) error {
	pgWorkspaceID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}

	var (
		taskID      pgtype.UUID
		oldAssignee pgtype.UUID
	)
	err = r.conn.QueryRow(ctx,
		`SELECT id, assignee_id FROM tasks WHERE workspace_id = $1 AND display_id = $2`,
		pgWorkspaceID, strings.TrimSpace(displayID),
	).Scan(&taskID, &oldAssignee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("assignment for unknown display id",
				slog.String("display_id", displayID))
			return nil
		}
		return err
	}

	assignee, err := r.ensureSlackUser(ctx, assigneeSlackUserID)
	if err != nil {
		return fmt.Errorf("ensure assignee: %w", err)
	}

	_, err = r.conn.Exec(ctx,
		`UPDATE tasks SET assignee_id = $2, updated_at = now() WHERE id = $1`,
		taskID, assignee,
	)
	if err != nil {
		return fmt.Errorf("update task assignee: %w", err)
	}

	changes := map[string]any{
		"field":    "assignee",
		"oldValue": uuidOrNil(oldAssignee),
		"newValue": assignee.String(),
	}
	actor := r.resolveSlackUser(ctx, actorSlackUserID)
	if err := r.appendActivity(ctx, taskID, actor, ActivityAssigned, changes, nil); err != nil {
		r.logger.Warn("assigned-activity write failed",
			slog.String("task_id", taskID.String()), slog.Any("error", err))
	}
	return nil
}

// GetBySlackThread finds the task whose recorded source matches the
// given channel and thread timestamp.
func (r *Repository) GetBySlackThread(ctx context.Context, workspaceID, slackChannelID, slackThreadTS string) (Task, error) {
	pgWorkspaceID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return Task{}, fmt.Errorf("invalid workspace id: %w", err)
	}
	row := r.conn.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE workspace_id = $1 AND source_channel_id = $2 AND source_thread_ts = $3
		 LIMIT 1`,
		pgWorkspaceID, slackChannelID, slackThreadTS,
	)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	return t, nil
}

// ListByWorkspace returns all tasks of a workspace, oldest first. The
// board handler groups them by status column.
func (r *Repository) ListByWorkspace(ctx context.Context, workspaceID string) ([]Task, error) {
	pgWorkspaceID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace id: %w", err)
	}
	rows, err := r.conn.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE workspace_id = $1 ORDER BY created_at`,
		pgWorkspaceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountByPriority returns aggregate open-task counts per priority.
func (r *Repository) CountByPriority(ctx context.Context, workspaceID string) (map[string]int64, error) {
	pgWorkspaceID, err := db.ParseUUID(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace id: %w", err)
	}
	rows, err := r.conn.Query(ctx,
		`SELECT priority, count(*) FROM tasks
		 WHERE workspace_id = $1 AND status <> 'done'
		 GROUP BY priority`,
		pgWorkspaceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var (
			priority string
			count    int64
		)
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		counts[priority] = count
	}
	return counts, rows.Err()
}

func (r *Repository) appendActivity(ctx context.Context, taskID, userID pgtype.UUID, activityType string, changes, metadata map[string]any) error {
	changesJSON, err := marshalNullable(changes)
	if err != nil {
		return err
	}
	metadataJSON, err := marshalNullable(metadata)
	if err != nil {
		return err
	}
	_, err = r.conn.Exec(ctx,
		`INSERT INTO task_activity (task_id, user_id, activity_type, changes, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		taskID, userID, activityType, changesJSON, metadataJSON,
	)
	return err
}

// ensureSlackUser resolves a Slack user id to an internal user,
// creating the user row on first sight. The upsert keeps concurrent
// first-sight assignments from racing on the unique slack_user_id.
func (r *Repository) ensureSlackUser(ctx context.Context, slackUserID string) (pgtype.UUID, error) {
	slackUserID = strings.TrimSpace(slackUserID)
	if slackUserID == "" {
		return pgtype.UUID{}, fmt.Errorf("slack user id is required")
	}
	var id pgtype.UUID
	err := r.conn.QueryRow(ctx,
		`INSERT INTO users (slack_user_id)
		 VALUES ($1)
		 ON CONFLICT (slack_user_id) DO UPDATE SET slack_user_id = EXCLUDED.slack_user_id
		 RETURNING id`,
		slackUserID,
	).Scan(&id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return id, nil
}

func uuidOrNil(id pgtype.UUID) any {
	if !id.Valid {
		return nil
	}
	return id.String()
}

// resolveSlackUser maps a Slack user id to an internal user,
// best-effort. No match is normal and yields a NULL reference.
func (r *Repository) resolveSlackUser(ctx context.Context, slackUserID string) pgtype.UUID {
	slackUserID = strings.TrimSpace(slackUserID)
	if slackUserID == "" {
		return pgtype.UUID{}
	}
	var id pgtype.UUID
	err := r.conn.QueryRow(ctx,
		`SELECT id FROM users WHERE slack_user_id = $1`, slackUserID,
	).Scan(&id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("slack user lookup failed",
				slog.String("slack_user_id", slackUserID), slog.Any("error", err))
		}
		return pgtype.UUID{}
	}
	return id
}

func displayPrefix(slug string) string {
	slug = strings.ToUpper(strings.TrimSpace(slug))
	if slug == "" {
		return "TSK"
	}
	if len(slug) > 3 {
		slug = slug[:3]
	}
	return slug
}

func marshalNullable(v any) ([]byte, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case *extract.CodeContext:
		if value == nil {
			return nil, nil
		}
	case *ExtractionMetadata:
		if value == nil {
			return nil, nil
		}
	case map[string]any:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		id           pgtype.UUID
		workspaceID  pgtype.UUID
		repositoryID pgtype.UUID
		description  pgtype.Text
		status       string
		priority     string
		taskType     string
		codeContext  []byte
		extraction   []byte
		assignee     pgtype.UUID
		createdBy    pgtype.UUID
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
		t            Task
	)
	err := row.Scan(&id, &workspaceID, &repositoryID, &t.TaskNumber, &t.DisplayID,
		&t.Title, &description, &status, &priority, &taskType,
		&t.SourceChannelID, &t.SourceChannelName, &t.SourceMessageTS, &t.SourceThreadTS,
		&codeContext, &extraction, &t.Labels, &assignee, &createdBy, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return Task{}, err
	}
	t.ID = id.String()
	t.WorkspaceID = workspaceID.String()
	if repositoryID.Valid {
		t.RepositoryID = repositoryID.String()
	}
	t.Description = db.TextToString(description)
	t.Status = Status(status)
	t.Priority = extract.Priority(priority)
	t.TaskType = extract.TaskType(taskType)
	if assignee.Valid {
		t.AssigneeID = assignee.String()
	}
	if createdBy.Valid {
		t.CreatedByID = createdBy.String()
	}
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	if len(codeContext) > 0 {
		var cc extract.CodeContext
		if err := json.Unmarshal(codeContext, &cc); err == nil {
			t.CodeContext = &cc
		}
	}
	if len(extraction) > 0 {
		var meta ExtractionMetadata
		if err := json.Unmarshal(extraction, &meta); err == nil {
			t.Extraction = &meta
		}
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	return t, nil
}
