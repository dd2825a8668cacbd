package task

import (
	"time"

	"github.com/fixbothq/fixbot/internal/extract"
)

// Status is a task's board column. Transitions may move in either
// direction; validity is a board concern, not an ingestion one.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	}
	return false
}

// Activity types recorded in the audit trail.
const (
	ActivityCreated       = "created"
	ActivityStatusChanged = "status_changed"
	ActivityAssigned      = "assigned"
)

// SourceSlack marks tasks created through this pipeline.
const SourceSlack = "slack"

// Task is a persisted work item.
type Task struct {
	ID                string                `json:"id"`
	WorkspaceID       string                `json:"workspace_id"`
	RepositoryID      string                `json:"repository_id,omitempty"`
	TaskNumber        int64                 `json:"task_number"`
	DisplayID         string                `json:"display_id"`
	Title             string                `json:"title"`
	Description       string                `json:"description,omitempty"`
	Status            Status                `json:"status"`
	Priority          extract.Priority      `json:"priority"`
	TaskType          extract.TaskType      `json:"task_type"`
	SourceChannelID   string                `json:"source_channel_id,omitempty"`
	SourceChannelName string                `json:"source_channel_name,omitempty"`
	SourceMessageTS   string                `json:"source_message_ts,omitempty"`
	SourceThreadTS    string                `json:"source_thread_ts,omitempty"`
	CodeContext       *extract.CodeContext  `json:"code_context,omitempty"`
	Extraction        *ExtractionMetadata   `json:"ai_extraction,omitempty"`
	Labels            []string              `json:"labels"`
	AssigneeID        string                `json:"assignee_id,omitempty"`
	CreatedByID       string                `json:"created_by_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
}

// ExtractionMetadata records how a draft was produced.
type ExtractionMetadata struct {
	ExtractedAt  time.Time `json:"extractedAt"`
	Model        string    `json:"model"`
	Confidence   float64   `json:"confidence"`
	OriginalText string    `json:"originalText"`
}

// CreateInput is everything needed to persist a new task from a draft.
type CreateInput struct {
	WorkspaceID      string
	RepositoryID     string
	Draft            extract.TaskDraft
	SlackChannelID   string
	SlackChannelName string
	SlackMessageTS   string
	SlackThreadTS    string
	SlackUserID      string
	Extraction       *ExtractionMetadata
}

// CreateResult identifies the persisted task.
type CreateResult struct {
	TaskID    string `json:"task_id"`
	DisplayID string `json:"display_id"`
}

// AddMessageInput appends a conversation message to an existing task.
type AddMessageInput struct {
	TaskID         string
	Content        string
	SlackUserID    string
	SlackMessageTS string
}
