// Package extract turns free-form Slack message text into a structured
// task draft, with an AI-backed extractor and a deterministic fallback.
package extract

import "context"

// Priority classifies task urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// TaskType classifies the kind of work a task represents.
type TaskType string

const (
	TypeBug         TaskType = "bug"
	TypeFeature     TaskType = "feature"
	TypeImprovement TaskType = "improvement"
	TypeTask        TaskType = "task"
	TypeQuestion    TaskType = "question"
)

// CodeContext carries code references pulled out of a message. The
// shape is trusted structurally; the storage schema enforces it
// downstream.
type CodeContext struct {
	FilePaths    []string `json:"filePaths,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	StackTrace   string   `json:"stackTrace,omitempty"`
	CodeSnippet  string   `json:"codeSnippet,omitempty"`
}

// TaskDraft is an extracted-but-unpersisted candidate task.
type TaskDraft struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    Priority     `json:"priority"`
	TaskType    TaskType     `json:"taskType"`
	Confidence  float64      `json:"confidence"`
	CodeContext *CodeContext `json:"codeContext,omitempty"`
}

// Extractor produces a task draft from raw message text. It never
// fails: an implementation that cannot produce a confident structured
// result must return the deterministic fallback's best estimate.
type Extractor interface {
	Extract(ctx context.Context, text, channelContext string) TaskDraft
}

// Generator is the extraction-service capability. Any failure is
// treated by callers as "no usable output".
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func coercePriority(value any) Priority {
	if s, ok := value.(string); ok {
		switch Priority(s) {
		case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
			return Priority(s)
		}
	}
	return PriorityMedium
}

func coerceTaskType(value any) TaskType {
	if s, ok := value.(string); ok {
		switch TaskType(s) {
		case TypeBug, TypeFeature, TypeImprovement, TypeTask, TypeQuestion:
			return TaskType(s)
		}
	}
	return TypeTask
}

func coerceConfidence(value any) float64 {
	if f, ok := value.(float64); ok {
		return f
	}
	return 0.7
}
