// Package bot drives the per-event control flow: dedup gate, tenant
// resolution, extraction, persistence, and reply dispatch.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fixbothq/fixbot/internal/extract"
	"github.com/fixbothq/fixbot/internal/slack"
	"github.com/fixbothq/fixbot/internal/task"
	"github.com/fixbothq/fixbot/internal/workspace"
)

// Deduplicator is the processed-event ledger gate.
type Deduplicator interface {
	HasProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// TenantResolver maps Slack identifiers to workspace context.
type TenantResolver interface {
	ResolveWorkspace(ctx context.Context, slackTeamID string) (workspace.Workspace, error)
	ResolveChannel(ctx context.Context, slackChannelID string) (*workspace.ChannelMapping, error)
}

// TaskStore is the slice of the task repository the orchestrator uses.
type TaskStore interface {
	Create(ctx context.Context, input task.CreateInput) (task.CreateResult, error)
	AddMessage(ctx context.Context, input task.AddMessageInput) error
	UpdateStatus(ctx context.Context, workspaceID, displayID string, newStatus task.Status, slackUserID string) error
	Assign(ctx context.Context, workspaceID, displayID, assigneeSlackUserID, actorSlackUserID string) error
	GetBySlackThread(ctx context.Context, workspaceID, slackChannelID, slackThreadTS string) (task.Task, error)
	CountByPriority(ctx context.Context, workspaceID string) (map[string]int64, error)
}

// Sender dispatches outbound replies.
type Sender interface {
	SendMessage(ctx context.Context, input slack.SendMessageInput) error
}

// Orchestrator handles one inbound event at a time; events are
// independent units of work and may run concurrently with each other.
// All collaborators are injected so tests can substitute fakes.
type Orchestrator struct {
	dedup     Deduplicator
	tenants   TenantResolver
	tasks     TaskStore
	extractor extract.Extractor
	sender    Sender
	model     string
	logger    *slog.Logger
}

// NewOrchestrator wires the pipeline's collaborators together. model
// is recorded in extraction metadata on created tasks.
func NewOrchestrator(log *slog.Logger, dedup Deduplicator, tenants TenantResolver, tasks TaskStore, extractor extract.Extractor, sender Sender, model string) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		dedup:     dedup,
		tenants:   tenants,
		tasks:     tasks,
		extractor: extractor,
		sender:    sender,
		model:     model,
		logger:    log.With(slog.String("component", "orchestrator")),
	}
}

// HandleMention runs the full pipeline for an app-mention event.
// Dedup-check happens before dedup-mark happens before any side
// effect; a lost mark race aborts silently.
func (o *Orchestrator) HandleMention(ctx context.Context, event Event) error {
	processed, err := o.dedup.HasProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if processed {
		o.logger.Debug("event already processed, skipping", slog.String("event_ts", event.EventID))
		return nil
	}
	owned, err := o.dedup.MarkProcessed(ctx, event.EventID, EventTypeMention)
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	if !owned {
		o.logger.Debug("event owned by another invocation, skipping", slog.String("event_ts", event.EventID))
		return nil
	}

	ws, err := o.tenants.ResolveWorkspace(ctx, event.TeamID)
	if err != nil {
		if errors.Is(err, workspace.ErrWorkspaceNotFound) {
			// A provisioning gap upstream, not a transient failure.
			o.logger.Warn("no workspace for slack team", slog.String("slack_team_id", event.TeamID))
			return nil
		}
		return fmt.Errorf("resolve workspace: %w", err)
	}

	mapping, err := o.tenants.ResolveChannel(ctx, event.ChannelID)
	if err != nil {
		o.logger.Warn("channel mapping lookup failed", slog.Any("error", err))
		mapping = nil
	}

	cleanText := stripMention(event.Text, ws.SlackBotUserID)
	if cleanText == "" {
		o.reply(ctx, event, helpMessage)
		return nil
	}

	response := o.respond(ctx, ws, mapping, event, cleanText)
	o.reply(ctx, event, response)
	return nil
}

// HandleThreadReply links a reply in an existing task thread to that
// task. A reply in a non-task thread is silently dropped.
func (o *Orchestrator) HandleThreadReply(ctx context.Context, event Event) error {
	ws, err := o.tenants.ResolveWorkspace(ctx, event.TeamID)
	if err != nil {
		if errors.Is(err, workspace.ErrWorkspaceNotFound) {
			return nil
		}
		return fmt.Errorf("resolve workspace: %w", err)
	}

	t, err := o.tasks.GetBySlackThread(ctx, ws.ID, event.ChannelID, event.ThreadTS)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("thread lookup: %w", err)
	}

	return o.tasks.AddMessage(ctx, task.AddMessageInput{
		TaskID:         t.ID,
		Content:        event.Text,
		SlackUserID:    event.UserID,
		SlackMessageTS: event.MessageTS,
	})
}

// respond routes the cleaned mention text to a command or to task
// creation, returning the reply text. Internal failures collapse to a
// generic apology; the raw error never reaches the chat surface.
func (o *Orchestrator) respond(ctx context.Context, ws workspace.Workspace, mapping *workspace.ChannelMapping, event Event, cleanText string) string {
	switch cmd := classify(cleanText); cmd.kind {
	case intentUpdateStatus:
		if err := o.tasks.UpdateStatus(ctx, ws.ID, cmd.displayID, cmd.status, event.UserID); err != nil {
			o.logger.Error("status update failed", slog.Any("error", err))
			return apologyMessage
		}
		return fmt.Sprintf("Marked %s as %s.", cmd.displayID, cmd.status)

	case intentAssign:
		if err := o.tasks.Assign(ctx, ws.ID, cmd.displayID, cmd.assignee, event.UserID); err != nil {
			o.logger.Error("assignment failed", slog.Any("error", err))
			return apologyMessage
		}
		return fmt.Sprintf("Assigned %s to <@%s>.", cmd.displayID, cmd.assignee)

	case intentSummarize:
		counts, err := o.tasks.CountByPriority(ctx, ws.ID)
		if err != nil {
			o.logger.Error("summary query failed", slog.Any("error", err))
			return apologyMessage
		}
		return formatSummary(counts)

	default:
		return o.createTask(ctx, ws, mapping, event, cleanText)
	}
}

func (o *Orchestrator) createTask(ctx context.Context, ws workspace.Workspace, mapping *workspace.ChannelMapping, event Event, cleanText string) string {
	channelName := ""
	repositoryID := ""
	if mapping != nil {
		channelName = mapping.SlackChannelName
		repositoryID = mapping.RepositoryID
	}

	draft := o.extractor.Extract(ctx, cleanText, channelName)

	result, err := o.tasks.Create(ctx, task.CreateInput{
		WorkspaceID:      ws.ID,
		RepositoryID:     repositoryID,
		Draft:            draft,
		SlackChannelID:   event.ChannelID,
		SlackChannelName: channelName,
		SlackMessageTS:   event.MessageTS,
		SlackThreadTS:    event.ThreadTS,
		SlackUserID:      event.UserID,
		Extraction: &task.ExtractionMetadata{
			ExtractedAt:  time.Now(),
			Model:        o.model,
			Confidence:   draft.Confidence,
			OriginalText: cleanText,
		},
	})
	if err != nil {
		o.logger.Error("task creation failed", slog.Any("error", err))
		return apologyMessage
	}

	return fmt.Sprintf("Created **%s**: %s\n* Type: %s\n* Priority: %s",
		result.DisplayID, draft.Title, draft.TaskType, draft.Priority)
}

// reply dispatches through the sender. Failures are logged and
// dropped: the event source only expects an acknowledgment of receipt,
// never of reply success.
func (o *Orchestrator) reply(ctx context.Context, event Event, text string) {
	threadTS := event.ThreadTS
	if threadTS == "" {
		threadTS = event.MessageTS
	}
	err := o.sender.SendMessage(ctx, slack.SendMessageInput{
		ChannelID: event.ChannelID,
		ThreadTS:  threadTS,
		Text:      text,
	})
	if err != nil {
		o.logger.Warn("reply dispatch failed",
			slog.String("channel_id", event.ChannelID), slog.Any("error", err))
	}
}

// stripMention removes every occurrence of the bot's own mention
// token, case-insensitively, and trims the remainder.
func stripMention(text, botUserID string) string {
	if strings.TrimSpace(botUserID) == "" {
		return strings.TrimSpace(text)
	}
	pattern := regexp.MustCompile(`(?i)<@` + regexp.QuoteMeta(botUserID) + `>`)
	return strings.TrimSpace(pattern.ReplaceAllString(text, ""))
}

func formatSummary(counts map[string]int64) string {
	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return "No open tasks. The board is clear."
	}
	order := []string{"critical", "high", "medium", "low"}
	lines := []string{fmt.Sprintf("**%d open tasks** by priority:", total)}
	seen := map[string]bool{}
	for _, p := range order {
		if n, ok := counts[p]; ok && n > 0 {
			lines = append(lines, fmt.Sprintf("* %s: %d", p, n))
			seen[p] = true
		}
	}
	// Anything outside the known priorities still shows up.
	var extras []string
	for p := range counts {
		if !seen[p] && counts[p] > 0 {
			extras = append(extras, p)
		}
	}
	sort.Strings(extras)
	for _, p := range extras {
		lines = append(lines, fmt.Sprintf("* %s: %d", p, counts[p]))
	}
	return strings.Join(lines, "\n")
}
