// Package workspace resolves Slack team and channel identifiers to
// tenant context, and allocates per-workspace sequence numbers.
package workspace

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
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

// Service provides tenant resolution and workspace onboarding.
type Service struct {
	conn   db.Conn
	logger *slog.Logger
}

// NewService creates a workspace service.
func NewService(log *slog.Logger, conn db.Conn) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conn:   conn,
		logger: log.With(slog.String("service", "workspace")),
	}
}

const workspaceColumns = `id, name, slug, slack_team_id, slack_team_name, slack_bot_user_id, settings, created_at, updated_at`

// ResolveWorkspace looks a workspace up by its Slack team id.
func (s *Service) ResolveWorkspace(ctx context.Context, slackTeamID string) (Workspace, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE slack_team_id = $1`,
		strings.TrimSpace(slackTeamID),
	)
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workspace{}, ErrWorkspaceNotFound
		}
		return Workspace{}, err
	}
	return ws, nil
}

// GetBySlug looks a workspace up by its slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Workspace, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE slug = $1`,
		strings.TrimSpace(slug),
	)
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workspace{}, ErrWorkspaceNotFound
		}
		return Workspace{}, err
	}
	return ws, nil
}

// ResolveChannel returns the mapping for a Slack channel, or nil when
// the channel is unmapped. Absence is not an error; the pipeline just
// proceeds without repository context.
func (s *Service) ResolveChannel(ctx context.Context, slackChannelID string) (*ChannelMapping, error) {
	var (
		mapping ChannelMapping
		repoID  pgtype.UUID
	)
	err := s.conn.QueryRow(ctx,
		`SELECT slack_channel_id, slack_channel_name, repository_id
		 FROM channel_mappings WHERE slack_channel_id = $1`,
		strings.TrimSpace(slackChannelID),
	).Scan(&mapping.SlackChannelID, &mapping.SlackChannelName, &repoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if repoID.Valid {
		mapping.RepositoryID = repoID.String()
	}
	return &mapping, nil
}

// UpsertWorkspace creates a workspace on first sight of a Slack team
// and refreshes the team name and bot user id afterwards. There is no
// delete path.
func (s *Service) UpsertWorkspace(ctx context.Context, input UpsertWorkspaceInput) (Workspace, error) {
	teamID := strings.TrimSpace(input.SlackTeamID)
	teamName := strings.TrimSpace(input.SlackTeamName)
	if teamID == "" {
		return Workspace{}, fmt.Errorf("slack team id is required")
	}

	existing, err := s.ResolveWorkspace(ctx, teamID)
	if err == nil {
		row := s.conn.QueryRow(ctx,
			`UPDATE workspaces
			 SET slack_team_name = $2, slack_bot_user_id = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING `+workspaceColumns,
			existing.ID, teamName, strings.TrimSpace(input.SlackBotUserID),
		)
		return scanWorkspace(row)
	}
	if !errors.Is(err, ErrWorkspaceNotFound) {
		return Workspace{}, err
	}

	slug := TeamSlug(teamName, teamID)
	row := s.conn.QueryRow(ctx,
		`INSERT INTO workspaces (name, slug, slack_team_id, slack_team_name, slack_bot_user_id, settings)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+workspaceColumns,
		teamName, slug, teamID, teamName, strings.TrimSpace(input.SlackBotUserID),
		[]byte(`{"aiExtractionEnabled": true}`),
	)
	ws, err := scanWorkspace(row)
	if err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	s.logger.Info("workspace created",
		slog.String("slug", ws.Slug),
		slog.String("slack_team_id", ws.SlackTeamID),
	)
	return ws, nil
}

func scanWorkspace(row pgx.Row) (Workspace, error) {
	var (
		id        pgtype.UUID
		settings  []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		ws        Workspace
	)
	err := row.Scan(&id, &ws.Name, &ws.Slug, &ws.SlackTeamID, &ws.SlackTeamName,
		&ws.SlackBotUserID, &settings, &createdAt, &updatedAt)
	if err != nil {
		return Workspace{}, err
	}
	ws.ID = id.String()
	ws.CreatedAt = createdAt.Time
	ws.UpdatedAt = updatedAt.Time
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &ws.Settings); err != nil {
			slog.Warn("workspace settings unmarshal failed", slog.Any("error", err))
		}
	}
	return ws, nil
}
