package workspace

import "time"

// Workspace is one connected Slack team (a tenant).
type Workspace struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	SlackTeamID    string         `json:"slack_team_id"`
	SlackTeamName  string         `json:"slack_team_name"`
	SlackBotUserID string         `json:"slack_bot_user_id"`
	Settings       map[string]any `json:"settings"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ChannelMapping binds a Slack channel to an optional repository
// context. It is provisioned by workspace administration; this service
// only reads it.
type ChannelMapping struct {
	SlackChannelID   string `json:"slack_channel_id"`
	SlackChannelName string `json:"slack_channel_name"`
	RepositoryID     string `json:"repository_id,omitempty"`
}

// UpsertWorkspaceInput carries the Slack team identity used to create
// or refresh a workspace.
type UpsertWorkspaceInput struct {
	SlackTeamID    string `json:"slack_team_id"`
	SlackTeamName  string `json:"slack_team_name"`
	SlackBotUserID string `json:"slack_bot_user_id"`
}

// CounterTypeTaskNumber is the per-workspace counter backing task
// display ids.
const CounterTypeTaskNumber = "task_number"
