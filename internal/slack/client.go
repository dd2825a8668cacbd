// Package slack sends outbound replies to Slack and converts the
// pipeline's markup to Slack's mrkdwn dialect.
package slack

import (
	"context"
	"log/slog"
	"strings"

	slackapi "github.com/slack-go/slack"
)

// SendMessageInput addresses one outbound message.
type SendMessageInput struct {
	ChannelID string
	ThreadTS  string
	Text      string
}

// Client posts messages through the Slack Web API. Constructed without
// a bot token it degrades to a logged no-op: reply dispatch stops, the
// pipeline does not crash.
type Client struct {
	api    *slackapi.Client
	logger *slog.Logger
}

// NewClient creates a Slack client. An empty token is allowed.
func NewClient(log *slog.Logger, botToken string) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{logger: log.With(slog.String("service", "slack"))}
	if strings.TrimSpace(botToken) == "" {
		c.logger.Warn("slack bot token not configured; reply dispatch disabled")
		return c
	}
	c.api = slackapi.New(botToken)
	return c
}

// SendMessage posts text (converted to mrkdwn) to a channel, threading
// when a thread timestamp is given.
func (c *Client) SendMessage(ctx context.Context, input SendMessageInput) error {
	if c.api == nil {
		c.logger.Error("SLACK_BOT_TOKEN not configured; dropping reply",
			slog.String("channel_id", input.ChannelID))
		return nil
	}

	opts := []slackapi.MsgOption{
		slackapi.MsgOptionText(ToMrkdwn(input.Text), false),
	}
	if strings.TrimSpace(input.ThreadTS) != "" {
		opts = append(opts, slackapi.MsgOptionTS(input.ThreadTS))
	}

	_, _, err := c.api.PostMessageContext(ctx, input.ChannelID, opts...)
	return err
}
