package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack/slackevents"

	"github.com/fixbothq/fixbot/internal/bot"
)

// SlackEventsHandler receives Events API callbacks. Signature
// verification happens upstream (at the edge proxy), so the payload is
// treated as already authenticated.
type SlackEventsHandler struct {
	orchestrator *bot.Orchestrator
	logger       *slog.Logger
}

func NewSlackEventsHandler(log *slog.Logger, orchestrator *bot.Orchestrator) *SlackEventsHandler {
	return &SlackEventsHandler{
		orchestrator: orchestrator,
		logger:       log.With(slog.String("handler", "slack_events")),
	}
}

func (h *SlackEventsHandler) Register(e *echo.Echo) {
	e.POST("/slack/events", h.Events)
}

// Events acks the callback immediately and processes the event in its
// own goroutine. Slack redelivers on slow acks, which is exactly the
// duplicate-delivery pressure the dedup ledger absorbs.
func (h *SlackEventsHandler) Events(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}

	apiEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "parse event")
	}

	switch apiEvent.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "parse challenge")
		}
		return c.String(http.StatusOK, challenge.Challenge)

	case slackevents.CallbackEvent:
		h.dispatch(apiEvent.TeamID, apiEvent.InnerEvent)
	}

	return c.NoContent(http.StatusOK)
}

func (h *SlackEventsHandler) dispatch(teamID string, inner slackevents.EventsAPIInnerEvent) {
	switch ev := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		event := bot.Event{
			TeamID:    teamID,
			ChannelID: ev.Channel,
			UserID:    ev.User,
			Text:      ev.Text,
			MessageTS: ev.TimeStamp,
			ThreadTS:  threadOrSelf(ev.ThreadTimeStamp, ev.TimeStamp),
			EventID:   ev.TimeStamp,
			EventType: bot.EventTypeMention,
		}
		go h.run(event, h.orchestrator.HandleMention)

	case *slackevents.MessageEvent:
		// Only plain human replies inside threads; bot echoes and
		// edits/joins carry a bot id or subtype.
		if ev.ThreadTimeStamp == "" || ev.ThreadTimeStamp == ev.TimeStamp {
			return
		}
		if ev.BotID != "" || ev.SubType != "" {
			return
		}
		event := bot.Event{
			TeamID:    teamID,
			ChannelID: ev.Channel,
			UserID:    ev.User,
			Text:      ev.Text,
			MessageTS: ev.TimeStamp,
			ThreadTS:  ev.ThreadTimeStamp,
			EventID:   ev.TimeStamp,
			EventType: bot.EventTypeThreadReply,
		}
		go h.run(event, h.orchestrator.HandleThreadReply)
	}
}

// run executes one event handler on a fresh context; the HTTP request
// context is gone by the time the goroutine runs.
func (h *SlackEventsHandler) run(event bot.Event, handle func(context.Context, bot.Event) error) {
	if err := handle(context.Background(), event); err != nil {
		h.logger.Error("event handling failed",
			slog.String("event_type", event.EventType),
			slog.String("event_ts", event.EventID),
			slog.Any("error", err),
		)
	}
}

func threadOrSelf(threadTS, ts string) string {
	if threadTS != "" {
		return threadTS
	}
	return ts
}
