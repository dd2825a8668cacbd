package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fixbothq/fixbot/internal/workspace"
)

// WorkspacesHandler exposes workspace onboarding: connecting a Slack
// team creates the workspace (or refreshes its name and bot user id).
type WorkspacesHandler struct {
	workspaces *workspace.Service
	logger     *slog.Logger
}

func NewWorkspacesHandler(log *slog.Logger, workspaces *workspace.Service) *WorkspacesHandler {
	return &WorkspacesHandler{
		workspaces: workspaces,
		logger:     log.With(slog.String("handler", "workspaces")),
	}
}

func (h *WorkspacesHandler) Register(e *echo.Echo) {
	e.POST("/workspaces/connect", h.Connect)
}

func (h *WorkspacesHandler) Connect(c echo.Context) error {
	var input workspace.UpsertWorkspaceInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(input.SlackTeamID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "slack_team_id is required")
	}

	ws, err := h.workspaces.UpsertWorkspace(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ws)
}
