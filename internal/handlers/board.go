package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fixbothq/fixbot/internal/task"
	"github.com/fixbothq/fixbot/internal/workspace"
)

// BoardHandler serves the task-store read surface the board UI
// consumes: tasks grouped by status column with priority counts. The
// ingestion pipeline itself only writes; this sits at the store
// boundary for external consumers.
type BoardHandler struct {
	workspaces *workspace.Service
	tasks      *task.Repository
	logger     *slog.Logger
}

func NewBoardHandler(log *slog.Logger, workspaces *workspace.Service, tasks *task.Repository) *BoardHandler {
	return &BoardHandler{
		workspaces: workspaces,
		tasks:      tasks,
		logger:     log.With(slog.String("handler", "board")),
	}
}

func (h *BoardHandler) Register(e *echo.Echo) {
	e.GET("/workspaces/:slug/board", h.Board)
}

type boardResponse struct {
	Workspace      string                 `json:"workspace"`
	Slug           string                 `json:"slug"`
	Columns        map[string][]task.Task `json:"columns"`
	CountsByStatus map[string]int         `json:"counts_by_status"`
	OpenByPriority map[string]int64       `json:"open_by_priority"`
}

func (h *BoardHandler) Board(c echo.Context) error {
	ctx := c.Request().Context()

	ws, err := h.workspaces.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, workspace.ErrWorkspaceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workspace not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	tasks, err := h.tasks.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	priorities, err := h.tasks.CountByPriority(ctx, ws.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	columns := map[string][]task.Task{
		string(task.StatusBacklog):    {},
		string(task.StatusTodo):       {},
		string(task.StatusInProgress): {},
		string(task.StatusInReview):   {},
		string(task.StatusDone):       {},
	}
	counts := map[string]int{}
	for _, t := range tasks {
		columns[string(t.Status)] = append(columns[string(t.Status)], t)
		counts[string(t.Status)]++
	}

	return c.JSON(http.StatusOK, boardResponse{
		Workspace:      ws.Name,
		Slug:           ws.Slug,
		Columns:        columns,
		CountsByStatus: counts,
		OpenByPriority: priorities,
	})
}
