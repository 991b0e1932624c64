package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/scheduler"
)

func taskError(c echo.Context, err error) error {
	status, kind := http.StatusInternalServerError, commands.KindInternal
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		status, kind = http.StatusNotFound, commands.KindInvalidArgument
	case errors.Is(err, scheduler.ErrTaskRunning):
		status = http.StatusConflict
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: kind})
}

// GET /api/v1/scheduler/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

// GET /api/v1/scheduler/tasks/:id
func (s *Server) getTask(c echo.Context) error {
	task, err := s.scheduler.GetTask(c.Param("id"))
	if err != nil {
		return taskError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

// runTask starts a housekeeping task now; the response does not wait for it.
// POST /api/v1/scheduler/tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	id := c.Param("id")
	if err := s.scheduler.RunNow(id); err != nil {
		return taskError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"taskId": id})
}
