package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// getActivity returns in-flight and recently finished activities.
// GET /activity
func (s *Server) getActivity(c echo.Context) error {
	return c.JSON(http.StatusOK, s.activity.All())
}

// listTasks returns the registered maintenance tasks.
// GET /tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}

// runTask triggers a maintenance task outside its schedule.
// POST /tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	taskID := c.Param("id")
	if err := s.sched.RunNow(taskID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Task started",
		"taskId":  taskID,
	})
}
