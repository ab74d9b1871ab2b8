package routes

import (
	"encoding/json"
	"net/http"

	"github.com/elattma/mimo-core-sub000/internal/queue"
	"github.com/elattma/mimo-core-sub000/internal/server/middleware"
	"github.com/elattma/mimo-core-sub000/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteConnectionHandler enqueues removal of a connection's pages from
// both stores.
func DeleteConnectionHandler(c echo.Context) error {
	type deleteResponse struct {
		Message string `json:"message"`
	}

	connection := c.Param("id")
	library := c.QueryParam("library")
	if connection == "" || library == "" {
		return c.JSON(http.StatusBadRequest, deleteResponse{Message: "invalid_request"})
	}

	msg, err := json.Marshal(queue.DeleteJobMsg{
		Library:    library,
		Connection: connection,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, deleteResponse{Message: "enqueue_failed"})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue delete job", "connection", connection, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteResponse{Message: "enqueue_failed"})
	}

	return c.JSON(http.StatusAccepted, deleteResponse{Message: "queued"})
}
