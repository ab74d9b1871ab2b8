package routes

import (
	"encoding/json"
	"net/http"

	"github.com/elattma/mimo-core-sub000/internal/queue"
	"github.com/elattma/mimo-core-sub000/internal/server/middleware"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/model"

	"github.com/labstack/echo/v4"
)

// SyncHandler enqueues an ingestion job for a batch of discoveries. The
// work itself runs on the worker; the handler only validates and publishes.
func SyncHandler(c echo.Context) error {
	type syncBody struct {
		Library     string            `json:"library" validate:"required"`
		Connection  string            `json:"connection" validate:"required"`
		Discoveries []model.Discovery `json:"discoveries" validate:"required,min=1"`
	}

	type syncResponse struct {
		Message string `json:"message"`
		Queued  int    `json:"queued,omitempty"`
	}

	data := new(syncBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, syncResponse{Message: "invalid_request"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, syncResponse{Message: "invalid_request"})
	}
	for i := range data.Discoveries {
		if !data.Discoveries[i].IsValid() {
			return c.JSON(http.StatusBadRequest, syncResponse{Message: "invalid_discovery"})
		}
	}

	msg, err := json.Marshal(queue.SyncJobMsg{
		Library:     data.Library,
		Connection:  data.Connection,
		Discoveries: data.Discoveries,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, syncResponse{Message: "enqueue_failed"})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, queue.SyncQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue sync job", "library", data.Library, "err", err)
		return c.JSON(http.StatusInternalServerError, syncResponse{Message: "enqueue_failed"})
	}

	return c.JSON(http.StatusAccepted, syncResponse{
		Message: "queued",
		Queued:  len(data.Discoveries),
	})
}
