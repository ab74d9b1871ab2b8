package server

import (
	"github.com/elattma/mimo-core-sub000/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	v1 := e.Group("/v1")
	v1.POST("/query", routes.QueryHandler)
	v1.POST("/sync", routes.SyncHandler)
	v1.DELETE("/connections/:id", routes.DeleteConnectionHandler)
}
