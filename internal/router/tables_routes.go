package router

import (
	"github.com/labstack/echo/v4"
)

// RegisterTables registers the grid endpoints under /v1/tables.  All
// routes require a valid JWT; both roles may use them.
func RegisterTables(e *echo.Echo, d Deps) {
	g := e.Group("/v1/tables", protected(d)...)
	g.GET("", d.Tables.Snapshot)
	g.POST("/purchase", d.Tables.Purchase)
	g.POST("/release", d.Tables.Release)
}
