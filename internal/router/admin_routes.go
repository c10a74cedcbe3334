package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/model"
)

// RegisterAdmin registers operator endpoints under /v1/admin.  They
// require a valid JWT carrying the ADMIN role.
func RegisterAdmin(e *echo.Echo, d Deps) {
	mws := append(protected(d), middleware.RequireRole(model.RoleAdmin))
	g := e.Group("/v1/admin", mws...)
	g.POST("/accounts/:account/release", d.Tables.AdminRelease)
}
