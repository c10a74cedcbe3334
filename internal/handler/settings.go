package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/table-reservation/internal/config"
)

// Settings serves the active grid settings at GET /v1/config.  They are
// read once at startup, so the response is safe to cache.
func Settings(g config.GridSettings) echo.HandlerFunc {
    return func(c echo.Context) error {
        return c.JSON(http.StatusOK, g)
    }
}
