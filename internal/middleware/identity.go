package middleware

// identity.go exposes the values JWTAuth stores in the Echo context.  When
// no token was verified the zero value is returned with ok=false.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/table-reservation/internal/model"
)

// Account returns the household account of the authenticated caller.
func Account(c echo.Context) (model.AccountID, bool) {
    a, ok := c.Get(ctxAccount).(model.AccountID)
    return a, ok && a != ""
}

// UserID returns the numeric id of the authenticated user.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok
}

// Role returns the caller's role claim.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// principal names the caller for rate-limit keys; "anon" before auth.
func principal(c echo.Context) string {
    if a, ok := Account(c); ok {
        return string(a)
    }
    return "anon"
}
