package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/table-reservation/internal/utils"
)

// Context keys set by JWTAuth.
const (
    ctxUserID  = "user_id"
    ctxAccount = "account"
    ctxRole    = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the user id, household account and role claims into the request
// context.  The provided secret must match the one used when issuing tokens.
// Handlers read the values with UserID, Account and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            uid, err := claims.UserID()
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            c.Set(ctxUserID, uid)
            c.Set(ctxAccount, claims.Account)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}
