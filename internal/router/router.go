package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/table-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/table-reservation/internal/ws"
)

// Deps carries everything the routes need.  Redis is optional: without a
// client the rate limiter and the response cache pass requests through.
type Deps struct {
	Cfg       config.Config
	Grid      config.GridSettings
	DB        *sql.DB
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig

	Auth   *handler.AuthHandler
	Tables *handler.TablesHandler
	WS     *ws.Handler
}

// New builds the Echo instance with request logging, panic recovery and
// every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterTables(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication: the
// health check, the grid settings and the push channel, which verifies
// its token itself.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	// Settings change only on restart, so they go through the Redis cache.
	e.GET("/v1/config", handler.Settings(d.Grid), middleware.NewRedisCache(d.Cache, d.Redis))
	if d.WS != nil {
		e.GET("/ws", d.WS.Serve)
	}
}

// protected returns the middleware chain of authenticated routes: token
// verification first, so rate-limit buckets are keyed by account.
func protected(d Deps) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.NewTokenBucket(d.RateLimit, d.Redis),
	}
}

// RegisterAuth registers all authentication-related routes.  Register and
// login live under /v1/auth without a session; logout and /v1/me require
// a valid access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/logout", d.Auth.Logout, protected(d)...)

	auth := e.Group("/v1", protected(d)...)
	auth.GET("/me", d.Auth.Me)
}
