// Package router registers the HTTP surface on an echo instance.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campaign-session/internal/config"
	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/handler"
	"github.com/iliyamo/campaign-session/internal/middleware"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/obs"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/service"
)

// Deps is everything the routes need.
type Deps struct {
	Config   config.Config
	DB       *sql.DB
	Redis    *redis.Client // nil disables rate limiting and caching
	Sessions *service.SessionService
	Audit    *service.Auditor
	Refs     *repository.ReferenceRepo
	Metrics  *obs.Metrics
}

// Register installs the global middleware and every route.
func Register(e *echo.Echo, d Deps) {
	e.HTTPErrorHandler = handler.ErrorHandler(e)

	// Order matters: RequestMeta reads the id RequestID generated, and
	// Authenticate audits with that metadata.
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestMeta())
	e.Use(middleware.Metrics(d.Metrics))
	e.Use(middleware.Authenticate(d.Sessions.Signer(), d.Audit))

	var db handler.Pinger
	if d.DB != nil {
		db = d.DB
	}
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))

	RegisterAuth(e, d)
	RegisterReference(e, d)
}

// RegisterAuth registers the session endpoints. Credential endpoints sit
// behind the Redis token bucket.
func RegisterAuth(e *echo.Echo, d Deps) {
	a := handler.NewAuthHandler(d.Sessions, handler.CookieConfig{
		Domain: d.Config.CookieDomain,
		Secure: d.Config.CookieSecure,
	})
	authed := guard.RouteMeta{}

	g := e.Group("/v1/auth")
	g.Use(middleware.NewTokenBucket(d.Config.RateLimit, d.Redis, d.Metrics.RateLimited))
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/trusted-devices", middleware.Guarded(authed, d.Audit, a.TrustDevice))
	g.DELETE("/trusted-devices", middleware.Guarded(authed, d.Audit, a.DistrustDevices))

	e.GET("/v1/me", middleware.Guarded(authed, d.Audit, a.Me))
}

// RegisterReference registers reference-data routes. Reads are cached;
// writes are restricted to SUPER_ADMIN and still meet the lock.
func RegisterReference(e *echo.Echo, d Deps) {
	h := handler.NewReferenceHandler(d.Refs)
	readers := guard.Roles(model.RoleSuperAdmin, model.RoleAdmin, model.RoleSubUser)
	admins := guard.Roles(model.RoleSuperAdmin)

	g := e.Group("/v1/reference")
	// The guard runs ahead of the cache so a hit is never served to a
	// caller the handler would have refused.
	cached := []echo.MiddlewareFunc{middleware.Guard(readers, d.Audit), middleware.NewRedisCache(d.Config.Cache, d.Redis)}
	g.GET("/:kind", middleware.Scoped(h.List), cached...)
	g.GET("/:kind/:id", middleware.Scoped(h.Get), cached...)
	g.POST("/:kind", middleware.Guarded(admins, d.Audit, h.Create))
	g.PUT("/:kind/:id", middleware.Guarded(admins, d.Audit, h.Update))
	g.DELETE("/:kind/:id", middleware.Guarded(admins, d.Audit, h.Delete))
}
