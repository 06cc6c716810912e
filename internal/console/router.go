// Package console is the admin console's HTTP surface: session handoff and
// logout, plus JSON endpoints that drive the entity tables.
package console

import (
	"context"
	"log/slog"

	"admin-console/internal/catalog"
	"admin-console/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionManager is the part of *session.Manager the console needs
type SessionManager interface {
	Snapshot() session.Session
	Loading() bool
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	SetToken(ctx context.Context, token string, persist bool) error
	SetRefreshToken(ctx context.Context, token string) error
	SetUser(ctx context.Context, user *session.UserProfile, persist bool) error
}

// Catalog is the part of *catalog.Catalog the console needs
type Catalog interface {
	Names() []string
	Table(name string) (catalog.Table, error)
	UpdateCategory(ctx context.Context, id int, req catalog.UpdateCategoryRequest) (catalog.View, error)
	DeleteCategory(ctx context.Context, id int) (catalog.View, error)
	ApproveConfirmation(ctx context.Context, id int) (catalog.ApproveConfirmationResponse, catalog.View, error)
}

// Options configures the router
type Options struct {
	// AdminFEURL is the admin frontend origin, allowed by CORS
	AdminFEURL string
	// UserFEURL is where logged-out administrators are sent
	UserFEURL string
	Logger    *slog.Logger
}

// SetupRouter configures and returns the console router
func SetupRouter(sessions SessionManager, cat Catalog, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(CORSMiddleware(opts.AdminFEURL))

	h := NewHandler(sessions, cat, opts)

	r.GET("/health", h.Health)
	r.GET("/", h.Home)

	// Session handoff from the user frontend
	r.GET("/login-direct", h.LoginDirect)
	r.GET("/logout", h.Logout)
	r.POST("/logout", h.Logout)

	api := r.Group("/api")
	{
		api.GET("/session", h.Session)
		api.POST("/session/refresh", h.RefreshSession)
	}

	protected := api.Group("")
	protected.Use(RequireSession(sessions, opts.UserFEURL))
	{
		protected.GET("/tables", h.ListTables)

		tables := protected.Group("/tables/:entity")
		{
			tables.GET("", h.GetTable)
			tables.PUT("/filters/:name", h.SetFilter)
			tables.DELETE("/filters", h.ClearFilters)
			tables.PUT("/sort", h.SetSort)
			tables.PUT("/page/:page", h.SetPage)
			tables.PUT("/page-size/:size", h.SetPageSize)
			tables.POST("/retry", h.Retry)
		}

		protected.PUT("/categories/:id", h.UpdateCategory)
		protected.DELETE("/categories/:id", h.DeleteCategory)
		protected.POST("/confirmations/:id/approve", h.ApproveConfirmation)
	}

	return r
}
