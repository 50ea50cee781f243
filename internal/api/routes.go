// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ada-analyst/console/internal/session"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Console      Console
	Sessions     *session.Manager
	Version      string
	BackendURL   string
	PushInterval time.Duration
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Session    SessionHandler
	ViewStream ViewStreamHandler
}

// NewHandlers creates all handler instances. Removing a session, by request
// or by expiry, also drops the files and history it owned.
func NewHandlers(deps *Dependencies) *Handlers {
	deps.Sessions.OnRemove(func(id string) {
		deps.Console.Forget(context.Background(), id)
	})

	return &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.BackendURL, deps.Sessions),
		Session:    NewSessionHandler(deps.Console, deps.Sessions),
		ViewStream: NewWebSocketHandler(deps.Console, deps.Sessions, deps.PushInterval),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Console sessions
	g := e.Group("/ui/sessions")
	g.POST("", handlers.Session.HandleCreateSession)
	g.GET("/:id", handlers.Session.HandleGetSession)
	g.DELETE("/:id", handlers.Session.HandleDeleteSession)
	g.GET("/:id/view/msgpack", handlers.Session.HandleGetSessionMsgpack)
	g.DELETE("/:id/notice", handlers.Session.HandleDismissNotice)

	// Workflow
	g.POST("/:id/upload", handlers.Session.HandleUpload)
	g.POST("/:id/ask", handlers.Session.HandleAsk)
	g.POST("/:id/schema", handlers.Session.HandleSchema)

	// Exports
	g.GET("/:id/report", handlers.Session.HandleReport)
	g.POST("/:id/report/save", handlers.Session.HandleSaveReport)
	g.POST("/:id/chart", handlers.Session.HandleChart)
	g.GET("/:id/downloads", handlers.Session.HandleListDownloads)
	g.GET("/:id/downloads/:fileId", handlers.Session.HandleDownload)

	// View stream
	g.GET("/:id/ws", handlers.ViewStream.HandleWebSocket)
}

// ReportLink is the console route serving a session's dataset report. Use it
// with console.WithReportLink so views link to the console, not the backend.
func ReportLink(sessionID, _ string) string {
	return "/ui/sessions/" + sessionID + "/report"
}
