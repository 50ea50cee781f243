// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ada-analyst/console/internal/session"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version    string
	backendURL string
	sessions   *session.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, backendURL string, sessions *session.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version:    version,
		backendURL: backendURL,
		sessions:   sessions,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"backend":  h.backendURL,
		"sessions": h.sessions.Len(),
	})
}
