package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ada-analyst/console/internal/config"
	"github.com/ada-analyst/console/internal/logger"
)

// ContextLogger stores a request-scoped logger in the request context.
// It should run after middleware.RequestID.
func ContextLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			enriched := log.With(
				"request_id", requestID,
				"method", req.Method,
				"path", req.URL.Path,
			)
			c.SetRequest(req.WithContext(logger.ToContext(req.Context(), enriched)))
			return next(c)
		}
	}
}

// AccessLog logs one line per request. Health checks and view streams are
// skipped.
func AccessLog(log *slog.Logger, enabled bool) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !enabled {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasSuffix(path, "/ws")
		},
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(c.Request().Context(), level, "request",
				slog.String("request_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, log *slog.Logger) {
	// Use custom error handler; debug logging also exposes error details
	e.HTTPErrorHandler = NewErrorHandler(strings.EqualFold(cfg.Log.Level, "debug"))

	e.Use(middleware.RequestID())
	e.Use(ContextLogger(log))
	e.Use(AccessLog(log, cfg.Log.EnableRequestLogging))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.FromContext(c.Request().Context()).Error("panic recovered", "error", err, "stack", string(stack))
			return err
		},
	}))

	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Server.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/ws")
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			MaxAge:       int((12 * time.Hour).Seconds()),
		}))
	}
}
