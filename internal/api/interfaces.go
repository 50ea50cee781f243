// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/view"
)

// SessionHandler handles the console session workflow
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleDismissNotice(c echo.Context) error
	HandleUpload(c echo.Context) error
	HandleAsk(c echo.Context) error
	HandleReport(c echo.Context) error
	HandleSaveReport(c echo.Context) error
	HandleChart(c echo.Context) error
	HandleListDownloads(c echo.Context) error
	HandleDownload(c echo.Context) error
	HandleSchema(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ViewStreamHandler pushes session views over a websocket
type ViewStreamHandler interface {
	HandleWebSocket(c echo.Context) error
}

// Console is the workflow the handlers drive.
// This allows mocking in tests
type Console interface {
	SubmitUpload(ctx context.Context, s *session.Session, name string, r io.Reader) error
	SubmitQuestion(ctx context.Context, s *session.Session, question string) (*models.AnswerResult, error)
	DownloadReport(ctx context.Context, s *session.Session, w io.Writer) (string, error)
	SaveReport(ctx context.Context, s *session.Session) (*models.FileInfo, error)
	DownloadChartImage(ctx context.Context, s *session.Session) (*models.FileInfo, error)
	LoadSchema(ctx context.Context, s *session.Session) error
	View(ctx context.Context, s *session.Session) view.View
	Files(sessionID string) ([]*models.FileInfo, error)
	OpenFile(sessionID, fileID string) (io.ReadCloser, *models.FileInfo, error)
	Forget(ctx context.Context, sessionID string)
}
