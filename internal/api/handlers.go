package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ada-analyst/console/internal/backend"
	"github.com/ada-analyst/console/internal/console"
	"github.com/ada-analyst/console/internal/logger"
	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/storage"
	"github.com/ada-analyst/console/internal/upload"
	"github.com/ada-analyst/console/internal/view"
)

// AskRequest is the body of an ask request.
type AskRequest struct {
	Question string `json:"question"`
}

// FileResponse is returned after a file was saved for the session.
type FileResponse struct {
	File        *models.FileInfo `json:"file"`
	DownloadURL string           `json:"downloadUrl"`
	View        view.View        `json:"view"`
}

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	console  Console
	sessions *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(c Console, sessions *session.Manager) *SessionHandlerImpl {
	return &SessionHandlerImpl{console: c, sessions: sessions}
}

// session looks up the :id session and records activity on it.
func (h *SessionHandlerImpl) session(c echo.Context) (*session.Session, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	s.Touch()

	_, ctx := logger.With(c.Request().Context(), "session_id", id)
	c.SetRequest(c.Request().WithContext(ctx))
	return s, nil
}

func (h *SessionHandlerImpl) view(c echo.Context, s *session.Session) view.View {
	return h.console.View(c.Request().Context(), s)
}

// HandleCreateSession starts a new idle session.
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	s := h.sessions.Create()
	return c.JSON(http.StatusCreated, h.view(c, s))
}

// HandleGetSession returns the current view of a session.
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.view(c, s))
}

// HandleGetSessionMsgpack returns the current view encoded as MessagePack.
func (h *SessionHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	data, err := encodeMsgpack(h.view(c, s))
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// encodeMsgpack encodes v with the same keys as its JSON form. The figure is
// raw JSON inside the view, so it goes through a generic value first.
func encodeMsgpack(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return msgpack.Marshal(generic)
}

// HandleDeleteSession ends a session and drops its files and history.
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDismissNotice clears the session notice.
func (h *SessionHandlerImpl) HandleDismissNotice(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.ClearNotice()
	return c.JSON(http.StatusOK, h.view(c, s))
}

// HandleUpload forwards the multipart "file" to the backend. A request
// without a file, multipart or not, changes nothing.
func (h *SessionHandlerImpl) HandleUpload(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return c.JSON(http.StatusOK, h.view(c, s))
	}
	if err != nil {
		return NewBadRequestError("invalid multipart upload", err)
	}

	f, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to open uploaded file", err)
	}
	defer f.Close()

	err = h.console.SubmitUpload(c.Request().Context(), s, fh.Filename, f)
	if err != nil && !errors.Is(err, upload.ErrEmptyFile) && !isBackendFailure(err) {
		return NewInternalError("upload failed", err)
	}
	return c.JSON(http.StatusOK, h.view(c, s))
}

// HandleAsk asks a question about the session's dataset.
func (h *SessionHandlerImpl) HandleAsk(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	_, err = h.console.SubmitQuestion(c.Request().Context(), s, req.Question)
	switch {
	case err == nil, errors.Is(err, session.ErrEmptyQuestion), isBackendFailure(err):
		return c.JSON(http.StatusOK, h.view(c, s))
	case console.IsPrecondition(err):
		return NewPreconditionError(err, h.view(c, s))
	default:
		return NewInternalError("ask failed", err)
	}
}

// HandleReport serves the dataset report as an attachment. The report is
// fetched with the console's backend session; browsers have none.
func (h *SessionHandlerImpl) HandleReport(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	name, err := h.console.DownloadReport(c.Request().Context(), s, &buf)
	switch {
	case err == nil:
	case console.IsPrecondition(err):
		return NewPreconditionError(err, h.view(c, s))
	case isBackendFailure(err):
		return NewBackendError(err, h.view(c, s))
	default:
		return NewInternalError("report download failed", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// HandleSaveReport stores a copy of the dataset report for download.
func (h *SessionHandlerImpl) HandleSaveReport(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	info, err := h.console.SaveReport(c.Request().Context(), s)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, h.fileResponse(c, s, info))
	case console.IsPrecondition(err):
		return NewPreconditionError(err, h.view(c, s))
	case isBackendFailure(err):
		return c.JSON(http.StatusOK, FileResponse{View: h.view(c, s)})
	default:
		return NewInternalError("failed to save report", err)
	}
}

// HandleChart exports the rendered chart as a PNG.
func (h *SessionHandlerImpl) HandleChart(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	info, err := h.console.DownloadChartImage(c.Request().Context(), s)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, h.fileResponse(c, s, info))
	case console.IsPrecondition(err):
		return NewPreconditionError(err, h.view(c, s))
	case errors.Is(err, console.ErrExport):
		// Export failures are a notice in the view, not a request failure.
		return c.JSON(http.StatusOK, FileResponse{View: h.view(c, s)})
	default:
		return NewInternalError("chart export failed", err)
	}
}

func (h *SessionHandlerImpl) fileResponse(c echo.Context, s *session.Session, info *models.FileInfo) FileResponse {
	return FileResponse{
		File:        info,
		DownloadURL: fmt.Sprintf("/ui/sessions/%s/downloads/%s", s.ID(), info.ID),
		View:        h.view(c, s),
	}
}

// HandleListDownloads lists the files saved for a session.
func (h *SessionHandlerImpl) HandleListDownloads(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	files, err := h.console.Files(s.ID())
	if err != nil {
		return NewInternalError("failed to list downloads", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleDownload sends a saved file as an attachment.
func (h *SessionHandlerImpl) HandleDownload(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	fileID := c.Param("fileId")
	rc, info, err := h.console.OpenFile(s.ID(), fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("file", fileID)
	}
	if err != nil {
		return NewInternalError("failed to open file", err)
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", info.Name))
	return c.Stream(http.StatusOK, contentType, rc)
}

// HandleSchema reloads the dataset metadata from the backend.
func (h *SessionHandlerImpl) HandleSchema(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	err = h.console.LoadSchema(c.Request().Context(), s)
	switch {
	case err == nil, isBackendFailure(err):
		return c.JSON(http.StatusOK, h.view(c, s))
	case console.IsPrecondition(err):
		return NewPreconditionError(err, h.view(c, s))
	default:
		return NewInternalError("failed to load schema", err)
	}
}

// isBackendFailure reports errors that are already shown in the session view.
func isBackendFailure(err error) bool {
	var be *backend.Error
	return errors.As(err, &be) || errors.Is(err, backend.ErrTransport)
}
