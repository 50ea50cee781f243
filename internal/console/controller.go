// Package console drives a session through the upload and ask workflow
// against the analysis backend.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ada-analyst/console/internal/backend"
	"github.com/ada-analyst/console/internal/chart"
	"github.com/ada-analyst/console/internal/history"
	"github.com/ada-analyst/console/internal/logger"
	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/storage"
	"github.com/ada-analyst/console/internal/upload"
	"github.com/ada-analyst/console/internal/view"
)

// Messages shown when the backend could not be reached or answered with
// something unreadable.
const (
	UploadFailed = "Upload failed. Please try again."
	AnswerFailed = "Something went wrong while answering."
	ExportFailed = "Could not export chart image."
	ReportFailed = "Could not download the report."
)

// ErrExport wraps chart export failures. They never change the session
// beyond a notice.
var ErrExport = errors.New("chart export failed")

// Backend is the part of the analysis service the console calls.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*models.UploadResponse, error)
	Ask(ctx context.Context, datasetID, question string) (*models.AnswerResult, error)
	Schema(ctx context.Context, datasetID string) (*models.SchemaResponse, error)
	Cleanup(ctx context.Context) (int, error)
	ReportURL(datasetID string) string
	DownloadReport(ctx context.Context, datasetID string, w io.Writer) (string, error)
}

// Controller runs the console operations. It holds no per-session state; all
// of it lives in the session passed to each call.
type Controller struct {
	backend      Backend
	exporter     chart.Exporter
	files        storage.Store
	history      history.Recorder
	historyLimit int
	reportLink   func(sessionID, datasetID string) string
	now          func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithExporter sets the chart image exporter.
func WithExporter(e chart.Exporter) Option {
	return func(c *Controller) { c.exporter = e }
}

// WithFiles sets the store that receives exported images and reports.
func WithFiles(s storage.Store) Option {
	return func(c *Controller) { c.files = s }
}

// WithHistory records answered questions and shows the latest limit of them
// in every view.
func WithHistory(r history.Recorder, limit int) Option {
	return func(c *Controller) {
		c.history = r
		c.historyLimit = limit
	}
}

// WithReportLink sets the report link shown in views. By default the view
// links to the backend report URL.
func WithReportLink(fn func(sessionID, datasetID string) string) Option {
	return func(c *Controller) { c.reportLink = fn }
}

// New creates a Controller. Without WithExporter, charts are exported with a
// chart.Renderer.
func New(b Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:      b,
		exporter:     chart.NewRenderer(),
		historyLimit: history.DefaultLimit,
		now:          time.Now,
	}
	c.reportLink = func(_, datasetID string) string {
		return c.backend.ReportURL(datasetID)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitUpload sends the selected file to the backend. A missing or empty
// file is a no-op reported as upload.ErrEmptyFile. A failed upload is
// recorded in the session and also returned.
func (c *Controller) SubmitUpload(ctx context.Context, s *session.Session, name string, r io.Reader) error {
	if r == nil {
		return upload.ErrEmptyFile
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading selected file: %w", err)
	}
	sel, err := upload.Inspect(name, data)
	if err != nil {
		return err
	}

	log, ctx := logger.With(ctx, "session_id", s.ID())
	ticket := s.BeginUpload(sel)
	log.Info("uploading dataset", "file", sel.Name, "size", sel.Size, "kind", sel.Kind)

	resp, err := c.backend.Upload(ctx, sel.Name, bytes.NewReader(data))
	if err != nil {
		msg := backendMessage(err, UploadFailed)
		if !s.FailUpload(ticket, msg) {
			log.Debug("discarded stale upload failure", "seq", ticket.Seq)
		}
		log.Warn("upload failed", "file", sel.Name, "error", err)
		return err
	}

	if !s.CompleteUpload(ticket, resp) {
		log.Debug("discarded stale upload", "seq", ticket.Seq, "dataset_id", resp.DatasetID)
		return nil
	}
	log.Info("dataset ready", "dataset_id", resp.DatasetID, "rows", resp.Meta.Rows, "cols", resp.Meta.Cols)
	return nil
}

// SubmitQuestion asks a question about the active dataset. A blank question
// returns session.ErrEmptyQuestion and a question without a dataset returns
// session.ErrNoDataset; neither reaches the backend. A failed answer is
// recorded in the session and also returned.
func (c *Controller) SubmitQuestion(ctx context.Context, s *session.Session, question string) (*models.AnswerResult, error) {
	ticket, err := s.BeginAsk(question)
	if err != nil {
		return nil, err
	}

	log, ctx := logger.With(ctx, "session_id", s.ID(), "dataset_id", ticket.DatasetID)
	log.Info("asking question", "question", ticket.Question)

	res, err := c.backend.Ask(ctx, ticket.DatasetID, ticket.Question)
	if err != nil {
		if !s.FailAsk(ticket, backendMessage(err, AnswerFailed)) {
			log.Debug("discarded stale answer failure", "seq", ticket.Seq)
		}
		log.Warn("ask failed", "error", err)
		return nil, err
	}

	if !s.CompleteAsk(ticket, res) {
		log.Debug("discarded stale answer", "seq", ticket.Seq)
		return res, nil
	}
	if res.ChartError != "" {
		log.Warn("backend could not build chart", "error", res.ChartError)
	}
	if res.LLMError != "" {
		log.Warn("backend answered without language model", "error", res.LLMError)
	}

	if c.history != nil {
		entry := models.HistoryEntry{
			SessionID:   s.ID(),
			DatasetID:   ticket.DatasetID,
			Question:    ticket.Question,
			Answer:      res.Answer,
			HasChart:    !res.Figure.Empty(),
			PreviewRows: len(res.AggPreview),
			AskedAt:     c.now().UnixMilli(),
		}
		// The answer is already visible; the new entry needs a fresh view.
		if err := c.history.Record(ctx, entry); err != nil {
			log.Error("failed to record history", "error", err)
		} else {
			s.Invalidate()
		}
	}
	return res, nil
}

// DownloadReport fetches the report of the active dataset into w through the
// console's own backend session and returns its file name. Without a dataset
// it sets the notice and returns session.ErrNoDataset; a backend failure sets
// the notice and is returned.
func (c *Controller) DownloadReport(ctx context.Context, s *session.Session, w io.Writer) (string, error) {
	datasetID := s.DatasetID()
	if datasetID == "" {
		s.SetNotice(session.ErrNoDataset.Error())
		return "", session.ErrNoDataset
	}

	name, err := c.backend.DownloadReport(ctx, datasetID, w)
	if err != nil {
		logger.FromContext(ctx).Warn("report download failed", "session_id", s.ID(), "dataset_id", datasetID, "error", err)
		s.SetNotice(backendMessage(err, ReportFailed))
		return "", err
	}
	return name, nil
}

// SaveReport fetches the report of the active dataset into the file store.
func (c *Controller) SaveReport(ctx context.Context, s *session.Session) (*models.FileInfo, error) {
	if c.files == nil && s.DatasetID() != "" {
		return nil, errors.New("no file store configured")
	}

	var buf bytes.Buffer
	name, err := c.DownloadReport(ctx, s, &buf)
	if err != nil {
		return nil, err
	}

	info, err := c.files.Save(s.ID(), name, "text/html", &buf)
	if err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}
	logger.FromContext(ctx).Info("report saved", "session_id", s.ID(), "file", info.Name, "size", info.Size)
	return info, nil
}

// DownloadChartImage exports the rendered chart as a PNG and saves it to the
// file store.
func (c *Controller) DownloadChartImage(ctx context.Context, s *session.Session) (*models.FileInfo, error) {
	fig := s.Chart()
	if fig.Empty() {
		s.SetNotice(session.ErrNoChart.Error())
		return nil, session.ErrNoChart
	}
	if c.files == nil {
		return nil, errors.New("no file store configured")
	}

	log := logger.FromContext(ctx).With("session_id", s.ID())

	img, err := c.exporter.ExportPNG(ctx, fig, chart.ImageWidth, chart.ImageHeight)
	if err != nil {
		log.Warn("chart export failed", "error", err)
		s.SetNotice(ExportFailed)
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}

	info, err := c.files.Save(s.ID(), chartFilename(s.DatasetID(), c.now()), "image/png", bytes.NewReader(img))
	if err != nil {
		log.Error("failed to save chart image", "error", err)
		s.SetNotice(ExportFailed)
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	log.Info("chart exported", "file", info.Name, "size", info.Size)
	return info, nil
}

// LoadSchema refreshes the metadata of the active dataset from the backend.
func (c *Controller) LoadSchema(ctx context.Context, s *session.Session) error {
	datasetID := s.DatasetID()
	if datasetID == "" {
		s.SetNotice(session.ErrNoDataset.Error())
		return session.ErrNoDataset
	}

	resp, err := c.backend.Schema(ctx, datasetID)
	if err != nil {
		s.SetNotice(backendMessage(err, "Could not load the dataset schema."))
		return err
	}
	s.ReplaceMeta(datasetID, resp.Meta)
	return nil
}

// Cleanup asks the backend to drop expired uploads.
func (c *Controller) Cleanup(ctx context.Context) (int, error) {
	n, err := c.backend.Cleanup(ctx)
	if err != nil {
		return 0, err
	}
	logger.FromContext(ctx).Info("backend cleanup finished", "deleted", n)
	return n, nil
}

// View renders the session together with its report link and recent history.
func (c *Controller) View(ctx context.Context, s *session.Session) view.View {
	st := s.Snapshot()

	var opts view.Options
	if st.DatasetID != "" {
		opts.ReportURL = c.reportLink(st.ID, st.DatasetID)
		if c.history != nil {
			entries, err := c.history.List(ctx, st.ID, st.DatasetID, c.historyLimit)
			if err != nil {
				logger.FromContext(ctx).Error("failed to list history", "session_id", st.ID, "error", err)
			}
			opts.History = entries
		}
	}
	return view.Render(st, opts)
}

// Files lists the files saved for a session, newest first.
func (c *Controller) Files(sessionID string) ([]*models.FileInfo, error) {
	if c.files == nil {
		return nil, nil
	}
	return c.files.List(sessionID, 0)
}

// OpenFile opens a file saved for a session. Files of other sessions are
// reported as not found.
func (c *Controller) OpenFile(sessionID, fileID string) (io.ReadCloser, *models.FileInfo, error) {
	if c.files == nil {
		return nil, nil, storage.ErrNotFound
	}
	rc, info, err := c.files.Open(fileID)
	if err != nil {
		return nil, nil, err
	}
	if info.Owner != sessionID {
		rc.Close()
		return nil, nil, fmt.Errorf("%w: %s", storage.ErrNotFound, fileID)
	}
	return rc, info, nil
}

// Forget drops everything stored on behalf of a removed session.
func (c *Controller) Forget(ctx context.Context, sessionID string) {
	log := logger.FromContext(ctx)
	if c.files != nil {
		if n := c.files.DeleteOwner(sessionID); n > 0 {
			log.Debug("removed session files", "session_id", sessionID, "files", n)
		}
	}
	if c.history != nil {
		if _, err := c.history.DeleteSession(ctx, sessionID); err != nil {
			log.Error("failed to delete session history", "session_id", sessionID, "error", err)
		}
	}
}

// IsPrecondition reports whether err is a user action that was invalid in the
// session's current state.
func IsPrecondition(err error) bool {
	return errors.Is(err, session.ErrNoDataset) || errors.Is(err, session.ErrNoChart)
}

// backendMessage picks the text shown for a failed backend call: the
// backend's own message when it sent one, fallback otherwise.
func backendMessage(err error, fallback string) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}

func chartFilename(datasetID string, t time.Time) string {
	short := datasetID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("ADA_Chart_%s_%s.png", short, t.Format("20060102_150405"))
}
