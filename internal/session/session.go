package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/upload"
)

// Precondition errors. They are raised before any backend call.
var (
	ErrNoDataset = errors.New("please upload a dataset first")
	ErrNoChart   = errors.New("no chart to download yet")
)

// ErrEmptyQuestion is returned for a blank question. Callers treat it as a
// no-op, not a failure.
var ErrEmptyQuestion = errors.New("question is empty")

// UploadTicket identifies one upload attempt.
type UploadTicket struct {
	Seq uint64
}

// AskTicket identifies one question attempt and the dataset it was asked
// against.
type AskTicket struct {
	Seq       uint64
	DatasetID string
	Question  string
}

// AnswerState is the answer sub-state of a ready session.
type AnswerState struct {
	Question   string
	Processing bool
	Result     *models.AnswerResult
	Error      string
}

// State is an immutable copy of a session, safe to render.
type State struct {
	ID           string
	Stage        models.Stage
	DatasetID    string
	Meta         *models.DatasetMeta
	Selected     *upload.Selection
	UploadError  string
	Answer       AnswerState
	Chart        *models.Figure
	Notice       string
	Version      uint64
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Session is one user's upload/ask workflow. All methods are safe for
// concurrent use. Overlapping requests are sequenced: only the most recent
// upload and the most recent question may change the session when their
// responses arrive.
type Session struct {
	mu sync.Mutex

	id        string
	stage     models.Stage
	datasetID string
	meta      *models.DatasetMeta
	selected  *upload.Selection
	uploadErr string
	answer    AnswerState
	chart     *models.Figure
	notice    string

	uploadSeq uint64
	askSeq    uint64
	version   uint64

	createdAt    time.Time
	lastAccessed time.Time
}

// New creates an idle session.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		stage:        models.StageIdle,
		createdAt:    now,
		lastAccessed: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// DatasetID returns the active dataset handle, or "" before the first
// successful upload.
func (s *Session) DatasetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datasetID
}

// Chart returns the currently rendered chart, or nil.
func (s *Session) Chart() *models.Figure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chart
}

// Version increases on every visible change.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccessed = time.Now()
	s.mu.Unlock()
}

// LastAccessed returns the time of the last recorded activity.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// Snapshot copies the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		ID:           s.id,
		Stage:        s.stage,
		DatasetID:    s.datasetID,
		Meta:         s.meta,
		Selected:     s.selected,
		UploadError:  s.uploadErr,
		Answer:       s.answer,
		Chart:        s.chart,
		Notice:       s.notice,
		Version:      s.version,
		CreatedAt:    s.createdAt,
		LastAccessed: s.lastAccessed,
	}
}

// BeginUpload moves the session to Uploading for the given selection. The
// previous dataset stays active until the upload succeeds.
func (s *Session) BeginUpload(sel *upload.Selection) UploadTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploadSeq++
	s.stage = models.StageUploading
	s.selected = sel
	s.uploadErr = ""
	s.notice = ""
	s.changed()

	return UploadTicket{Seq: s.uploadSeq}
}

// CompleteUpload applies a successful upload. It reports false when a newer
// upload has started since the ticket was issued; the response is then
// discarded.
func (s *Session) CompleteUpload(t UploadTicket, resp *models.UploadResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Seq != s.uploadSeq {
		return false
	}

	meta := resp.Meta
	s.datasetID = resp.DatasetID
	s.meta = &meta
	s.stage = models.StageReady
	s.uploadErr = ""

	// A new dataset invalidates the answer view and any question still in
	// flight against the old one.
	s.askSeq++
	s.answer = AnswerState{}
	s.chart = nil
	s.changed()
	return true
}

// FailUpload records a failed upload. The prior dataset, if any, stays
// active.
func (s *Session) FailUpload(t UploadTicket, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Seq != s.uploadSeq {
		return false
	}

	s.uploadErr = message
	if s.datasetID != "" {
		s.stage = models.StageReady
	} else {
		s.stage = models.StageIdle
	}
	s.changed()
	return true
}

// BeginAsk validates a question and shows the processing placeholder. A blank
// question returns ErrEmptyQuestion and changes nothing; a question without a
// dataset returns ErrNoDataset and sets the notice.
func (s *Session) BeginAsk(question string) (AskTicket, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskTicket{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.datasetID == "" {
		s.notice = ErrNoDataset.Error()
		s.changed()
		return AskTicket{}, ErrNoDataset
	}

	s.askSeq++
	s.notice = ""
	s.answer = AnswerState{
		Question:   question,
		Processing: true,
		Result:     s.answer.Result,
	}
	s.changed()

	return AskTicket{Seq: s.askSeq, DatasetID: s.datasetID, Question: question}, nil
}

// CompleteAsk applies an answer. A figure replaces the rendered chart; an
// answer without one leaves the chart as it was. Stale tickets are discarded.
func (s *Session) CompleteAsk(t AskTicket, res *models.AnswerResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Seq != s.askSeq || t.DatasetID != s.datasetID {
		return false
	}

	s.answer = AnswerState{Question: t.Question, Result: res}
	if !res.Figure.Empty() {
		s.chart = res.Figure
	}
	s.changed()
	return true
}

// FailAsk shows an error in place of the answer. The chart is left unchanged.
func (s *Session) FailAsk(t AskTicket, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Seq != s.askSeq || t.DatasetID != s.datasetID {
		return false
	}

	s.answer = AnswerState{Question: t.Question, Error: message}
	s.changed()
	return true
}

// ReplaceMeta refreshes the metadata of the active dataset. It is ignored if
// the dataset changed in the meantime.
func (s *Session) ReplaceMeta(datasetID string, meta models.DatasetMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if datasetID == "" || datasetID != s.datasetID {
		return false
	}
	s.meta = &meta
	s.changed()
	return true
}

// SetNotice shows a blocking notice to the user.
func (s *Session) SetNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
	s.changed()
}

// ClearNotice dismisses the current notice.
func (s *Session) ClearNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == "" {
		return
	}
	s.notice = ""
	s.changed()
}

// Invalidate bumps the version without changing the session, so views that
// also show data kept elsewhere, such as the question history, are rebuilt.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed()
}

// changed must be called with mu held.
func (s *Session) changed() {
	s.version++
	s.lastAccessed = time.Now()
}
