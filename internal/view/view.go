// Package view turns a session state into a description of what the console
// shows. Rendering is pure: the same state always yields the same view.
package view

import (
	"fmt"

	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/upload"
)

// Placeholder texts shown when the backend leaves a field empty or a request
// is still in flight.
const (
	NoQuickTrend       = "No quick trend available."
	NoAnswer           = "No answer returned."
	ProcessingQuestion = "Processing your question..."
	UploadingFile      = "Uploading..."
)

// View is everything the console renders for one session.
type View struct {
	SessionID       string                `json:"sessionId"`
	Stage           models.Stage          `json:"stage"`
	Version         uint64                `json:"version"`
	DatasetID       string                `json:"datasetId,omitempty"`
	Upload          UploadPanel           `json:"upload"`
	Summary         *Summary              `json:"summary,omitempty"`
	QuestionEnabled bool                  `json:"questionEnabled"`
	Answer          AnswerPanel           `json:"answer"`
	Chart           *models.Figure        `json:"chart,omitempty"`
	Preview         string                `json:"preview"`
	Suggestions     []string              `json:"suggestions,omitempty"`
	History         []models.HistoryEntry `json:"history,omitempty"`
	ReportURL       string                `json:"reportUrl,omitempty"`
	Notice          string                `json:"notice,omitempty"`
}

// UploadPanel is the file selection and upload status area.
type UploadPanel struct {
	Selected *upload.Selection `json:"selected,omitempty"`
	Status   string            `json:"status,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Summary is the dataset metadata area.
type Summary struct {
	Counts     string       `json:"counts"`
	QuickTrend string       `json:"quickTrend"`
	Columns    []ColumnCard `json:"columns"`
}

// ColumnCard shows one column and its logical type.
type ColumnCard struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (c ColumnCard) String() string {
	return c.Name + " / " + c.Type
}

// AnswerPanel is the answer text area.
type AnswerPanel struct {
	Question   string `json:"question,omitempty"`
	Text       string `json:"text"`
	Processing bool   `json:"processing"`
	IsError    bool   `json:"isError"`
}

// Options carries the parts of a view that do not live in the session.
type Options struct {
	ReportURL string
	History   []models.HistoryEntry
}

// Render builds the view of a session state.
func Render(st session.State, opts Options) View {
	v := View{
		SessionID:       st.ID,
		Stage:           st.Stage,
		Version:         st.Version,
		DatasetID:       st.DatasetID,
		Upload:          renderUpload(st),
		Summary:         RenderMeta(st.Meta),
		QuestionEnabled: st.DatasetID != "",
		Answer:          renderAnswer(st.Answer),
		Chart:           st.Chart,
		Notice:          st.Notice,
		History:         opts.History,
	}

	if st.DatasetID != "" {
		v.ReportURL = opts.ReportURL
	}

	if res := st.Answer.Result; res != nil {
		v.Preview = PreviewText(res.AggPreview)
		v.Suggestions = res.SuggestedQuestions
	}
	return v
}

// RenderMeta renders the dataset summary. A nil meta renders nothing.
func RenderMeta(meta *models.DatasetMeta) *Summary {
	if meta == nil {
		return nil
	}

	s := &Summary{
		Counts:     fmt.Sprintf("Rows: %d • Columns: %d", meta.Rows, meta.Cols),
		QuickTrend: meta.Summary.QuickTrend,
		Columns:    make([]ColumnCard, 0, len(meta.Columns)),
	}
	if s.QuickTrend == "" {
		s.QuickTrend = NoQuickTrend
	}
	for _, col := range meta.Columns {
		s.Columns = append(s.Columns, ColumnCard{Name: col, Type: meta.LogicalType(col)})
	}
	return s
}

// PreviewText describes an aggregate preview. An empty preview clears the
// area.
func PreviewText(rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}
	return fmt.Sprintf("Preview rows: %d", len(rows))
}

func renderUpload(st session.State) UploadPanel {
	p := UploadPanel{Selected: st.Selected, Error: st.UploadError}
	switch {
	case st.Stage == models.StageUploading:
		p.Status = UploadingFile
	case st.UploadError != "":
		p.Status = "Upload failed."
	case st.DatasetID != "" && st.Selected != nil:
		p.Status = "Uploaded " + st.Selected.Name
	}
	return p
}

func renderAnswer(a session.AnswerState) AnswerPanel {
	p := AnswerPanel{Question: a.Question}
	switch {
	case a.Processing:
		p.Text = ProcessingQuestion
		p.Processing = true
	case a.Error != "":
		p.Text = a.Error
		p.IsError = true
	case a.Result != nil:
		p.Text = a.Result.Answer
		if p.Text == "" {
			p.Text = NoAnswer
		}
	}
	return p
}
