package view

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/upload"
)

func exampleMeta() *models.DatasetMeta {
	return &models.DatasetMeta{
		Rows:         10,
		Cols:         3,
		Columns:      []string{"a", "b", "c"},
		LogicalTypes: map[string]string{"a": "numeric"},
	}
}

func TestRenderMeta(t *testing.T) {
	s := RenderMeta(exampleMeta())
	require.NotNil(t, s)

	assert.Equal(t, "Rows: 10 • Columns: 3", s.Counts)
	assert.Equal(t, NoQuickTrend, s.QuickTrend)
	require.Len(t, s.Columns, 3)
	assert.Equal(t, "a / numeric", s.Columns[0].String())
	assert.Equal(t, ColumnCard{Name: "b", Type: ""}, s.Columns[1])
	assert.Equal(t, ColumnCard{Name: "c", Type: ""}, s.Columns[2])
}

func TestRenderMeta_QuickTrendAndNil(t *testing.T) {
	meta := exampleMeta()
	meta.Summary.QuickTrend = "a appears increasing over time (date)."

	assert.Equal(t, "a appears increasing over time (date).", RenderMeta(meta).QuickTrend)
	assert.Nil(t, RenderMeta(nil))
}

func TestRenderMeta_ReplacesPriorContent(t *testing.T) {
	first := RenderMeta(exampleMeta())
	second := RenderMeta(&models.DatasetMeta{Rows: 1, Cols: 1, Columns: []string{"z"}})

	assert.Len(t, first.Columns, 3)
	assert.Len(t, second.Columns, 1)
	assert.Equal(t, "Rows: 1 • Columns: 1", second.Counts)
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "", PreviewText(nil))
	assert.Equal(t, "", PreviewText([]map[string]any{}))
	assert.Equal(t, "Preview rows: 2", PreviewText([]map[string]any{{"a": 1}, {"a": 2}}))
}

func TestRender_Idle(t *testing.T) {
	v := Render(session.New("s1").Snapshot(), Options{ReportURL: "http://x/api/report/"})

	assert.Equal(t, models.StageIdle, v.Stage)
	assert.False(t, v.QuestionEnabled)
	assert.Nil(t, v.Summary)
	assert.Empty(t, v.ReportURL)
	assert.Empty(t, v.Answer.Text)
}

func TestRender_Answer(t *testing.T) {
	fig := &models.Figure{Data: json.RawMessage(`[{"type":"bar"}]`)}
	st := session.State{
		ID:        "s1",
		Stage:     models.StageReady,
		DatasetID: "d1",
		Meta:      exampleMeta(),
		Selected:  &upload.Selection{Name: "data.csv"},
		Chart:     fig,
		Answer: session.AnswerState{
			Question: "trend?",
			Result: &models.AnswerResult{
				Answer:             "",
				AggPreview:         []map[string]any{{"x": 1}, {"x": 2}, {"x": 3}},
				SuggestedQuestions: []string{"Top 10 products by revenue"},
			},
		},
	}

	v := Render(st, Options{ReportURL: "http://b/api/report/d1"})

	assert.True(t, v.QuestionEnabled)
	assert.Equal(t, NoAnswer, v.Answer.Text)
	assert.Equal(t, "Preview rows: 3", v.Preview)
	assert.Equal(t, fig, v.Chart)
	assert.Equal(t, "http://b/api/report/d1", v.ReportURL)
	assert.Equal(t, "Uploaded data.csv", v.Upload.Status)
	assert.Equal(t, []string{"Top 10 products by revenue"}, v.Suggestions)
}

func TestRender_ProcessingAndError(t *testing.T) {
	st := session.State{DatasetID: "d1", Answer: session.AnswerState{Question: "q", Processing: true}}
	v := Render(st, Options{})
	assert.Equal(t, ProcessingQuestion, v.Answer.Text)
	assert.True(t, v.Answer.Processing)

	st.Answer = session.AnswerState{Question: "q", Error: "Dataset not found"}
	v = Render(st, Options{})
	assert.Equal(t, "Dataset not found", v.Answer.Text)
	assert.True(t, v.Answer.IsError)
	assert.Empty(t, v.Preview)
}

func TestRender_Uploading(t *testing.T) {
	st := session.State{Stage: models.StageUploading, Selected: &upload.Selection{Name: "a.csv"}}
	v := Render(st, Options{})
	assert.Equal(t, UploadingFile, v.Upload.Status)

	st = session.State{Stage: models.StageIdle, UploadError: "Empty filename"}
	v = Render(st, Options{})
	assert.Equal(t, "Upload failed.", v.Upload.Status)
	assert.Equal(t, "Empty filename", v.Upload.Error)
}

func TestWriteText(t *testing.T) {
	st := session.State{
		Stage:     models.StageReady,
		DatasetID: "d1",
		Meta:      exampleMeta(),
		Notice:    "No chart to download yet",
		Answer:    session.AnswerState{Question: "q", Result: &models.AnswerResult{Answer: "Sales rose."}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Render(st, Options{})))

	out := buf.String()
	assert.Contains(t, out, "! No chart to download yet")
	assert.Contains(t, out, "Rows: 10 • Columns: 3")
	assert.Contains(t, out, "[a / numeric]")
	assert.Contains(t, out, "[b / ]")
	assert.Contains(t, out, "A: Sales rose.")
}
