package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/upload"
)

func uploadResp(id string) *models.UploadResponse {
	return &models.UploadResponse{
		DatasetID: id,
		Meta: models.DatasetMeta{
			Rows:         10,
			Cols:         3,
			Columns:      []string{"a", "b", "c"},
			LogicalTypes: map[string]string{"a": "numeric"},
		},
	}
}

func figure(title string) *models.Figure {
	return &models.Figure{
		Data:   json.RawMessage(`[{"type":"bar","x":["a"],"y":[1]}]`),
		Layout: json.RawMessage(`{"title":"` + title + `"}`),
	}
}

func readySession(t *testing.T, datasetID string) *Session {
	t.Helper()
	s := New("s1")
	tk := s.BeginUpload(&upload.Selection{Name: "data.csv"})
	require.True(t, s.CompleteUpload(tk, uploadResp(datasetID)))
	return s
}

func TestSession_StartsIdle(t *testing.T) {
	s := New("s1")
	st := s.Snapshot()

	assert.Equal(t, models.StageIdle, st.Stage)
	assert.Empty(t, st.DatasetID)
	assert.Nil(t, st.Meta)
}

func TestSession_UploadLifecycle(t *testing.T) {
	s := New("s1")
	sel := &upload.Selection{Name: "data.csv"}

	tk := s.BeginUpload(sel)
	st := s.Snapshot()
	assert.Equal(t, models.StageUploading, st.Stage)
	assert.Equal(t, sel, st.Selected)

	require.True(t, s.CompleteUpload(tk, uploadResp("d1")))
	st = s.Snapshot()
	assert.Equal(t, models.StageReady, st.Stage)
	assert.Equal(t, "d1", st.DatasetID)
	require.NotNil(t, st.Meta)
	assert.Equal(t, 10, st.Meta.Rows)
}

func TestSession_FailedUploadKeepsPriorDataset(t *testing.T) {
	s := readySession(t, "d1")

	tk := s.BeginUpload(&upload.Selection{Name: "bad.txt"})
	require.True(t, s.FailUpload(tk, "Unsupported type"))

	st := s.Snapshot()
	assert.Equal(t, models.StageReady, st.Stage)
	assert.Equal(t, "d1", st.DatasetID)
	assert.Equal(t, "Unsupported type", st.UploadError)
}

func TestSession_FailedFirstUploadReturnsToIdle(t *testing.T) {
	s := New("s1")
	tk := s.BeginUpload(&upload.Selection{Name: "bad.txt"})
	require.True(t, s.FailUpload(tk, "boom"))

	st := s.Snapshot()
	assert.Equal(t, models.StageIdle, st.Stage)
	assert.Empty(t, st.DatasetID)
}

func TestSession_NewUploadDiscardsAnswer(t *testing.T) {
	s := readySession(t, "d1")
	tk, err := s.BeginAsk("total sales?")
	require.NoError(t, err)
	require.True(t, s.CompleteAsk(tk, &models.AnswerResult{Answer: "42", Figure: figure("x")}))
	require.NotNil(t, s.Chart())

	up := s.BeginUpload(&upload.Selection{Name: "next.csv"})
	require.True(t, s.CompleteUpload(up, uploadResp("d2")))

	st := s.Snapshot()
	assert.Equal(t, "d2", st.DatasetID)
	assert.Nil(t, st.Answer.Result)
	assert.Nil(t, st.Chart)
}

func TestSession_StaleUploadIsDiscarded(t *testing.T) {
	s := New("s1")
	first := s.BeginUpload(&upload.Selection{Name: "first.csv"})
	second := s.BeginUpload(&upload.Selection{Name: "second.csv"})

	require.True(t, s.CompleteUpload(second, uploadResp("d2")))
	assert.False(t, s.CompleteUpload(first, uploadResp("d1")))
	assert.False(t, s.FailUpload(first, "late failure"))

	st := s.Snapshot()
	assert.Equal(t, "d2", st.DatasetID)
	assert.Empty(t, st.UploadError)
}

func TestSession_BlankQuestionIsNoop(t *testing.T) {
	s := New("s1")
	before := s.Version()

	_, err := s.BeginAsk("   \t\n")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, before, s.Version())
	assert.Empty(t, s.Snapshot().Notice)
}

func TestSession_QuestionWithoutDataset(t *testing.T) {
	s := New("s1")

	_, err := s.BeginAsk("anything?")
	assert.ErrorIs(t, err, ErrNoDataset)
	assert.Equal(t, ErrNoDataset.Error(), s.Snapshot().Notice)
}

func TestSession_AskShowsProcessingThenAnswer(t *testing.T) {
	s := readySession(t, "d1")

	tk, err := s.BeginAsk("  trend?  ")
	require.NoError(t, err)
	assert.Equal(t, "trend?", tk.Question)
	assert.Equal(t, "d1", tk.DatasetID)

	st := s.Snapshot()
	assert.True(t, st.Answer.Processing)
	assert.Equal(t, "trend?", st.Answer.Question)

	res := &models.AnswerResult{Answer: "Up.", Figure: figure("t")}
	require.True(t, s.CompleteAsk(tk, res))

	st = s.Snapshot()
	assert.False(t, st.Answer.Processing)
	assert.Equal(t, res, st.Answer.Result)
	assert.Equal(t, res.Figure, st.Chart)
	assert.Equal(t, "d1", st.DatasetID)
}

func TestSession_AnswerWithoutFigureKeepsChart(t *testing.T) {
	s := readySession(t, "d1")
	tk, _ := s.BeginAsk("q1")
	fig := figure("first")
	s.CompleteAsk(tk, &models.AnswerResult{Answer: "a1", Figure: fig})

	tk, _ = s.BeginAsk("q2")
	s.CompleteAsk(tk, &models.AnswerResult{Answer: "a2"})

	assert.Equal(t, fig, s.Chart())
}

func TestSession_FailedAskKeepsChart(t *testing.T) {
	s := readySession(t, "d1")
	tk, _ := s.BeginAsk("q1")
	fig := figure("first")
	s.CompleteAsk(tk, &models.AnswerResult{Answer: "a1", Figure: fig})

	tk, _ = s.BeginAsk("q2")
	require.True(t, s.FailAsk(tk, "Dataset not found"))

	st := s.Snapshot()
	assert.Equal(t, "Dataset not found", st.Answer.Error)
	assert.False(t, st.Answer.Processing)
	assert.Equal(t, fig, st.Chart)
	assert.Equal(t, "d1", st.DatasetID)
}

func TestSession_StaleAnswerIsDiscarded(t *testing.T) {
	s := readySession(t, "d1")

	first, _ := s.BeginAsk("first")
	second, _ := s.BeginAsk("second")

	require.True(t, s.CompleteAsk(second, &models.AnswerResult{Answer: "two"}))
	assert.False(t, s.CompleteAsk(first, &models.AnswerResult{Answer: "one"}))
	assert.False(t, s.FailAsk(first, "late"))

	st := s.Snapshot()
	assert.Equal(t, "two", st.Answer.Result.Answer)
	assert.Empty(t, st.Answer.Error)
}

func TestSession_AnswerForReplacedDatasetIsDiscarded(t *testing.T) {
	s := readySession(t, "d1")
	tk, _ := s.BeginAsk("q")

	up := s.BeginUpload(&upload.Selection{Name: "other.csv"})
	require.True(t, s.CompleteUpload(up, uploadResp("d2")))

	assert.False(t, s.CompleteAsk(tk, &models.AnswerResult{Answer: "old"}))
	assert.Nil(t, s.Snapshot().Answer.Result)
}

func TestSession_ReplaceMeta(t *testing.T) {
	s := readySession(t, "d1")

	assert.False(t, s.ReplaceMeta("other", models.DatasetMeta{Rows: 1}))
	assert.True(t, s.ReplaceMeta("d1", models.DatasetMeta{Rows: 99}))
	assert.Equal(t, 99, s.Snapshot().Meta.Rows)
}

func TestSession_Notice(t *testing.T) {
	s := New("s1")
	s.SetNotice("hello")
	assert.Equal(t, "hello", s.Snapshot().Notice)

	v := s.Version()
	s.ClearNotice()
	assert.Empty(t, s.Snapshot().Notice)
	assert.Greater(t, s.Version(), v)
}

func TestSession_Invalidate(t *testing.T) {
	s := New("s1")
	st := s.Snapshot()

	s.Invalidate()
	after := s.Snapshot()
	assert.Greater(t, after.Version, st.Version)
	st.Version, st.LastAccessed = after.Version, after.LastAccessed
	assert.Equal(t, st, after)
}
