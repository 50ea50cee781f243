package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ada-analyst/console/internal/testutil"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("region,sales\nnorth,10\nsouth,20\n"), 0644))
	return path
}

func TestRun_UploadAskAndExport(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	outDir := t.TempDir()

	var out bytes.Buffer
	err := run(context.Background(), fake.Client(t), options{
		file:       writeDataset(t),
		questions:  []string{"Which region sells most?", "  "},
		reportPath: outDir,
		chartPath:  filepath.Join(outDir, "chart.png"),
	}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Rows: 3 • Columns: 2")
	assert.Contains(t, text, "A: South sells the most.")
	assert.Contains(t, text, "Preview rows: 2")
	assert.Len(t, fake.Questions(), 1)

	png, err := os.ReadFile(filepath.Join(outDir, "chart.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_UploadRejected(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.UploadStatus = http.StatusBadRequest
	fake.UploadError = "Unsupported type. Allowed: csv, xls, xlsx"

	var out bytes.Buffer
	err := run(context.Background(), fake.Client(t), options{
		file:      writeDataset(t),
		questions: []string{"ignored?"},
	}, &out)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out.String(), "Upload error: Unsupported type. Allowed: csv, xls, xlsx")
	assert.Empty(t, fake.Questions())
}

func TestRun_ChartWithoutAnswer(t *testing.T) {
	fake := testutil.NewFakeBackend(t)

	var out bytes.Buffer
	err := run(context.Background(), fake.Client(t), options{
		file:      writeDataset(t),
		chartPath: filepath.Join(t.TempDir(), "chart.png"),
	}, &out)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out.String(), "Chart: no chart to download yet")
}

func TestRun_CleanupOnly(t *testing.T) {
	fake := testutil.NewFakeBackend(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), fake.Client(t), options{cleanup: true}, &out))
	assert.Equal(t, "Deleted 2 expired uploads\n", out.String())
}

func TestRun_JSONOutput(t *testing.T) {
	fake := testutil.NewFakeBackend(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), fake.Client(t), options{file: writeDataset(t), asJSON: true}, &out))
	assert.Contains(t, out.String(), `"stage": "ready"`)
}

func TestQuestionsFlag(t *testing.T) {
	var q questions
	require.NoError(t, q.Set("a"))
	require.NoError(t, q.Set("b"))
	assert.Equal(t, "a; b", q.String())
}
