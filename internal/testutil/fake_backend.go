// fake_backend.go - In-process stand-in for the analysis backend
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ada-analyst/console/internal/backend"
	"github.com/ada-analyst/console/internal/models"
)

// SampleFigure is a small bar chart in the backend's figure format.
const SampleFigure = `{"data":[{"type":"bar","x":["north","south"],"y":[10,20]}],"layout":{"title":{"text":"Sales by region"}}}`

// FakeBackend serves the backend's /api routes from canned responses. Zero
// values give a backend that accepts every upload and answers every
// question.
type FakeBackend struct {
	Server *httptest.Server

	mu        sync.Mutex
	uploads   []string
	questions []models.AskRequest
	datasets  int

	// Meta is returned for every successful upload and schema request.
	Meta models.DatasetMeta
	// Answer is returned for every question.
	Answer models.AnswerResult
	// UploadStatus/UploadError make uploads fail with {error}.
	UploadStatus int
	UploadError  string
	// AskStatus/AskError make questions fail with {error}.
	AskStatus int
	AskError  string
	// AskGate, when set, holds every question until a value is received.
	AskGate chan struct{}
	// UploadGate, when set, holds every upload until a value is received.
	UploadGate chan struct{}

	// credentials, when set by RequireLogin, guard the report route.
	email, password string
}

const sessionCookie = "fake-session"

// RequireLogin makes the report route redirect to /login unless the request
// carries the session cookie handed out for email and password.
func (f *FakeBackend) RequireLogin(email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email, f.password = email, password
}

func (f *FakeBackend) loggedIn(r *http.Request) bool {
	f.mu.Lock()
	required := f.email != ""
	f.mu.Unlock()
	if !required {
		return true
	}
	ck, err := r.Cookie("session")
	return err == nil && ck.Value == sessionCookie
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		Meta: models.DatasetMeta{
			Rows:         3,
			Cols:         2,
			Columns:      []string{"region", "sales"},
			LogicalTypes: map[string]string{"region": "categorical", "sales": "numeric"},
			Summary:      models.DatasetSummary{QuickTrend: "sales appears stable."},
		},
		Answer: models.AnswerResult{
			Answer:     "South sells the most.",
			Figure:     MustFigure(SampleFigure),
			AggPreview: []map[string]any{{"region": "north"}, {"region": "south"}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", f.handleUpload)
	mux.HandleFunc("/api/ask", f.handleAsk)
	mux.HandleFunc("/api/datasets/", f.handleSchema)
	mux.HandleFunc("/api/cleanup", f.handleCleanup)
	mux.HandleFunc("/api/report/", f.handleReport)
	mux.HandleFunc("/login", f.handleLogin)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns a backend client pointed at the fake.
func (f *FakeBackend) Client(t *testing.T) *backend.Client {
	t.Helper()
	c, err := backend.NewClient(f.Server.URL)
	if err != nil {
		t.Fatalf("creating backend client: %v", err)
	}
	return c
}

// Uploads returns the names of uploaded files in arrival order.
func (f *FakeBackend) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// Questions returns the received questions in arrival order.
func (f *FakeBackend) Questions() []models.AskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AskRequest(nil), f.questions...)
}

func (f *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	file.Close()

	f.mu.Lock()
	f.uploads = append(f.uploads, header.Filename)
	f.datasets++
	id := fmt.Sprintf("dataset-%04d-%s", f.datasets, strings.TrimSuffix(header.Filename, ".csv"))
	gate, status, msg, meta := f.UploadGate, f.UploadStatus, f.UploadError, f.Meta
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, models.UploadResponse{DatasetID: id, Meta: meta})
}

func (f *FakeBackend) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	f.mu.Lock()
	f.questions = append(f.questions, req)
	gate, status, msg, answer := f.AskGate, f.AskStatus, f.AskError, f.Answer
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, answer)
}

func (f *FakeBackend) handleSchema(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/datasets/"), "/schema")
	f.mu.Lock()
	meta := f.Meta
	f.mu.Unlock()
	writeJSON(w, models.SchemaResponse{DatasetID: id, Meta: meta})
}

func (f *FakeBackend) handleCleanup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.CleanupResponse{Deleted: 2})
}

func (f *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>login page</body></html>")
		return
	}
	r.ParseForm()
	f.mu.Lock()
	ok := r.FormValue("email") == f.email && r.FormValue("password") == f.password
	f.mu.Unlock()
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: sessionCookie, Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (f *FakeBackend) handleReport(w http.ResponseWriter, r *http.Request) {
	if !f.loggedIn(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/report/")
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ADA_Report_%s.html", short))
	w.Header().Set("Content-Type", "text/html")
	io.WriteString(w, "<html><body>report "+id+"</body></html>")
}

// MustFigure decodes a figure literal.
func MustFigure(s string) *models.Figure {
	var fig models.Figure
	if err := json.Unmarshal([]byte(s), &fig); err != nil {
		panic(err)
	}
	return &fig
}

// FailingExporter is a chart exporter that always fails.
type FailingExporter struct{}

func (FailingExporter) ExportPNG(ctx context.Context, fig *models.Figure, width, height int) ([]byte, error) {
	return nil, fmt.Errorf("renderer unavailable")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if msg == "" {
		// A body without a message is treated as a transport failure.
		io.WriteString(w, "upstream failure")
		return
	}
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}
