// Package backend is the HTTP client for the ADA analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ada-analyst/console/internal/models"
)

// ErrTransport marks failures that never produced a usable backend answer:
// network errors, unreadable bodies, non-2xx responses without a message.
var ErrTransport = errors.New("backend transport error")

// Error is a non-2xx response carrying the backend's own error message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Client talks to the backend's /api endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets a per-request timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client. A cookie jar is added
// when the supplied client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Jar == nil {
			jar, _ := cookiejar.New(nil)
			hc.Jar = jar
		}
		c.http = hc
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url must be absolute: %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

// Upload sends a file as multipart field "file" to POST /api/upload.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*models.UploadResponse, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrTransport, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "upload"), body)
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out models.UploadResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask sends a question about a dataset to POST /api/ask.
func (c *Client) Ask(ctx context.Context, datasetID, question string) (*models.AnswerResult, error) {
	payload, err := json.Marshal(models.AskRequest{DatasetID: datasetID, Question: question})
	if err != nil {
		return nil, fmt.Errorf("encoding ask request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "ask"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building ask request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out models.AnswerResult
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Schema fetches the stored metadata of a dataset.
func (c *Client) Schema(ctx context.Context, datasetID string) (*models.SchemaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "datasets", datasetID, "schema"), nil)
	if err != nil {
		return nil, fmt.Errorf("building schema request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var out models.SchemaResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cleanup asks the backend to drop expired uploads and returns how many it
// removed.
func (c *Client) Cleanup(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "cleanup"), nil)
	if err != nil {
		return 0, fmt.Errorf("building cleanup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var out models.CleanupResponse
	if err := c.doJSON(req, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// ReportURL is the backend URL of a dataset's report. It needs the backend
// session, so browsers are served the report through the console instead.
func (c *Client) ReportURL(datasetID string) string {
	return c.endpoint("api", "report", datasetID)
}

// DownloadReport streams the report of a dataset into w and returns the file
// name suggested by the backend.
func (c *Client) DownloadReport(ctx context.Context, datasetID string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ReportURL(datasetID), nil)
	if err != nil {
		return "", fmt.Errorf("building report request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeError(resp)
	}
	// An expired or missing login ends on the login page, not the report.
	if strings.HasSuffix(resp.Request.URL.Path, "/login") {
		return "", &Error{Status: http.StatusUnauthorized, Message: "Login required to download the report."}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("%w: reading report: %v", ErrTransport, err)
	}

	return reportFilename(resp.Header.Get("Content-Disposition"), datasetID), nil
}

// Login opens an authenticated backend session. The session cookie is kept in
// the client's cookie jar and sent with every later request.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("login"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The login page answers with a redirect either way; only a redirect away
	// from /login means the credentials were accepted.
	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode <= 399 {
		if loc := resp.Header.Get("Location"); loc != "" && !strings.Contains(loc, "/login") {
			return nil
		}
	}
	return &Error{Status: http.StatusUnauthorized, Message: "invalid email or password"}
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("%w: status %d: %v", ErrTransport, resp.StatusCode, err)
	}

	var body models.ErrorResponse
	if json.Unmarshal(data, &body) == nil && strings.TrimSpace(body.Error) != "" {
		return &Error{Status: resp.StatusCode, Message: body.Error}
	}
	return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
}

func reportFilename(disposition, datasetID string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	short := datasetID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("ADA_Report_%s.html", short)
}
