package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrubline/backend/internal/ingest"
	"github.com/scrubline/backend/internal/models"
)

// UploadIDHeader names the request header carrying the caller's upload handle.
const UploadIDHeader = "X-Upload-ID"

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("client: not found")

// APIError carries a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("client: server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match a 404 APIError against ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the scrubline HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client rooted at baseURL. A nil httpClient uses a client
// without an overall timeout since uploads may take arbitrarily long.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Upload streams the file at path to the server as a multipart form.
func (c *Client) Upload(ctx context.Context, path, title string) (models.Video, error) {
	return c.UploadWithID(ctx, uuid.NewString(), path, title)
}

// UploadWithID is Upload under a caller-chosen UUID, so the ingestion can be
// watched with WatchIngestion while the request is still in flight.
func (c *Client) UploadWithID(ctx context.Context, uploadID, path, title string) (models.Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Video{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.UploadReader(ctx, uploadID, filepath.Base(path), title, f)
}

// UploadReader streams r to the server under filename without buffering it
// in memory. An empty uploadID leaves the handle to the server.
func (c *Client) UploadReader(ctx context.Context, uploadID, filename, title string, r io.Reader) (models.Video, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, filename, title, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos/upload", pr)
	if err != nil {
		pr.Close()
		return models.Video{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if uploadID != "" {
		req.Header.Set(UploadIDHeader, uploadID)
	}

	var video models.Video
	if err := c.do(req, &video); err != nil {
		pr.CloseWithError(err)
		return models.Video{}, err
	}
	return video, nil
}

func writeUploadForm(mw *multipart.Writer, filename, title string, r io.Reader) error {
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("video", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// List returns every video, newest first.
func (c *Client) List(ctx context.Context) ([]models.Video, error) {
	var videos []models.Video
	if err := c.getJSON(ctx, "/videos", &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// Get fetches a single video record.
func (c *Client) Get(ctx context.Context, id string) (models.Video, error) {
	var video models.Video
	if err := c.getJSON(ctx, "/videos/"+url.PathEscape(id), &video); err != nil {
		return models.Video{}, err
	}
	return video, nil
}

// Delete removes a video and its derived assets.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/videos/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	return c.do(req, nil)
}

// IngestionStatus reports the progress of a recent upload.
func (c *Client) IngestionStatus(ctx context.Context, id string) (ingest.Status, error) {
	var status ingest.Status
	if err := c.getJSON(ctx, "/ingestion/"+url.PathEscape(id), &status); err != nil {
		return ingest.Status{}, err
	}
	return status, nil
}

// WaitForIngestion polls until the ingestion of id leaves the running state.
func (c *Client) WaitForIngestion(ctx context.Context, id string, every time.Duration) (ingest.Status, error) {
	return c.WatchIngestion(ctx, id, every, nil)
}

// WatchIngestion polls the ingestion of id until it leaves the running state,
// calling fn whenever the stage or state changes. A 404 means the server has
// not started the run yet and polling continues.
func (c *Client) WatchIngestion(ctx context.Context, id string, every time.Duration, fn func(ingest.Status)) (ingest.Status, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last ingest.Status
	for {
		status, err := c.IngestionStatus(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return ingest.Status{}, err
		default:
			if fn != nil && (status.Stage != last.Stage || status.State != last.State) {
				fn(status)
			}
			last = status
			if status.State != ingest.StateRunning {
				return status, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
