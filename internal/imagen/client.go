// Package imagen implements the HTTP client for the external photo-editing
// service. The service drives a multi-phase workflow per project: upload,
// edit, export, download. Responses use inconsistent envelopes; see
// envelope.go for normalization.
package imagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("imagen: api key is required")

// Status is the normalized remote workflow status. Anything that is neither
// completed nor failed is still in progress and simply re-checked later.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// InProgress reports whether the remote phase is still running.
func (s Status) InProgress() bool {
	return s != StatusCompleted && s != StatusFailed
}

// FileLink pairs a remote filename with its temporary transfer URL.
type FileLink struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// Options configures the Client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	// MaxRetries bounds the retry loop for transient failures. 4xx responses
	// are never retried.
	MaxRetries uint64
}

// Client performs HTTP calls to the editing service, authenticated by API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	maxRetries uint64
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     opts.Logger,
		maxRetries: maxRetries,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateProject creates a new project and returns its identifier.
func (c *Client) CreateProject(ctx context.Context) (string, error) {
	raw, err := c.do(ctx, http.MethodPost, "/projects", nil, nil)
	if err != nil {
		return "", err
	}
	id := projectIDFrom(raw)
	if id == "" {
		return "", fmt.Errorf("imagen: create project response missing project id: %s", truncate(raw))
	}
	return id, nil
}

// UploadLinks requests temporary upload links for the given filenames in one
// batched call. The result maps each filename to its link; filenames the
// service did not answer for are simply absent.
func (c *Client) UploadLinks(ctx context.Context, projectID string, filenames []string) (map[string]string, error) {
	type fileEntry struct {
		FileName string `json:"file_name"`
	}
	payload := struct {
		Files []fileEntry `json:"files_list"`
	}{}
	for _, name := range filenames {
		payload.Files = append(payload.Files, fileEntry{FileName: name})
	}

	var body struct {
		Files []struct {
			FileName   string `json:"file_name"`
			UploadLink string `json:"upload_link"`
			URL        string `json:"url"`
		} `json:"files_list"`
	}
	raw, err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/get_temporary_upload_links", payload, nil)
	if err != nil {
		return nil, err
	}
	if err := decode(raw, &body); err != nil {
		return nil, err
	}
	links := make(map[string]string, len(body.Files))
	for _, f := range body.Files {
		link := f.UploadLink
		if link == "" {
			link = f.URL
		}
		links[f.FileName] = link
	}
	return links, nil
}

// UploadFile PUTs file bytes to a presigned upload link.
func (c *Client) UploadFile(ctx context.Context, link string, data []byte) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, link, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("imagen: build upload request: %w", err)
		}
		req.ContentLength = int64(len(data))
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("imagen: upload: %w", err))
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			err := fmt.Errorf("imagen: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// StartEdit begins editing the project with the given profile. This is the
// only call that carries the profile key; project creation deliberately does
// not.
func (c *Client) StartEdit(ctx context.Context, projectID, profileKey string) error {
	payload := map[string]string{"profile_key": profileKey}
	_, err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/edit", payload, nil)
	return err
}

// EditStatus queries the status of the edit phase.
func (c *Client) EditStatus(ctx context.Context, projectID string) (Status, error) {
	return c.status(ctx, "/projects/"+projectID+"/edit/status")
}

// StartExport begins rendering final output images. The idempotency key keeps
// a re-sent request (after a crashed status write) from starting a second
// export.
func (c *Client) StartExport(ctx context.Context, projectID, idempotencyKey string) error {
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	_, err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/export", nil, headers)
	return err
}

// ExportStatus queries the status of the export phase.
func (c *Client) ExportStatus(ctx context.Context, projectID string) (Status, error) {
	return c.status(ctx, "/projects/"+projectID+"/export/status")
}

// ExportLinks fetches temporary download links for the rendered output files.
// This is the export endpoint; the edit-phase link endpoint only serves XMP
// sidecars, which are not usable images.
func (c *Client) ExportLinks(ctx context.Context, projectID string) ([]FileLink, error) {
	var body struct {
		Files []struct {
			FileName     string `json:"file_name"`
			DownloadLink string `json:"download_link"`
			URL          string `json:"url"`
		} `json:"files_list"`
	}
	raw, err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/export/get_temporary_download_links", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := decode(raw, &body); err != nil {
		return nil, err
	}
	links := make([]FileLink, 0, len(body.Files))
	for _, f := range body.Files {
		url := f.DownloadLink
		if url == "" {
			url = f.URL
		}
		links = append(links, FileLink{FileName: f.FileName, URL: url})
	}
	return links, nil
}

// Download fetches the bytes behind a temporary download link.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("imagen: build download request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("imagen: download: %w", err))
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			err := fmt.Errorf("imagen: download status %d", resp.StatusCode)
			if resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("imagen: read download: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) status(ctx context.Context, path string) (Status, error) {
	var body struct {
		Status string `json:"status"`
	}
	raw, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", err
	}
	if err := decode(raw, &body); err != nil {
		return "", err
	}
	return Status(strings.ToLower(strings.TrimSpace(body.Status))), nil
}

// do performs one authenticated API call, retrying transport failures and
// 5xx responses with exponential backoff. 4xx responses fail immediately,
// carrying the status code and body text for the job's error field.
func (c *Client) do(ctx context.Context, method, path string, payload any, headers map[string]string) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("imagen: encode request: %w", err)
		}
	}

	var raw []byte
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("imagen: build request: %w", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("imagen: http request: %w", err))
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("imagen: read response: %w", err))
		}
		if resp.StatusCode >= 300 {
			err := fmt.Errorf("imagen: %s %s status %d: %s", method, path, resp.StatusCode, truncate(raw))
			if resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("method", method).Str("path", path).Msg("imagen call")
	return raw, nil
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
