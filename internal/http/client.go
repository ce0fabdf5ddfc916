package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// APIPrefix is prepended to every endpoint path.
	APIPrefix = "/api/v1"

	// DefaultUserAgent identifies the client to the backend.
	DefaultUserAgent = "vasset-downloader"

	// DefaultTimeout bounds a single request, body included.
	DefaultTimeout = 30 * time.Second
)

// TokenStore is the credential store shared with the progress channel.
type TokenStore interface {
	Token() string
	SetTokens(token, refreshToken string) error
	Clear() error
}

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. http://localhost:8080.
	BaseURL string

	// Tokens supplies the bearer credential. It is cleared when the
	// backend answers 401.
	Tokens TokenStore

	Timeout   time.Duration
	UserAgent string

	// HTTPClient overrides the underlying client. Timeout is ignored when
	// it is set.
	HTTPClient *http.Client
}

// Client talks to the media backend.
//
// Every response is an envelope {code, message, data}; a non-zero code is
// a failure even when the HTTP status is 200.
//
// Example usage:
//
//	client := NewClient(Options{BaseURL: "http://localhost:8080", Tokens: store})
//
//	media, err := client.Parse(ctx, "https://www.youtube.com/watch?v=abc", false)
//	ticket, err := client.SubmitDownload(ctx, model.DownloadRequest{...})
//	path, err := client.DownloadFile(ctx, ticket.HistoryID, "/downloads", nil)
type Client struct {
	baseURL    string
	tokens     TokenStore
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client for the backend at opts.BaseURL.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		tokens:     opts.Tokens,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// APIError is a failure reported by the backend.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != 0 {
		return fmt.Sprintf("backend error %d (HTTP %d)", e.Code, e.HTTPStatus)
	}
	return fmt.Sprintf("HTTP %d", e.HTTPStatus)
}

// ServerMessage returns the message written by the backend, possibly empty.
func (e *APIError) ServerMessage() string { return e.Message }

// Unauthorized reports whether the backend rejected the credential.
func (e *APIError) Unauthorized() bool { return e.HTTPStatus == http.StatusUnauthorized }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ProgressWriter wraps a writer to track transfer progress.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: file,
//	    Total:  contentLength,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, response.Body)
type ProgressWriter struct {
	Writer io.Writer

	// Total is the expected size, -1 when unknown.
	Total   int64
	Written int64

	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// GetBytes fetches an absolute URL without credentials. It is used for
// thumbnails hosted outside the backend.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// do performs a JSON request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	logger := log.WithFields(log.Fields{
		"method":     method,
		"path":       path,
		"request_id": req.Header.Get("X-Request-ID"),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Backend request failed")
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := c.check(resp.StatusCode, data); err != nil {
		logger.WithError(err).WithField("status", resp.StatusCode).Debug("Backend rejected request")
		return err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// check turns an HTTP status and envelope into an *APIError, clearing the
// credential on 401.
func (c *Client) check(status int, data []byte) error {
	if status == http.StatusUnauthorized && c.tokens != nil {
		if err := c.tokens.Clear(); err != nil {
			log.WithError(err).Warn("Failed to clear rejected credential")
		}
	}

	var env envelope
	decoded := json.Unmarshal(data, &env) == nil
	if status >= http.StatusBadRequest {
		apiErr := &APIError{HTTPStatus: status}
		if decoded {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		}
		return apiErr
	}
	if decoded && env.Code != 0 {
		return &APIError{HTTPStatus: status, Code: env.Code, Message: env.Message}
	}
	return nil
}
