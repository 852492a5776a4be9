// Package backend is the REST client for the process that owns the vehicle
// links. Every call is a single request; retries are left to the caller.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Config for a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the backend REST API.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, http: hc}, nil
}

// do issues one request. in is encoded as JSON when non-nil; out is decoded
// from the response when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.BackendRequestLatency.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}()

	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} or falls back to the raw body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func vehiclePath(id string, parts ...string) string {
	return "/api/vehicles/" + url.PathEscape(id) + "/" + strings.Join(parts, "/")
}
