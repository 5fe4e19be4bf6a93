package linkyun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	apiPrefix       = "/api/v1"
	maxResponseSize = 10 * 1024 * 1024

	headerAPIKey    = "X-API-Key"
	headerWorkspace = "X-Workspace-Code"
)

var (
	// ErrMalformedResponse is returned when a body cannot be decoded into any accepted shape.
	ErrMalformedResponse = errors.New("linkyun: malformed response")
	// ErrMissingToken is returned when an upload succeeds without a file token.
	ErrMissingToken = errors.New("上传未返回 token")
)

// APIError is a non-2xx response, or a 2xx response carrying success:false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to the Linkyun REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu            sync.RWMutex
	apiKey        string
	workspaceCode string
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

func WithWorkspaceCode(code string) Option {
	return func(c *Client) { c.workspaceCode = strings.TrimSpace(code) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request. Zero or negative keeps the default of no client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New returns a client for the host at baseURL, e.g. https://linkyun.co.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.mu.Unlock()
}

func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *Client) WorkspaceCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workspaceCode
}

// URL resolves an API path (with or without the /api/v1 prefix) against the base URL.
// Absolute URLs are returned unchanged.
func (c *Client) URL(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.baseURL + p
}

func (c *Client) endpoint(p string, query url.Values) string {
	u := c.baseURL + apiPrefix + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON sends body (if any) as JSON and decodes the unwrapped payload into out (if any).
func (c *Client) doJSON(ctx context.Context, method, p string, query url.Values, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, p, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, query), r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	payload, err := c.send(req)
	if err != nil {
		return err
	}
	return decodeInto(payload, out)
}

// send applies auth headers, executes req and returns the unwrapped payload.
func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	if key := c.APIKey(); key != "" {
		req.Header.Set(headerAPIKey, key)
	}
	if ws := c.WorkspaceCode(); ws != "" {
		req.Header.Set(headerWorkspace, ws)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%s %s: response exceeds %d bytes", req.Method, req.URL.Path, maxResponseSize)
	}
	return unwrap(resp.StatusCode, body)
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *envelope) errorMessage() string {
	if e == nil || e.Error == nil {
		return ""
	}
	return strings.TrimSpace(e.Error.Message)
}

// unwrap applies the {success,data,error} envelope rules. Bodies that are not
// JSON objects are only accepted on 2xx and returned as is.
func unwrap(status int, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)

	var env *envelope
	if len(trimmed) > 0 && trimmed[0] == '{' {
		env = &envelope{}
		if err := json.Unmarshal(trimmed, env); err != nil {
			env = nil
		}
	}

	if status < 200 || status >= 300 {
		msg := env.errorMessage()
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return nil, &APIError{Status: status, Message: msg}
	}
	if env == nil {
		return json.RawMessage(trimmed), nil
	}
	if env.Success != nil && !*env.Success {
		msg := env.errorMessage()
		if msg == "" {
			msg = "请求失败"
		}
		return nil, &APIError{Status: status, Message: msg}
	}
	if len(env.Data) > 0 {
		return env.Data, nil
	}
	return json.RawMessage(trimmed), nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func decodeInto(raw json.RawMessage, out any) error {
	if out == nil || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// decodeList accepts a bare array or an object holding the array under one of keys.
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	t := bytes.TrimSpace(raw)
	if isNull(t) {
		return nil, nil
	}
	switch t[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(t, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(t, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		for _, k := range keys {
			v, ok := obj[k]
			if !ok || isNull(v) {
				continue
			}
			var out []T
			if err := json.Unmarshal(v, &out); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, k, err)
			}
			return out, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: expected list, got %.32s", ErrMalformedResponse, t)
}
