package remote

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
	"time"

	"lapse-go/internal/lapse"
)

// Client talks to the lapse server's JSON API. It implements both
// lapse.DeviceRegistry and lapse.DraftService.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var (
	_ lapse.DeviceRegistry = (*Client)(nil)
	_ lapse.DraftService   = (*Client)(nil)
)

// NewClient creates a Client for the server at baseURL, authenticating with
// a bearer token. A nil httpClient uses a client with a 30s timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  httpClient,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server returned %d (%s)", e.Method, e.Path, e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// Register creates a device record and returns the server-assigned ID.
func (c *Client) Register(ctx context.Context, name string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/devices", map[string]string{"name": name}, &resp); err != nil {
		return "", fmt.Errorf("registering device: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("registering device: server returned an empty id")
	}
	return resp.ID, nil
}

// Validate reports whether the server still knows the device. A 404 is a
// definite "no"; other failures are errors.
func (c *Client) Validate(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/api/devices/"+url.PathEscape(id), nil, nil)
	if err == nil {
		return true, nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("validating device: %w", err)
}

// CreateDraft asks the server for a draft and its upload destinations.
func (c *Client) CreateDraft(ctx context.Context, req lapse.DraftRequest) (*lapse.Draft, error) {
	var draft lapse.Draft
	if err := c.do(ctx, http.MethodPost, "/api/drafts", req, &draft); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}
	if draft.ID == "" {
		return nil, fmt.Errorf("creating draft: server returned an empty id")
	}
	return &draft, nil
}

// CommitDraft records the final sizes once both uploads have landed.
func (c *Client) CommitDraft(ctx context.Context, id string, meta lapse.DraftMetadata) error {
	if err := c.do(ctx, http.MethodPost, "/api/drafts/"+url.PathEscape(id)+"/commit", meta, nil); err != nil {
		return fmt.Errorf("committing draft %s: %w", id, err)
	}
	return nil
}
