package client

import (
	"bufio"
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

	"github.com/bterminal/bterminal/pkg/types"
)

// ErrNotFound is returned when the server reports an unknown session.
var ErrNotFound = errors.New("session not found")

// Client is an HTTP client for the bterminal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// streamClient has no overall timeout; used for /api/events.
	streamClient *http.Client
}

// NewClient creates a new bterminal API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	return c.do(ctx, c.httpClient, method, path, body)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w (status %d): %s", ErrNotFound, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// CreateSession starts a session. An empty id lets the server pick one.
func (c *Client) CreateSession(ctx context.Context, id string) (*types.SessionSummary, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/sessions", types.SessionCreateRequest{ID: id})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp)
	}

	var created types.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &created, nil
}

// ListSessions lists live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]types.SessionSummary, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var sessions []types.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return sessions, nil
}

// GetSession returns details for one session.
func (c *Client) GetSession(ctx context.Context, id string) (*types.SessionDetail, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var detail types.SessionDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &detail, nil
}

// DeleteSession kills a session's shell.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// AuditLog returns the most recent session lifetimes.
func (c *Client) AuditLog(ctx context.Context, limit int) ([]types.AuditRecord, error) {
	path := "/api/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var records []types.AuditRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}

// Events streams lifecycle events to fn until ctx is done, in which case it
// returns nil, or until the stream fails.
func (c *Client) Events(ctx context.Context, fn func(types.SessionEvent)) error {
	resp, err := c.do(ctx, c.streamClient, http.MethodGet, "/api/events", nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev types.SessionEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		fn(ev)
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return errors.New("event stream closed by server")
}
