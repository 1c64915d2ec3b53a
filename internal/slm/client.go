// Package slm pulls rendered patterns from the holotrain API and hands them
// to a spatial light modulator.
package slm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/persistence"
	"github.com/talgya/holotrain/internal/render"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name        string `json:"name"`
	Uptime      string `json:"uptime"`
	Patterns    int    `json:"patterns"`
	LastPattern string `json:"last_pattern"`
	Renders     int64  `json:"renders"`
	Rendering   bool   `json:"rendering"`
	SLM         string `json:"slm"`
	Strategy    string `json:"strategy"`
	Mode        string `json:"mode"`
}

// RenderRequest is the body of POST /api/v1/render. Zero values keep the
// server defaults.
type RenderRequest struct {
	Count      int     `json:"count,omitempty"`
	Seed       int64   `json:"seed,omitempty"`
	Texture    float64 `json:"texture,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	PhaseRange string  `json:"phase_range,omitempty"`
}

// RenderResult is the response from POST /api/v1/render.
type RenderResult struct {
	ID    string       `json:"id"`
	Stats render.Stats `json:"stats"`
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to a holotrain API server.
//
// HTTPClient carries the timeout for reads. Render goes through RenderClient,
// which has no client-wide timeout: the server renders under the request
// context, so dropping the connection cancels the render. A render is bounded
// by the caller's ctx and, when positive, RenderTimeout.
type Client struct {
	BaseURL       string
	AdminKey      string // Needed only for Render
	HTTPClient    *http.Client
	RenderClient  *http.Client
	RenderTimeout time.Duration
}

// NewClient creates a Client targeting the given API base URL.
func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		RenderClient: &http.Client{},
	}
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.fetchJSON(ctx, "/api/v1/status", &st); err != nil {
		return Status{}, fmt.Errorf("fetch status: %w", err)
	}
	return st, nil
}

// Info fetches the metadata of pattern id ("latest" for the newest).
func (c *Client) Info(ctx context.Context, id string) (persistence.PatternInfo, error) {
	var info persistence.PatternInfo
	if err := c.fetchJSON(ctx, "/api/v1/pattern/"+id, &info); err != nil {
		return persistence.PatternInfo{}, fmt.Errorf("fetch pattern info: %w", err)
	}
	return info, nil
}

// Fetch downloads pattern id and checks it against its metadata before
// returning it. "latest" is resolved once so info and data agree.
func (c *Client) Fetch(ctx context.Context, id string) (*encode.Pattern, error) {
	info, err := c.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := persistence.CheckShape(info.Width, info.Height); err != nil {
		return nil, fmt.Errorf("pattern %s: %w", info.ID, err)
	}
	meta, err := info.Meta()
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", info.ID, err)
	}

	path := "/api/v1/pattern/" + info.ID + "/data"
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if w := resp.Header.Get("X-Pattern-Width"); w != "" && w != strconv.Itoa(info.Width) {
		return nil, fmt.Errorf("pattern %s: data width %s, info width %d", info.ID, w, info.Width)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pattern data: %w", err)
	}
	values, err := persistence.UnmarshalValues(data, info.Width*info.Height)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", info.ID, err)
	}
	p, err := encode.NewPattern(info.Width, info.Height, values, meta)
	if err != nil {
		return nil, err
	}
	if err := encode.Validate(p); err != nil {
		return nil, fmt.Errorf("pattern %s: %w", info.ID, err)
	}
	return p, nil
}

// Render asks the server for a new pattern. It requires AdminKey.
func (c *Client) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RenderResult{}, fmt.Errorf("marshal render request: %w", err)
	}
	if c.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.RenderTimeout)
		defer cancel()
	}
	hc := c.RenderClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := c.send(ctx, hc, http.MethodPost, "/api/v1/render", body)
	if err != nil {
		return RenderResult{}, err
	}
	defer resp.Body.Close()

	var out RenderResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RenderResult{}, fmt.Errorf("decode render response: %w", err)
	}
	return out, nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// answers, ctx ends, or maxWait elapses.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(maxWait)

	for {
		if _, err := c.Status(ctx); err == nil {
			slog.Info("holotrain API is ready", "url", c.BaseURL)
			return nil
		} else if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("API at %s not ready after %s: %w", c.BaseURL, maxWait, err)
		}
		slog.Info("API not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxBackoff)
	}
}

// do sends one request on HTTPClient.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return c.send(ctx, c.HTTPClient, method, path, body)
}

// send turns any non-200 response into a StatusError. The caller closes the
// body of a successful response.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.AdminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (c *Client) fetchJSON(ctx context.Context, path string, target any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
