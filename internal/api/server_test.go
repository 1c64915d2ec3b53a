package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/holotrain/internal/api"
	"github.com/talgya/holotrain/internal/optics"
	"github.com/talgya/holotrain/internal/persistence"
	"github.com/talgya/holotrain/internal/render"
	"github.com/talgya/holotrain/internal/scene"
)

func newServer(t *testing.T) (*api.Server, *httptest.Server) {
	return newServerWithKey(t, "secret")
}

func newServerWithKey(t *testing.T, key string) (*api.Server, *httptest.Server) {
	return newServerWith(t, func(s *api.Server) { s.AdminKey = key })
}

// newServerWith lets tweak adjust the server before it starts serving.
func newServerWith(t *testing.T, tweak func(*api.Server)) (*api.Server, *httptest.Server) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := optics.SmallTestConfig()
	cfg.Width, cfg.Height = 16, 16
	gen := scene.SmallTestConfig()
	gen.Count = 20

	s := &api.Server{
		DB:         db,
		AdminKey:   "secret",
		Optics:     cfg,
		Scene:      gen,
		Render:     render.DefaultOptions(),
		MaxSources: 1000,
		DataRate:   2,
	}
	tweak(s)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func seed(t *testing.T, s *api.Server) string {
	t.Helper()
	cat := scene.Generate(s.Scene)
	p, st, err := render.Render(context.Background(), cat, s.Optics, s.Render)
	require.NoError(t, err)
	id, err := s.DB.SaveRender(p, st)
	require.NoError(t, err)
	return id
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatusAndListing(t *testing.T) {
	s, ts := newServer(t)
	id := seed(t, s)

	var status map[string]any
	decode(t, get(t, ts.URL+"/api/v1/status"), &status)
	assert.Equal(t, "holotrain", status["name"])
	assert.Equal(t, float64(1), status["patterns"])
	assert.Equal(t, id, status["last_pattern"])

	var list []persistence.PatternInfo
	decode(t, get(t, ts.URL+"/api/v1/patterns?limit=5"), &list)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 16, list[0].Width)

	var info persistence.PatternInfo
	decode(t, get(t, ts.URL+"/api/v1/pattern/latest"), &info)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "phase", info.Mode)

	var runs []map[string]any
	decode(t, get(t, ts.URL+"/api/v1/runs"), &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0]["pattern_id"])
}

func TestPatternDataAndRateLimit(t *testing.T) {
	s, ts := newServer(t)
	id := seed(t, s)

	resp := get(t, ts.URL+"/api/v1/pattern/"+id+"/data")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "16", resp.Header.Get("X-Pattern-Width"))
	assert.Equal(t, "phase", resp.Header.Get("X-Pattern-Mode"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 8*16*16)

	want, err := s.DB.LoadPattern(id)
	require.NoError(t, err)
	values, err := persistence.UnmarshalValues(body, 16*16)
	require.NoError(t, err)
	assert.Equal(t, want.Values(), values)

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/api/v1/pattern/"+id+"/data").StatusCode)
	limited := get(t, ts.URL+"/api/v1/pattern/"+id+"/data")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))
}

func getFrom(t *testing.T, url, forwardedFor string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestForwardedForCannotDodgeRateLimit(t *testing.T) {
	s, ts := newServer(t)
	id := seed(t, s)
	url := ts.URL + "/api/v1/pattern/" + id + "/data"

	assert.Equal(t, http.StatusOK, getFrom(t, url, "198.51.100.1").StatusCode)
	assert.Equal(t, http.StatusOK, getFrom(t, url, "198.51.100.2").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, getFrom(t, url, "198.51.100.3").StatusCode)

	s, proxied := newServerWith(t, func(s *api.Server) { s.TrustProxy = true })
	id = seed(t, s)
	url = proxied.URL + "/api/v1/pattern/" + id + "/data"
	for range 2 {
		assert.Equal(t, http.StatusOK, getFrom(t, url, "198.51.100.1").StatusCode)
	}
	assert.Equal(t, http.StatusTooManyRequests, getFrom(t, url, "198.51.100.1").StatusCode)
	assert.Equal(t, http.StatusOK, getFrom(t, url, "198.51.100.2").StatusCode)
}

func TestPreview(t *testing.T) {
	s, ts := newServer(t)
	id := seed(t, s)

	resp := get(t, ts.URL+"/api/v1/pattern/"+id+"/preview.png?max=8")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestMissingPattern(t *testing.T) {
	_, ts := newServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/v1/pattern/nope").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/v1/pattern/latest/data").StatusCode)
}

func post(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRenderRequiresToken(t *testing.T) {
	_, ts := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/api/v1/render", "", "{}").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/api/v1/render", "wrong", "{}").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, ts.URL+"/api/v1/render").StatusCode)
}

func TestRenderDisabledWithoutKey(t *testing.T) {
	_, ts := newServerWithKey(t, "")
	assert.Equal(t, http.StatusForbidden, post(t, ts.URL+"/api/v1/render", "secret", "{}").StatusCode)
}

func TestRenderEndpoint(t *testing.T) {
	s, ts := newServer(t)

	var out struct {
		ID    string       `json:"id"`
		Stats render.Stats `json:"stats"`
	}
	decode(t, post(t, ts.URL+"/api/v1/render", "secret", `{"count": 30, "seed": 9, "strategy": "lut", "mode": "amplitude"}`), &out)
	assert.Equal(t, 30, out.Stats.Sources)
	assert.Equal(t, "lut", out.Stats.Strategy)
	assert.Equal(t, "amplitude", out.Stats.Mode)

	p, err := s.DB.LoadPattern(out.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, p.Width())

	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/api/v1/render", "secret", `{"mode": "sepia"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/api/v1/render", "secret", `{"count": 5000}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/api/v1/render", "secret", `not json`).StatusCode)
}

func TestRenderCountErrors(t *testing.T) {
	body := func(resp *http.Response) string {
		t.Helper()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	_, ts := newServer(t)
	assert.Contains(t, body(post(t, ts.URL+"/api/v1/render", "secret", `{"count": -1}`)), "count must be positive")
	assert.Contains(t, body(post(t, ts.URL+"/api/v1/render", "secret", `{"count": 1001}`)), "count must be at most 1000")

	_, unlimited := newServerWith(t, func(s *api.Server) { s.MaxSources = 0 })
	msg := body(post(t, unlimited.URL+"/api/v1/render", "secret", `{"count": -3}`))
	assert.Contains(t, msg, "count must be positive")
	assert.NotContains(t, msg, "1-0")
}
