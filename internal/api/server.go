// Package api serves stored patterns to the SLM controller over HTTP.
// GET endpoints are public and read-only.
// POST /api/v1/render requires a bearer token.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/field"
	"github.com/talgya/holotrain/internal/optics"
	"github.com/talgya/holotrain/internal/persistence"
	"github.com/talgya/holotrain/internal/preview"
	"github.com/talgya/holotrain/internal/render"
	"github.com/talgya/holotrain/internal/scene"
)

// Server serves patterns from DB and renders new ones on request.
type Server struct {
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	Optics     optics.Config   // SLM geometry used by POST /render
	Scene      scene.GenConfig // Default scene for POST /render
	Render     render.Options  // Default strategy and encoding
	MaxSources int             // Upper bound on requested source counts

	// Downloads per client per minute on the data endpoint (0 = 30).
	DataRate   int
	// TrustProxy keys the limit on X-Forwarded-For. Set it only when a
	// reverse proxy in front of the server overwrites that header.
	TrustProxy bool

	started time.Time
	renders atomic.Int64
	busy    atomic.Bool
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	rate := s.DataRate
	if rate <= 0 {
		rate = 30
	}
	dataLimiter := NewRateLimiter(rate, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/patterns", s.handlePatterns)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/pattern/{id}", s.handlePattern)
	mux.HandleFunc("GET /api/v1/pattern/{id}/data", RateLimitMiddleware(dataLimiter, s.TrustProxy, s.handlePatternData))
	mux.HandleFunc("GET /api/v1/pattern/{id}/preview.png", s.handlePreview)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("POST /api/v1/render", s.adminOnly(s.handleRender))

	return mux
}

// Start begins serving the HTTP API in a goroutine. The caller shuts the
// returned server down.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HOLO_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.DB.CountPatterns()
	if err != nil {
		slog.Error("count patterns failed", "error", err)
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	last, _ := s.DB.GetMeta("last_pattern")

	writeJSON(w, map[string]any{
		"name":         "holotrain",
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"patterns":     count,
		"last_pattern": last,
		"renders":      s.renders.Load(),
		"rendering":    s.busy.Load(),
		"slm":          s.Optics.String(),
		"strategy":     s.Render.Strategy.String(),
		"mode":         s.Render.Mode.String(),
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	list, err := s.DB.ListPatterns(limit)
	if err != nil {
		slog.Error("list patterns failed", "error", err)
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []persistence.PatternInfo{}
	}
	writeJSON(w, list)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 1, 200)
	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	type run struct {
		PatternID string          `json:"pattern_id"`
		Created   string          `json:"created"`
		Stats     json.RawMessage `json:"stats"`
	}
	out := make([]run, 0, len(runs))
	for _, rn := range runs {
		out = append(out, run{PatternID: rn.PatternID, Created: rn.Created, Stats: json.RawMessage(rn.Stats)})
	}
	writeJSON(w, out)
}

// resolveID maps "latest" to the newest pattern id and writes the error
// response when the id cannot be resolved.
func (s *Server) resolveID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id != "latest" {
		return id, true
	}
	latest, err := s.DB.LatestPattern()
	if err != nil {
		writeStoreError(w, err)
		return "", false
	}
	return latest, true
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveID(w, r)
	if !ok {
		return
	}
	info, err := s.DB.PatternInfo(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, info)
}

// handlePatternData streams the raw pattern: little-endian float64 values,
// row-major, with the shape and encoding in headers.
func (s *Server) handlePatternData(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveID(w, r)
	if !ok {
		return
	}
	p, err := s.DB.LoadPattern(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	meta := p.Meta()
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("X-Pattern-Id", id)
	h.Set("X-Pattern-Width", strconv.Itoa(p.Width()))
	h.Set("X-Pattern-Height", strconv.Itoa(p.Height()))
	h.Set("X-Pattern-Mode", meta.Mode.String())
	h.Set("X-Pattern-Phase-Range", meta.PhaseRange.String())
	data := persistence.MarshalValues(p)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveID(w, r)
	if !ok {
		return
	}
	p, err := s.DB.LoadPattern(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := preview.WritePNG(&buf, p, queryInt(r, "max", 512, 16, 4096)); err != nil {
		slog.Error("preview failed", "id", id, "error", err)
		http.Error(w, "preview failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// renderRequest overrides the server defaults for one render. Zero values
// keep the defaults.
type renderRequest struct {
	Count      int     `json:"count,omitempty"`
	Seed       int64   `json:"seed,omitempty"`
	Texture    float64 `json:"texture,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	PhaseRange string  `json:"phase_range,omitempty"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	gen := s.Scene
	opts := s.Render
	if req.Count < 0 {
		http.Error(w, "count must be positive", http.StatusBadRequest)
		return
	}
	if s.MaxSources > 0 && req.Count > s.MaxSources {
		http.Error(w, fmt.Sprintf("count must be at most %d", s.MaxSources), http.StatusBadRequest)
		return
	}
	if req.Count > 0 {
		gen.Count = req.Count
	}
	if req.Seed != 0 {
		gen.Seed = req.Seed
	}
	if req.Texture > 0 {
		gen.Texture = req.Texture
	}
	var err error
	if req.Strategy != "" {
		if opts.Strategy, err = field.ParseStrategy(req.Strategy); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Mode != "" {
		if opts.Mode, err = encode.ParseMode(req.Mode); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.PhaseRange != "" {
		if opts.PhaseRange, err = encode.ParsePhaseRange(req.PhaseRange); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if !s.busy.CompareAndSwap(false, true) {
		http.Error(w, "a render is already running", http.StatusConflict)
		return
	}
	defer s.busy.Store(false)

	// The request context bounds the render: a client that disconnects
	// cancels it.
	pat, st, err := render.Render(r.Context(), scene.Generate(gen), s.Optics, opts)
	switch {
	case errors.Is(err, optics.ErrInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("render request failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	id, err := s.DB.SaveRender(pat, st)
	if err != nil {
		slog.Error("save render failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	s.renders.Add(1)

	writeJSON(w, map[string]any{
		"id":    id,
		"stats": st,
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "pattern not found", http.StatusNotFound)
		return
	}
	slog.Error("pattern store error", "error", err)
	http.Error(w, "database error", http.StatusInternalServerError)
}

// queryInt parses an integer query parameter, clamped to [lo, hi].
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return max(lo, min(hi, v))
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
