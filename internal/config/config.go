// Package config reads the HOLO_* environment shared by the binaries and
// installs the process logger.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/field"
	"github.com/talgya/holotrain/internal/optics"
	"github.com/talgya/holotrain/internal/render"
	"github.com/talgya/holotrain/internal/scene"
)

// Config is everything a binary needs to render, store and serve patterns.
type Config struct {
	Optics optics.Config
	Scene  scene.GenConfig
	Render render.Options

	Catalog      string // JSON tuple file; empty renders the synthetic train
	DBPath       string
	OutDir       string
	FileTemplate string // strftime template for pattern files
	Preview      string // PNG path; empty skips the preview
	PreviewMax   int

	Port       int
	AdminKey   string
	MaxSources int
	DataRate   int
	TrustProxy bool // Rate limit by X-Forwarded-For

	APIURL         string
	SyncInterval   time.Duration
	RenderInterval time.Duration
	RenderTimeout  time.Duration // 0 = bounded only by shutdown
	FrameDir       string

	LogLevel slog.Level
}

// Default returns the full-size configuration: 2048×2048 SLM, 100,000
// source train, direct summation, phase-only output.
func Default() Config {
	return Config{
		Optics:         optics.DefaultConfig(),
		Scene:          scene.DefaultGenConfig(),
		Render:         render.DefaultOptions(),
		DBPath:         "data/holotrain.db",
		OutDir:         "data",
		PreviewMax:     512,
		Port:           8080,
		MaxSources:     200000,
		DataRate:       30,
		APIURL:         "http://localhost:8080",
		SyncInterval:   5 * time.Second,
		RenderInterval: 0,
		FrameDir:       "data/frames",
		LogLevel:       slog.LevelInfo,
	}
}

// FromEnv overlays HOLO_* variables on Default. getenv is os.Getenv outside
// tests.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	e := env{get: getenv}

	c.Optics.Wavelength = e.float("HOLO_WAVELENGTH", c.Optics.Wavelength)
	c.Optics.PixelPitch = e.float("HOLO_PITCH", c.Optics.PixelPitch)
	c.Optics.Width = e.int("HOLO_WIDTH", c.Optics.Width)
	c.Optics.Height = e.int("HOLO_HEIGHT", c.Optics.Height)
	c.Optics.ViewingDistance = e.float("HOLO_DISTANCE", c.Optics.ViewingDistance)
	c.Optics.MinDistance = e.float("HOLO_MIN_DISTANCE", c.Optics.MinDistance)

	c.Scene.Count = e.int("HOLO_COUNT", c.Scene.Count)
	c.Scene.Seed = int64(e.int("HOLO_SEED", int(c.Scene.Seed)))
	c.Scene.Texture = e.float("HOLO_TEXTURE", c.Scene.Texture)
	c.Scene.ViewingDistance = c.Optics.ViewingDistance

	c.Render.Field.Workers = e.int("HOLO_WORKERS", c.Render.Field.Workers)
	c.Render.Field.TableSize = e.int("HOLO_LUT_SIZE", c.Render.Field.TableSize)
	c.Render.Field.PhaseTolerance = e.float("HOLO_PHASE_TOLERANCE", c.Render.Field.PhaseTolerance)
	c.Render.Field.MaxLayers = e.int("HOLO_MAX_LAYERS", c.Render.Field.MaxLayers)
	if v := getenv("HOLO_ASM_MEMORY"); v != "" {
		n, err := humanize.ParseBytes(v)
		if err == nil && (n == 0 || n > 1<<62) {
			err = fmt.Errorf("want a size between 1B and 4EiB")
		}
		e.fail("HOLO_ASM_MEMORY", v, err)
		if err == nil {
			c.Render.Field.ASMMemory = int64(n)
		}
	}
	if v := getenv("HOLO_PARTITION"); v != "" {
		switch strings.ToLower(v) {
		case "pixel":
			c.Render.Field.Partition = field.ByPixel
		case "source":
			c.Render.Field.Partition = field.BySource
		default:
			e.fail("HOLO_PARTITION", v, fmt.Errorf("want pixel or source"))
		}
	}
	if v := getenv("HOLO_INTERPOLATION"); v != "" {
		switch strings.ToLower(v) {
		case "linear":
			c.Render.Field.Interpolation = field.Linear
		case "nearest":
			c.Render.Field.Interpolation = field.Nearest
		default:
			e.fail("HOLO_INTERPOLATION", v, fmt.Errorf("want linear or nearest"))
		}
	}
	if v := getenv("HOLO_STRATEGY"); v != "" {
		s, err := field.ParseStrategy(v)
		e.fail("HOLO_STRATEGY", v, err)
		c.Render.Strategy = s
	}
	if v := getenv("HOLO_MODE"); v != "" {
		m, err := encode.ParseMode(v)
		e.fail("HOLO_MODE", v, err)
		c.Render.Mode = m
	}
	if v := getenv("HOLO_PHASE_RANGE"); v != "" {
		r, err := encode.ParsePhaseRange(v)
		e.fail("HOLO_PHASE_RANGE", v, err)
		c.Render.PhaseRange = r
	}

	c.Catalog = e.str("HOLO_CATALOG", c.Catalog)
	c.DBPath = e.str("HOLO_DB", c.DBPath)
	c.OutDir = e.str("HOLO_OUT_DIR", c.OutDir)
	c.FileTemplate = e.str("HOLO_FILE_TEMPLATE", c.FileTemplate)
	c.Preview = e.str("HOLO_PREVIEW", c.Preview)
	c.PreviewMax = e.int("HOLO_PREVIEW_MAX", c.PreviewMax)

	c.Port = e.int("HOLO_PORT", c.Port)
	c.AdminKey = e.str("HOLO_ADMIN_KEY", c.AdminKey)
	c.MaxSources = e.int("HOLO_MAX_SOURCES", c.MaxSources)
	c.DataRate = e.int("HOLO_DATA_RATE", c.DataRate)
	c.TrustProxy = e.bool("HOLO_TRUST_PROXY", c.TrustProxy)

	c.APIURL = strings.TrimRight(e.str("HOLO_API_URL", c.APIURL), "/")
	c.SyncInterval = e.duration("HOLO_SYNC_INTERVAL", c.SyncInterval)
	c.RenderInterval = e.duration("HOLO_RENDER_INTERVAL", c.RenderInterval)
	c.RenderTimeout = e.duration("HOLO_RENDER_TIMEOUT", c.RenderTimeout)
	c.FrameDir = e.str("HOLO_FRAME_DIR", c.FrameDir)

	if v := getenv("HOLO_LOG_LEVEL"); v != "" {
		e.fail("HOLO_LOG_LEVEL", v, c.LogLevel.UnmarshalText([]byte(v)))
	}

	if e.err != nil {
		return Config{}, e.err
	}
	return c, nil
}

// env collects the first parse error so FromEnv reads straight through.
type env struct {
	get func(string) string
	err error
}

func (e *env) fail(key, val string, err error) {
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("config: %s=%q: %w", key, val, err)
	}
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	e.fail(key, v, err)
	if err != nil {
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	e.fail(key, v, err)
	if err != nil {
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v := e.get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	e.fail(key, v, err)
	if err != nil {
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	e.fail(key, v, err)
	if err != nil {
		return def
	}
	return d
}

// NewLogger returns a text logger when out is a terminal and a JSON logger
// otherwise.
func NewLogger(out *os.File, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}
