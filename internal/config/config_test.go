package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/holotrain/internal/config"
	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/field"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultsWithoutEnv(t *testing.T) {
	c, err := config.FromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)
	assert.False(t, c.TrustProxy)
	assert.Equal(t, int64(4<<30), c.Render.Field.ASMMemory)
	assert.Equal(t, 2048, c.Optics.Width)
	assert.Equal(t, 100000, c.Scene.Count)
	require.NoError(t, c.Optics.Validate())
}

func TestEnvOverrides(t *testing.T) {
	c, err := config.FromEnv(envMap(map[string]string{
		"HOLO_WIDTH":           "256",
		"HOLO_HEIGHT":          "128",
		"HOLO_DISTANCE":        "0.3",
		"HOLO_STRATEGY":        "asm",
		"HOLO_MODE":            "double-phase",
		"HOLO_PHASE_RANGE":     "0-2pi",
		"HOLO_PARTITION":       "source",
		"HOLO_INTERPOLATION":   "nearest",
		"HOLO_SEED":            "17",
		"HOLO_SYNC_INTERVAL":   "250ms",
		"HOLO_RENDER_TIMEOUT":  "3h",
		"HOLO_API_URL":         "http://slm.local:9000/",
		"HOLO_LOG_LEVEL":       "debug",
		"HOLO_PHASE_TOLERANCE": "0.05",
		"HOLO_ASM_MEMORY":      "512MiB",
		"HOLO_TRUST_PROXY":     "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, 256, c.Optics.Width)
	assert.Equal(t, 128, c.Optics.Height)
	assert.Equal(t, 0.3, c.Optics.ViewingDistance)
	assert.Equal(t, 0.3, c.Scene.ViewingDistance)
	assert.Equal(t, field.StrategyAngularSpectrum, c.Render.Strategy)
	assert.Equal(t, encode.DoublePhase, c.Render.Mode)
	assert.Equal(t, encode.UnsignedTwoPi, c.Render.PhaseRange)
	assert.Equal(t, field.BySource, c.Render.Field.Partition)
	assert.Equal(t, field.Nearest, c.Render.Field.Interpolation)
	assert.Equal(t, int64(17), c.Scene.Seed)
	assert.Equal(t, 250*time.Millisecond, c.SyncInterval)
	assert.Equal(t, 3*time.Hour, c.RenderTimeout)
	assert.Equal(t, "http://slm.local:9000", c.APIURL)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, 0.05, c.Render.Field.PhaseTolerance)
	assert.Equal(t, int64(512<<20), c.Render.Field.ASMMemory)
	assert.True(t, c.TrustProxy)
}

func TestEnvErrorsNameTheVariable(t *testing.T) {
	for key, val := range map[string]string{
		"HOLO_WIDTH":         "wide",
		"HOLO_WAVELENGTH":    "green",
		"HOLO_STRATEGY":      "magic",
		"HOLO_PARTITION":     "diagonal",
		"HOLO_SYNC_INTERVAL": "often",
		"HOLO_LOG_LEVEL":     "chatty",
		"HOLO_ASM_MEMORY":    "lots",
		"HOLO_TRUST_PROXY":   "maybe",
	} {
		_, err := config.FromEnv(envMap(map[string]string{key: val}))
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), key)
	}
}

func TestNewLoggerOnFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()

	logger := config.NewLogger(f, slog.LevelInfo)
	logger.Info("hello", "k", 1)
	logger.Debug("hidden")

	b, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.NotContains(t, string(b), "hidden")
}
