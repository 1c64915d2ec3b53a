package scene_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/holotrain/internal/optics"
	"github.com/talgya/holotrain/internal/scene"
)

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := scene.SmallTestConfig()
	a := scene.Generate(cfg)
	b := scene.Generate(cfg)
	assert.Equal(t, a.Sources(), b.Sources())

	cfg.Seed++
	c := scene.Generate(cfg)
	assert.NotEqual(t, a.Sources(), c.Sources())
}

func TestGenerateStaysInVolume(t *testing.T) {
	cfg := scene.DefaultGenConfig()
	cfg.Count = 2000
	cfg.Seed = 7
	cat := scene.Generate(cfg)
	require.Equal(t, 2000, cat.Len())

	lo, hi := cat.Bounds()
	assert.GreaterOrEqual(t, lo.X, -0.5)
	assert.LessOrEqual(t, hi.X, 0.5)
	assert.GreaterOrEqual(t, lo.Y, -0.1)
	assert.LessOrEqual(t, hi.Y, 0.3)
	assert.GreaterOrEqual(t, lo.Z, 0.4)
	assert.LessOrEqual(t, hi.Z, 0.6)
	assert.Greater(t, lo.Intensity, 0.0)
	assert.LessOrEqual(t, hi.Intensity, 1.0)

	require.NoError(t, cat.Validate(optics.DefaultConfig()))
}

func TestGenerateWithoutTextureFollowsFalloff(t *testing.T) {
	cfg := scene.DefaultGenConfig()
	cfg.Count = 500
	cfg.Seed = 3
	cfg.Texture = 0
	for _, p := range scene.Generate(cfg).Sources() {
		assert.InDelta(t, 1-0.5*math.Abs(p.X), p.Intensity, 1e-12)
	}
}

func TestSmallConfigFitsTestSLM(t *testing.T) {
	cat := scene.Generate(scene.SmallTestConfig())
	require.NoError(t, cat.Validate(optics.SmallTestConfig()))
}

func TestLoadTuples(t *testing.T) {
	cat, err := scene.LoadTuples(strings.NewReader(`[[0, 0, 0.5, 1], [1e-4, -2e-4, 0.45, 0.25]]`))
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, optics.PointSource{X: 1e-4, Y: -2e-4, Z: 0.45, Intensity: 0.25}, cat.At(1))

	var buf bytes.Buffer
	require.NoError(t, scene.WriteTuples(&buf, cat))
	again, err := scene.LoadTuples(&buf)
	require.NoError(t, err)
	assert.Equal(t, cat.Sources(), again.Sources())
}

func TestLoadTuplesRejectsBadArity(t *testing.T) {
	_, err := scene.LoadTuples(strings.NewReader(`[[0, 0, 0.5, 1], [0, 0, 0.5]]`))
	var ie *optics.InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Index)

	_, err = scene.LoadTuples(strings.NewReader(`{"x": 1}`))
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := scene.LoadFile(t.TempDir() + "/nope.json")
	assert.Error(t, err)
}
