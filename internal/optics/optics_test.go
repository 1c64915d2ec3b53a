package optics_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/holotrain/internal/optics"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, optics.DefaultConfig().Validate())

	cases := map[string]func(*optics.Config){
		"zero wavelength":    func(c *optics.Config) { c.Wavelength = 0 },
		"nan wavelength":     func(c *optics.Config) { c.Wavelength = math.NaN() },
		"negative pitch":     func(c *optics.Config) { c.PixelPitch = -8e-6 },
		"zero width":         func(c *optics.Config) { c.Width = 0 },
		"negative height":    func(c *optics.Config) { c.Height = -1 },
		"zero distance":      func(c *optics.Config) { c.ViewingDistance = 0 },
		"negative epsilon":   func(c *optics.Config) { c.MinDistance = -1 },
		"infinite viewpoint": func(c *optics.Config) { c.ViewingDistance = math.Inf(1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := optics.DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, optics.ErrInput))
			var ie *optics.InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, -1, ie.Index)
		})
	}
}

func TestPixelPositionCentred(t *testing.T) {
	cfg := optics.Config{Wavelength: 532e-9, PixelPitch: 8e-6, Width: 4, Height: 4, ViewingDistance: 0.5}
	u, v := cfg.PixelPosition(2, 2)
	assert.Equal(t, 0.0, u)
	assert.Equal(t, 0.0, v)
	u, v = cfg.PixelPosition(0, 3)
	assert.InDelta(t, -16e-6, u, 1e-18)
	assert.InDelta(t, 8e-6, v, 1e-18)
}

func TestCatalogValidate(t *testing.T) {
	cfg := optics.SmallTestConfig()

	err := optics.NewCatalog(nil).Validate(cfg)
	require.ErrorIs(t, err, optics.ErrInput)

	bad := []struct {
		name  string
		p     optics.PointSource
		field string
	}{
		{"on plane", optics.PointSource{Z: 0, Intensity: 1}, "z"},
		{"behind plane", optics.PointSource{Z: -0.1, Intensity: 1}, "z"},
		{"within epsilon", optics.PointSource{Z: 1e-9, Intensity: 1}, "z"},
		{"negative intensity", optics.PointSource{Z: 0.5, Intensity: -1}, "intensity"},
		{"nan position", optics.PointSource{X: math.NaN(), Z: 0.5, Intensity: 1}, "position"},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			cat := optics.NewCatalog([]optics.PointSource{{Z: 0.5, Intensity: 1}, tc.p})
			err := cat.Validate(cfg)
			var ie *optics.InputError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, 1, ie.Index)
			assert.Equal(t, tc.field, ie.Field)
		})
	}

	good := optics.FromTuples([][4]float64{{0, 0, 0.5, 1}, {1e-3, -1e-3, 0.6, 0}})
	require.NoError(t, good.Validate(cfg))
}

func TestCatalogImmutable(t *testing.T) {
	src := []optics.PointSource{{X: 1, Z: 0.5, Intensity: 1}}
	cat := optics.NewCatalog(src)
	src[0].X = 99
	assert.Equal(t, 1.0, cat.At(0).X)

	out := cat.Sources()
	out[0].X = 42
	assert.Equal(t, 1.0, cat.At(0).X)

	doubled := cat.Scaled(2)
	assert.Equal(t, 2.0, doubled.At(0).Intensity)
	assert.Equal(t, 1.0, cat.At(0).Intensity)
}

func TestContributionMatchesClosedForm(t *testing.T) {
	cfg := optics.Config{Wavelength: 532e-9, PixelPitch: 8e-6, Width: 4, Height: 4, ViewingDistance: 0.5}
	p := optics.PointSource{X: 1e-5, Y: -2e-5, Z: 0.5, Intensity: 2}

	for j := 0; j < cfg.Height; j++ {
		for i := 0; i < cfg.Width; i++ {
			c, err := optics.Contribution(p, i, j, cfg)
			require.NoError(t, err)

			u, v := cfg.PixelPosition(i, j)
			r := math.Sqrt((u-p.X)*(u-p.X) + (v-p.Y)*(v-p.Y) + p.Z*p.Z)
			assert.InDelta(t, p.Intensity/r, math.Hypot(real(c), imag(c)), 1e-12)

			got := math.Atan2(imag(c), real(c))
			want := optics.Phase(p, i, j, cfg)
			assert.InDelta(t, 0, optics.WrapSigned(got-want), 1e-6)
		}
	}
}

func TestContributionGuardsSingularity(t *testing.T) {
	cfg := optics.Config{Wavelength: 532e-9, PixelPitch: 8e-6, Width: 4, Height: 4, ViewingDistance: 0.5}
	_, err := optics.Contribution(optics.PointSource{Z: 1e-12, Intensity: 1}, 2, 2, cfg)
	require.ErrorIs(t, err, optics.ErrInput)
}

func TestWrap(t *testing.T) {
	assert.InDelta(t, math.Pi, optics.WrapSigned(-math.Pi), 1e-15)
	assert.InDelta(t, -0.5*math.Pi, optics.WrapSigned(1.5*math.Pi), 1e-12)
	assert.InDelta(t, 0.5, optics.WrapSigned(0.5+4*math.Pi), 1e-12)
	assert.InDelta(t, 0, optics.WrapUnsigned(2*math.Pi), 1e-15)
	assert.InDelta(t, 1.5*math.Pi, optics.WrapUnsigned(-0.5*math.Pi), 1e-12)
}
