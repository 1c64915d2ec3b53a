package encode_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/field"
	"github.com/talgya/holotrain/internal/optics"
)

func testConfig(w, h int) optics.Config {
	return optics.Config{Wavelength: 532e-9, PixelPitch: 8e-6, Width: w, Height: h, ViewingDistance: 0.5}
}

func render(t *testing.T, cat *optics.Catalog, cfg optics.Config) *field.ComplexField {
	t.Helper()
	acc, err := field.New(field.StrategyDirect, field.Options{Workers: 2})
	require.NoError(t, err)
	f, err := acc.Accumulate(context.Background(), cat, cfg)
	require.NoError(t, err)
	return f
}

func scene() *optics.Catalog {
	return optics.FromTuples([][4]float64{
		{0, 0, 0.5, 1},
		{1e-4, -5e-5, 0.45, 0.7},
		{-2e-4, 1e-4, 0.55, 0.3},
	})
}

func encodeAndNormalize(t *testing.T, f *field.ComplexField, cfg optics.Config, m encode.Mode, r encode.PhaseRange) *encode.Pattern {
	t.Helper()
	raw, err := encode.Encode(f, m, encode.Meta{Wavelength: cfg.Wavelength})
	require.NoError(t, err)
	p, err := encode.Normalize(raw, cfg, r)
	require.NoError(t, err)
	require.Equal(t, f.Width, p.Width())
	require.Equal(t, f.Height, p.Height())
	return p
}

func TestRanges(t *testing.T) {
	cfg := testConfig(24, 16)
	f := render(t, scene(), cfg)

	tests := []struct {
		name string
		mode encode.Mode
		rng  encode.PhaseRange
	}{
		{"phase signed", encode.PhaseOnly, encode.SignedPi},
		{"phase unsigned", encode.PhaseOnly, encode.UnsignedTwoPi},
		{"amplitude", encode.AmplitudeOnly, encode.SignedPi},
		{"double phase signed", encode.DoublePhase, encode.SignedPi},
		{"double phase unsigned", encode.DoublePhase, encode.UnsignedTwoPi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := encodeAndNormalize(t, f, cfg, tt.mode, tt.rng)
			iv := encode.Range(tt.mode, tt.rng)
			for _, v := range p.Values() {
				require.True(t, iv.Contains(v), "%g outside %s", v, iv)
			}
			assert.NoError(t, encode.Validate(p))
			assert.Equal(t, tt.mode, p.Meta().Mode)
			assert.Equal(t, tt.rng, p.Meta().PhaseRange)
		})
	}
}

func TestAmplitudeHasUnitPixel(t *testing.T) {
	cfg := testConfig(16, 16)
	p := encodeAndNormalize(t, render(t, scene(), cfg), cfg, encode.AmplitudeOnly, encode.SignedPi)
	ones := 0
	for _, v := range p.Values() {
		if v == 1 {
			ones++
		}
	}
	assert.GreaterOrEqual(t, ones, 1)
}

func TestDoublingIntensityDoublesScale(t *testing.T) {
	cfg := testConfig(16, 12)
	cat := scene()
	f1 := render(t, cat, cfg)
	f2 := render(t, cat.Scaled(2), cfg)

	for _, m := range []encode.Mode{encode.PhaseOnly, encode.AmplitudeOnly, encode.DoublePhase} {
		t.Run(m.String(), func(t *testing.T) {
			p1 := encodeAndNormalize(t, f1, cfg, m, encode.SignedPi)
			p2 := encodeAndNormalize(t, f2, cfg, m, encode.SignedPi)
			assert.InEpsilon(t, 2*p1.Meta().Scale, p2.Meta().Scale, 1e-12)
			assert.InDeltaSlice(t, p1.Values(), p2.Values(), 1e-9)
		})
	}
}

func TestZeroFieldAmplitudeIsValidationError(t *testing.T) {
	f := field.NewComplexField(4, 4)
	for _, m := range []encode.Mode{encode.AmplitudeOnly, encode.DoublePhase} {
		_, err := encode.Encode(f, m, encode.Meta{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, optics.ErrValidation), m.String())
	}

	// Phase of a zero field is defined (0) and still encodes.
	p, err := encode.Encode(f, encode.PhaseOnly, encode.Meta{})
	require.NoError(t, err)
	assert.Zero(t, p.Meta().Scale)
}

func TestDoublePhaseRecoversField(t *testing.T) {
	// Horizontally adjacent pixels share one value, so every pair holds both
	// θ+ and θ− of the same U.
	const w, h = 8, 4
	f := field.NewComplexField(w, h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i += 2 {
			u := cmplx.Rect(0.2+0.1*float64(i+j), 0.7*float64(i)-0.3*float64(j))
			f.Set(i, j, u)
			f.Set(i+1, j, u)
		}
	}
	cfg := testConfig(w, h)
	p := encodeAndNormalize(t, f, cfg, encode.DoublePhase, encode.SignedPi)
	scale := p.Meta().Scale

	for j := 0; j < h; j++ {
		for i := 0; i < w; i += 2 {
			got := (cmplx.Rect(1, p.At(i, j)) + cmplx.Rect(1, p.At(i+1, j))) / 2
			want := f.At(i, j) / complex(scale, 0)
			assert.InDelta(t, 0, cmplx.Abs(got-want), 1e-12, "pair (%d,%d)", i, j)
		}
	}
}

func TestNormalizeRejectsShapeMismatch(t *testing.T) {
	f := field.NewComplexField(4, 4)
	f.Set(0, 0, 1)
	raw, err := encode.Encode(f, encode.PhaseOnly, encode.Meta{})
	require.NoError(t, err)

	_, err = encode.Normalize(raw, testConfig(4, 5), encode.SignedPi)
	var ve *optics.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, -1, ve.X)
}

func TestNormalizeReportsNaN(t *testing.T) {
	values := make([]float64, 6)
	values[4] = math.NaN()
	p, err := encode.NewPattern(3, 2, values, encode.Meta{Mode: encode.PhaseOnly})
	require.NoError(t, err)

	_, err = encode.Normalize(p, testConfig(3, 2), encode.SignedPi)
	var ve *optics.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 1, ve.X)
	assert.Equal(t, 1, ve.Y)
}

func TestNormalizeWrapsAndClamps(t *testing.T) {
	cfg := testConfig(4, 1)
	phase, err := encode.NewPattern(4, 1, []float64{-math.Pi, 3 * math.Pi / 2, 2 * math.Pi, 0.25}, encode.Meta{Mode: encode.PhaseOnly})
	require.NoError(t, err)

	signed, err := encode.Normalize(phase, cfg, encode.SignedPi)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{math.Pi, -math.Pi / 2, 0, 0.25}, signed.Values(), 1e-12)

	unsigned, err := encode.Normalize(phase, cfg, encode.UnsignedTwoPi)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{math.Pi, 3 * math.Pi / 2, 0, 0.25}, unsigned.Values(), 1e-12)

	amp, err := encode.NewPattern(4, 1, []float64{-0.1, 0.5, 1, 1.2}, encode.Meta{Mode: encode.AmplitudeOnly})
	require.NoError(t, err)
	clamped, err := encode.Normalize(amp, cfg, encode.SignedPi)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1, 1}, clamped.Values())
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	p, err := encode.NewPattern(2, 1, []float64{0.5, 1.5}, encode.Meta{Mode: encode.AmplitudeOnly})
	require.NoError(t, err)
	err = encode.Validate(p)
	require.ErrorIs(t, err, optics.ErrValidation)
}

func TestPatternIsImmutable(t *testing.T) {
	src := []float64{1, 2}
	p, err := encode.NewPattern(2, 1, src, encode.Meta{})
	require.NoError(t, err)
	src[0] = 9
	vals := p.Values()
	vals[1] = 9
	assert.Equal(t, 1.0, p.At(0, 0))
	assert.Equal(t, 2.0, p.At(1, 0))

	_, err = encode.NewPattern(2, 2, src, encode.Meta{})
	assert.Error(t, err)
}

func TestMetaJSONUsesNames(t *testing.T) {
	b, err := json.Marshal(encode.Meta{Mode: encode.DoublePhase, PhaseRange: encode.UnsignedTwoPi})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"double-phase"`)
	assert.Contains(t, string(b), `"phase_range":"0-2pi"`)

	var m encode.Meta
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, encode.DoublePhase, m.Mode)
	assert.Equal(t, encode.UnsignedTwoPi, m.PhaseRange)
}

func TestParseMode(t *testing.T) {
	m, err := encode.ParseMode("Amplitude-Only")
	require.NoError(t, err)
	assert.Equal(t, encode.AmplitudeOnly, m)
	_, err = encode.ParseMode("hue")
	assert.Error(t, err)
}
