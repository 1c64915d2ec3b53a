// Package encode turns an accumulated complex field into the real-valued
// pattern an SLM displays, then normalizes and validates it.
package encode

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/holotrain/internal/field"
	"github.com/talgya/holotrain/internal/optics"
)

// Encode converts f into a pattern of the given mode. meta supplies the
// optical context; Mode, Scale, Width and Height are filled in here.
//
// PhaseOnly keeps arg U and discards amplitude. AmplitudeOnly writes
// |U|/max|U| and discards phase. DoublePhase splits each pixel into
// θ± = arg U ± acos(|U|/max|U|) and keeps θ+ on even (i+j) and θ− on odd,
// because e^{iθ+} + e^{iθ−} = 2A·e^{i·arg U}: low-pass filtering the
// checkerboard carrier recovers the complex field at half the resolution.
//
// The raw phases are not yet wrapped; Normalize does that.
func Encode(f *field.ComplexField, mode Mode, meta Meta) (*Pattern, error) {
	if f == nil || len(f.Data) == 0 {
		return nil, errors.New("encode: empty field")
	}
	mags := f.Magnitudes()
	scale := floats.Max(mags)

	meta.Mode = mode
	meta.Scale = scale
	meta.Width, meta.Height = f.Width, f.Height
	p := &Pattern{
		width:  f.Width,
		height: f.Height,
		values: make([]float64, len(f.Data)),
		meta:   meta,
	}

	if mode != PhaseOnly && !(scale > 0) {
		return nil, &optics.ValidationError{
			Reason: "field is zero everywhere; " + mode.String() + " encoding needs a nonzero amplitude",
			X:      -1,
			Y:      -1,
			Value:  scale,
		}
	}

	switch mode {
	case PhaseOnly:
		for n, v := range f.Data {
			p.values[n] = cmplx.Phase(v)
		}
	case AmplitudeOnly:
		// Division rather than multiplying by 1/scale keeps the brightest
		// pixel at exactly 1.
		for n, m := range mags {
			p.values[n] = m / scale
		}
	case DoublePhase:
		for j := 0; j < f.Height; j++ {
			for i := 0; i < f.Width; i++ {
				n := j*f.Width + i
				spread := math.Acos(math.Min(mags[n]/scale, 1))
				phi := cmplx.Phase(f.Data[n])
				if (i+j)%2 == 0 {
					p.values[n] = phi + spread
				} else {
					p.values[n] = phi - spread
				}
			}
		}
	default:
		return nil, errors.New("encode: unknown mode " + mode.String())
	}
	return p, nil
}
