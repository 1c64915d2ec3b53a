// Package field accumulates the complex wavefront of a point-source catalog
// over the SLM grid. Three interchangeable strategies implement Accumulator:
// exact direct summation, a phase lookup table, and band-limited angular
// spectrum propagation.
package field

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/holotrain/internal/optics"
)

// ComplexField is a dense row-major grid of complex amplitudes,
// Data[j*Width+i] for column i and row j. It is written only while a render
// accumulates into it and is read-only afterwards.
type ComplexField struct {
	Width  int
	Height int
	Data   []complex128
}

// NewComplexField allocates a zeroed field.
func NewComplexField(width, height int) *ComplexField {
	return &ComplexField{
		Width:  width,
		Height: height,
		Data:   make([]complex128, width*height),
	}
}

// At returns the value at column i, row j.
func (f *ComplexField) At(i, j int) complex128 {
	return f.Data[j*f.Width+i]
}

// Set stores v at column i, row j.
func (f *ComplexField) Set(i, j int, v complex128) {
	f.Data[j*f.Width+i] = v
}

// Row returns row j as a sub-slice of Data.
func (f *ComplexField) Row(j int) []complex128 {
	return f.Data[j*f.Width : (j+1)*f.Width]
}

// Add accumulates other into f element-wise.
func (f *ComplexField) Add(other *ComplexField) error {
	if other.Width != f.Width || other.Height != f.Height {
		return fmt.Errorf("field: add %dx%d into %dx%d: shape mismatch", other.Width, other.Height, f.Width, f.Height)
	}
	for i, v := range other.Data {
		f.Data[i] += v
	}
	return nil
}

// Clone returns a deep copy.
func (f *ComplexField) Clone() *ComplexField {
	out := &ComplexField{Width: f.Width, Height: f.Height, Data: make([]complex128, len(f.Data))}
	copy(out.Data, f.Data)
	return out
}

// Magnitudes returns |Data[n]| for every element.
func (f *ComplexField) Magnitudes() []float64 {
	mags := make([]float64, len(f.Data))
	for n, v := range f.Data {
		mags[n] = cmplx.Abs(v)
	}
	return mags
}

// RMSAmplitude returns sqrt(mean |U|²).
func (f *ComplexField) RMSAmplitude() float64 {
	if len(f.Data) == 0 {
		return 0
	}
	return floats.Norm(f.Magnitudes(), 2) / math.Sqrt(float64(len(f.Data)))
}

// CheckFinite returns a NumericalError for the first non-finite element.
func (f *ComplexField) CheckFinite(stage string) error {
	for n, v := range f.Data {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return &optics.NumericalError{Stage: stage, X: n % f.Width, Y: n / f.Width, Source: -1, Value: v}
		}
	}
	return nil
}

// RelativeRMS returns ‖a − b‖₂ / ‖b‖₂ over all complex elements. It is the
// comparison metric used between accumulation strategies.
func RelativeRMS(a, b *ComplexField) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return 0, fmt.Errorf("field: compare %dx%d with %dx%d: shape mismatch", a.Width, a.Height, b.Width, b.Height)
	}
	x := interleave(a.Data)
	y := interleave(b.Data)
	ref := floats.Norm(y, 2)
	if ref == 0 {
		return floats.Norm(x, 2), nil
	}
	return floats.Distance(x, y, 2) / ref, nil
}

func interleave(data []complex128) []float64 {
	out := make([]float64, 2*len(data))
	for n, v := range data {
		out[2*n] = real(v)
		out[2*n+1] = imag(v)
	}
	return out
}

// String returns a summary of the field.
func (f *ComplexField) String() string {
	return fmt.Sprintf("ComplexField(%dx%d, rms=%.4g)", f.Width, f.Height, f.RMSAmplitude())
}
