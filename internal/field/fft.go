package field

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fft2 performs 2D complex FFTs on a row-major plane as row passes followed
// by column passes. gonum's transforms are unnormalized and keep internal
// work buffers, so each worker owns its own fft2.
type fft2 struct {
	w, h int
	row  *fourier.CmplxFFT
	col  *fourier.CmplxFFT
	buf  []complex128
}

func newFFT2(w, h int) *fft2 {
	return &fft2{
		w:   w,
		h:   h,
		row: fourier.NewCmplxFFT(w),
		col: fourier.NewCmplxFFT(h),
		buf: make([]complex128, h),
	}
}

// forward transforms a in place. Rows whose flag in live is false are known
// to be zero and are skipped; a nil live transforms every row.
func (f *fft2) forward(a []complex128, live []bool) {
	for y := 0; y < f.h; y++ {
		if live != nil && !live[y] {
			continue
		}
		r := a[y*f.w : (y+1)*f.w]
		f.row.Coefficients(r, r)
	}
	f.columns(a, true)
}

// inverse transforms a in place and applies the 1/(w·h) normalisation.
func (f *fft2) inverse(a []complex128) {
	for y := 0; y < f.h; y++ {
		r := a[y*f.w : (y+1)*f.w]
		f.row.Sequence(r, r)
	}
	f.columns(a, false)
	scale := complex(1/float64(f.w*f.h), 0)
	for n := range a {
		a[n] *= scale
	}
}

func (f *fft2) columns(a []complex128, forward bool) {
	for x := 0; x < f.w; x++ {
		for y := 0; y < f.h; y++ {
			f.buf[y] = a[y*f.w+x]
		}
		if forward {
			f.col.Coefficients(f.buf, f.buf)
		} else {
			f.col.Sequence(f.buf, f.buf)
		}
		for y := 0; y < f.h; y++ {
			a[y*f.w+x] = f.buf[y]
		}
	}
}

// frequencies returns the spatial frequency of every FFT bin for n samples
// at spacing d, in cycles per metre, in gonum's coefficient order.
func frequencies(t *fourier.CmplxFFT, d float64) []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = t.Freq(i) / d
	}
	return out
}
