// Package preview renders patterns as images for quick inspection: phases
// on an HSV colour wheel, amplitudes in grey.
package preview

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/talgya/holotrain/internal/encode"
)

// Image renders p, box-downsampled so neither side exceeds maxDim
// (0 keeps full resolution).
func Image(p *encode.Pattern, maxDim int) image.Image {
	step := 1
	if maxDim > 0 {
		for p.Width()/step > maxDim || p.Height()/step > maxDim {
			step++
		}
	}
	w := (p.Width() + step - 1) / step
	h := (p.Height() + step - 1) / step
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	meta := p.Meta()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if meta.Mode.IsPhase() {
				img.SetNRGBA(x, y, phaseColor(circularMean(p, x*step, y*step, step)))
			} else {
				img.SetNRGBA(x, y, gray(boxMean(p, x*step, y*step, step)))
			}
		}
	}
	return img
}

// WritePNG encodes Image(p, maxDim) as PNG.
func WritePNG(w io.Writer, p *encode.Pattern, maxDim int) error {
	return png.Encode(w, Image(p, maxDim))
}

// phaseColor maps a phase in radians to a fully saturated hue.
func phaseColor(phi float64) color.NRGBA {
	hue := math.Mod(phi*180/math.Pi, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, 1, 1).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func gray(a float64) color.NRGBA {
	v := uint8(math.Round(255 * math.Max(0, math.Min(1, a))))
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

// circularMean averages the phases of a step×step block on the unit circle,
// so values near ±π do not cancel to zero.
func circularMean(p *encode.Pattern, x0, y0, step int) float64 {
	var s, c float64
	for y := y0; y < y0+step && y < p.Height(); y++ {
		for x := x0; x < x0+step && x < p.Width(); x++ {
			sin, cos := math.Sincos(p.At(x, y))
			s += sin
			c += cos
		}
	}
	return math.Atan2(s, c)
}

func boxMean(p *encode.Pattern, x0, y0, step int) float64 {
	sum, n := 0.0, 0
	for y := y0; y < y0+step && y < p.Height(); y++ {
		for x := x0; x < x0+step && x < p.Width(); x++ {
			sum += p.At(x, y)
			n++
		}
	}
	return sum / float64(n)
}
