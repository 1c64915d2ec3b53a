package encode

import (
	"fmt"
)

// Meta describes how a pattern was produced. Scale is the field magnitude
// that maps to amplitude 1.0, so Scale·value recovers |U| for amplitude
// patterns.
type Meta struct {
	Wavelength      float64    `json:"wavelength"`
	PixelPitch      float64    `json:"pixel_pitch"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	ViewingDistance float64    `json:"viewing_distance"`
	Mode            Mode       `json:"mode"`
	PhaseRange      PhaseRange `json:"phase_range"`
	Scale           float64    `json:"scale"`
	Strategy        string     `json:"strategy"`
	Sources         int        `json:"sources"`
}

// Pattern is an encoded SLM frame. It is immutable once built.
type Pattern struct {
	width, height int
	values        []float64
	meta          Meta
}

// NewPattern copies values into a width×height pattern. It is how stored
// patterns are rebuilt; renders obtain patterns from Encode and Normalize.
func NewPattern(width, height int, values []float64, meta Meta) (*Pattern, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("encode: invalid pattern shape %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("encode: %d values for a %dx%d pattern", len(values), width, height)
	}
	meta.Width, meta.Height = width, height
	return &Pattern{
		width:  width,
		height: height,
		values: append([]float64(nil), values...),
		meta:   meta,
	}, nil
}

func (p *Pattern) Width() int  { return p.width }
func (p *Pattern) Height() int { return p.height }
func (p *Pattern) Meta() Meta  { return p.meta }

// At returns the value at column i, row j.
func (p *Pattern) At(i, j int) float64 {
	return p.values[j*p.width+i]
}

// Values returns a copy of the row-major values.
func (p *Pattern) Values() []float64 {
	return append([]float64(nil), p.values...)
}

// Len returns the number of pixels.
func (p *Pattern) Len() int { return len(p.values) }

func (p *Pattern) String() string {
	return fmt.Sprintf("Pattern(%dx%d %s scale=%.4g)", p.width, p.height, p.meta.Mode, p.meta.Scale)
}
