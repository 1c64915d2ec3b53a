// Package optics holds the physical model of a render: the SLM geometry, the
// point-source catalog, and the spherical-wave kernel that links them.
// Everything here is immutable once constructed and safe to share between
// goroutines.
package optics

import (
	"fmt"
	"math"
)

// Config describes the optical setup of one render. It is passed by value
// through every stage; nothing reads it from package state.
type Config struct {
	Wavelength      float64 // Metres (532e-9 for a green DPSS laser)
	PixelPitch      float64 // Metres between SLM pixel centres
	Width           int     // SLM columns
	Height          int     // SLM rows
	ViewingDistance float64 // Metres from the SLM to the reconstruction plane

	// MinDistance is the closest a source may sit to the SLM plane.
	// Zero means one wavelength.
	MinDistance float64
}

// DefaultConfig returns the reference setup: 532 nm, 8 µm pitch, 2048×2048,
// reconstruction at 0.5 m.
func DefaultConfig() Config {
	return Config{
		Wavelength:      532e-9,
		PixelPitch:      8e-6,
		Width:           2048,
		Height:          2048,
		ViewingDistance: 0.5,
	}
}

// SmallTestConfig returns a tiny SLM for rapid iteration.
func SmallTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 64
	cfg.Height = 64
	return cfg
}

// Validate reports the first non-physical parameter as an InputError.
func (c Config) Validate() error {
	if !(c.Wavelength > 0) || math.IsInf(c.Wavelength, 0) {
		return &InputError{Field: "wavelength", Index: -1, Reason: fmt.Sprintf("must be positive and finite, got %g", c.Wavelength)}
	}
	if !(c.PixelPitch > 0) || math.IsInf(c.PixelPitch, 0) {
		return &InputError{Field: "pixel_pitch", Index: -1, Reason: fmt.Sprintf("must be positive and finite, got %g", c.PixelPitch)}
	}
	if c.Width <= 0 || c.Height <= 0 {
		return &InputError{Field: "resolution", Index: -1, Reason: fmt.Sprintf("must be positive, got %dx%d", c.Width, c.Height)}
	}
	if !(c.ViewingDistance > 0) || math.IsInf(c.ViewingDistance, 0) {
		return &InputError{Field: "viewing_distance", Index: -1, Reason: fmt.Sprintf("must be positive and finite, got %g", c.ViewingDistance)}
	}
	if c.MinDistance < 0 || math.IsNaN(c.MinDistance) {
		return &InputError{Field: "min_distance", Index: -1, Reason: fmt.Sprintf("must not be negative, got %g", c.MinDistance)}
	}
	return nil
}

// WaveNumber returns k = 2π/λ.
func (c Config) WaveNumber() float64 {
	return 2 * math.Pi / c.Wavelength
}

// Epsilon returns the effective minimum source distance from the SLM plane.
func (c Config) Epsilon() float64 {
	if c.MinDistance > 0 {
		return c.MinDistance
	}
	return c.Wavelength
}

// Pixels returns the SLM pixel count.
func (c Config) Pixels() int {
	return c.Width * c.Height
}

// PixelPosition maps pixel (i, j) to its physical position (u, v) on the SLM
// plane. Column i runs along x, row j along y, and pixel (W/2, H/2) sits on
// the optical axis.
func (c Config) PixelPosition(i, j int) (u, v float64) {
	u = float64(i-c.Width/2) * c.PixelPitch
	v = float64(j-c.Height/2) * c.PixelPitch
	return u, v
}

// Aperture returns the physical SLM extent in metres.
func (c Config) Aperture() (w, h float64) {
	return float64(c.Width) * c.PixelPitch, float64(c.Height) * c.PixelPitch
}

// MaxDiffractionSine is the largest sin θ the pixel grid can represent
// without aliasing: λ / (2·pitch).
func (c Config) MaxDiffractionSine() float64 {
	return c.Wavelength / (2 * c.PixelPitch)
}

// String returns a summary of the setup.
func (c Config) String() string {
	return fmt.Sprintf("Optics(λ=%.1fnm, pitch=%.2fµm, %dx%d, d=%.3fm)",
		c.Wavelength*1e9, c.PixelPitch*1e6, c.Width, c.Height, c.ViewingDistance)
}
