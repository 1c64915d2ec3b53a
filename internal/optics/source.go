package optics

import (
	"fmt"
	"math"
)

// PointSource is an idealised emitter of a spherical wavefront.
// Coordinates are metres with z measured from the SLM plane toward the scene.
type PointSource struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Intensity float64 `json:"intensity"` // Unitless, ≥ 0
}

// Catalog is an immutable ordered list of point sources. Order only matters
// for reproducible iteration; the accumulated field does not depend on it.
type Catalog struct {
	sources []PointSource
}

// NewCatalog copies sources into a new catalog. Validation is deferred to
// Validate so that the error can be reported against a Config.
func NewCatalog(sources []PointSource) *Catalog {
	cp := make([]PointSource, len(sources))
	copy(cp, sources)
	return &Catalog{sources: cp}
}

// FromTuples builds a catalog from [x, y, z, intensity] records, the format
// produced by model ingestion.
func FromTuples(tuples [][4]float64) *Catalog {
	sources := make([]PointSource, len(tuples))
	for i, t := range tuples {
		sources[i] = PointSource{X: t[0], Y: t[1], Z: t[2], Intensity: t[3]}
	}
	return &Catalog{sources: sources}
}

// Len returns the number of sources.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sources)
}

// At returns source i.
func (c *Catalog) At(i int) PointSource {
	return c.sources[i]
}

// Sources returns a copy of the source list.
func (c *Catalog) Sources() []PointSource {
	cp := make([]PointSource, len(c.sources))
	copy(cp, c.sources)
	return cp
}

// Tuples returns the catalog in ingestion format.
func (c *Catalog) Tuples() [][4]float64 {
	out := make([][4]float64, len(c.sources))
	for i, p := range c.sources {
		out[i] = [4]float64{p.X, p.Y, p.Z, p.Intensity}
	}
	return out
}

// Validate checks the catalog invariants against cfg: non-empty, finite,
// non-negative intensity, and every source at least cfg.Epsilon() in front
// of the SLM plane. Offending entries are reported, never dropped.
func (c *Catalog) Validate(cfg Config) error {
	if c.Len() == 0 {
		return &InputError{Field: "catalog", Index: -1, Reason: "no point sources"}
	}
	eps := cfg.Epsilon()
	for i, p := range c.sources {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return &InputError{Field: "position", Index: i, Reason: fmt.Sprintf("non-finite (%g, %g, %g)", p.X, p.Y, p.Z)}
		}
		if !finite(p.Intensity) || p.Intensity < 0 {
			return &InputError{Field: "intensity", Index: i, Reason: fmt.Sprintf("must be finite and >= 0, got %g", p.Intensity)}
		}
		if p.Z <= 0 {
			return &InputError{Field: "z", Index: i, Reason: fmt.Sprintf("source behind or on the SLM plane (z=%g)", p.Z)}
		}
		if p.Z < eps {
			return &InputError{Field: "z", Index: i, Reason: fmt.Sprintf("z=%g within %g of the SLM plane", p.Z, eps)}
		}
	}
	return nil
}

// Bounds returns the axis-aligned extent of the catalog and its intensity
// range.
func (c *Catalog) Bounds() (min, max PointSource) {
	if c.Len() == 0 {
		return min, max
	}
	min, max = c.sources[0], c.sources[0]
	for _, p := range c.sources[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		min.Z = math.Min(min.Z, p.Z)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
		max.Z = math.Max(max.Z, p.Z)
		min.Intensity = math.Min(min.Intensity, p.Intensity)
		max.Intensity = math.Max(max.Intensity, p.Intensity)
	}
	return min, max
}

// Scaled returns a copy with every intensity multiplied by f.
func (c *Catalog) Scaled(f float64) *Catalog {
	out := NewCatalog(c.sources)
	for i := range out.sources {
		out.sources[i].Intensity *= f
	}
	return out
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog(sources=%d)", c.Len())
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
