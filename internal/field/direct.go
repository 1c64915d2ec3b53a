package field

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/talgya/holotrain/internal/optics"
)

// phasor returns (sin, cos) of k·r for a source-to-pixel distance r.
type phasor func(r float64) (sin, cos float64)

// Direct sums the exact kernel over every source and pixel.
type Direct struct {
	opts Options
}

// Strategy implements Accumulator.
func (d *Direct) Strategy() Strategy { return StrategyDirect }

// Accumulate implements Accumulator.
func (d *Direct) Accumulate(ctx context.Context, cat *optics.Catalog, cfg optics.Config) (*ComplexField, error) {
	if err := validate(cat, cfg); err != nil {
		return nil, err
	}
	k := cfg.WaveNumber()
	return sum(ctx, cat, cfg, d.opts, StrategyDirect, func(r float64) (float64, float64) {
		return math.Sincos(k * r)
	})
}

// prepared caches the per-source terms reused across a row.
type prepared struct {
	x, y, z2, a float64
}

func prepare(cat *optics.Catalog) []prepared {
	out := make([]prepared, cat.Len())
	for n := range out {
		p := cat.At(n)
		out[n] = prepared{x: p.X, y: p.Y, z2: p.Z * p.Z, a: p.Intensity}
	}
	return out
}

// pixelAxes returns the physical u of every column and v of every row.
func pixelAxes(cfg optics.Config) (us, vs []float64) {
	us = make([]float64, cfg.Width)
	for i := range us {
		us[i], _ = cfg.PixelPosition(i, 0)
	}
	vs = make([]float64, cfg.Height)
	for j := range vs {
		_, vs[j] = cfg.PixelPosition(0, j)
	}
	return us, vs
}

// sum drives both direct summation and the lookup table; they differ only
// in how exp(i·k·r) is evaluated.
func sum(ctx context.Context, cat *optics.Catalog, cfg optics.Config, opts Options, s Strategy, ph phasor) (*ComplexField, error) {
	start := time.Now()
	srcs := prepare(cat)
	us, vs := pixelAxes(cfg)

	var (
		f   *ComplexField
		err error
	)
	switch opts.Partition {
	case BySource:
		f, err = sumBySource(ctx, srcs, us, vs, cfg, opts, ph)
	default:
		f, err = sumByPixel(ctx, srcs, us, vs, cfg, opts, ph)
	}
	if err != nil {
		return nil, err
	}
	if err := f.CheckFinite(s.String()); err != nil {
		return nil, err
	}

	slog.Debug("field accumulated",
		"strategy", s.String(),
		"partition", opts.Partition.String(),
		"sources", len(srcs),
		"pixels", cfg.Pixels(),
		"workers", opts.Workers,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return f, nil
}

// sumByPixel hands out row bands. Every pixel sums its sources in catalog
// order, so the result does not depend on scheduling.
func sumByPixel(ctx context.Context, srcs []prepared, us, vs []float64, cfg optics.Config, opts Options, ph phasor) (*ComplexField, error) {
	f := NewComplexField(cfg.Width, cfg.Height)
	rows := opts.RowsPerUnit
	if rows <= 0 {
		// Several units per worker keeps the pool busy when rows cost unevenly.
		rows = cfg.Height / (4 * opts.Workers)
		if rows < 1 {
			rows = 1
		}
	}
	units := split(cfg.Height, rows)

	err := runUnits(ctx, opts.Workers, units, opts.Counters, func(_ int, u unit) error {
		for j := u.Lo; j < u.Hi; j++ {
			accumulateRow(f.Row(j), srcs, us, vs[j], ph)
		}
		opts.Counters.evaluate(int64(u.Hi-u.Lo) * int64(len(us)) * int64(len(srcs)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// sumBySource hands out source batches. Each worker owns one partial field;
// partials are merged once every worker has stopped.
func sumBySource(ctx context.Context, srcs []prepared, us, vs []float64, cfg optics.Config, opts Options, ph phasor) (*ComplexField, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = (len(srcs) + 4*opts.Workers - 1) / (4 * opts.Workers)
		if batch < 1 {
			batch = 1
		}
	}
	units := split(len(srcs), batch)
	partials := make([]*ComplexField, opts.Workers)

	err := runUnits(ctx, opts.Workers, units, opts.Counters, func(worker int, u unit) error {
		part := partials[worker]
		if part == nil {
			part = NewComplexField(cfg.Width, cfg.Height)
			partials[worker] = part
		}
		for j, v := range vs {
			accumulateRow(part.Row(j), srcs[u.Lo:u.Hi], us, v, ph)
		}
		opts.Counters.evaluate(int64(u.Hi-u.Lo) * int64(len(us)) * int64(len(vs)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	f, err := mergeTree(partials)
	if err != nil {
		return nil, fmt.Errorf("merge partial fields: %w", err)
	}
	if f == nil {
		f = NewComplexField(cfg.Width, cfg.Height)
	}
	return f, nil
}

// accumulateRow adds every source's wave to one SLM row at height v.
func accumulateRow(row []complex128, srcs []prepared, us []float64, v float64, ph phasor) {
	for _, s := range srcs {
		if s.a == 0 {
			continue
		}
		dy := v - s.y
		base := dy*dy + s.z2
		for i, u := range us {
			dx := u - s.x
			r := math.Sqrt(dx*dx + base)
			sin, cos := ph(r)
			amp := s.a / r
			row[i] += complex(amp*cos, amp*sin)
		}
	}
}
