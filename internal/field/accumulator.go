package field

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/talgya/holotrain/internal/optics"
)

// Accumulator reduces a catalog to the complex field it produces on the SLM.
// Implementations validate their inputs before scheduling any work and never
// return a partially accumulated field.
type Accumulator interface {
	Accumulate(ctx context.Context, cat *optics.Catalog, cfg optics.Config) (*ComplexField, error)
	Strategy() Strategy
}

// Strategy selects an Accumulator implementation.
type Strategy uint8

const (
	StrategyDirect          Strategy = iota // Exact O(N·P) summation
	StrategyLookupTable                     // Tabulated exp(i·k·r) over one wavelength
	StrategyAngularSpectrum                 // Layered band-limited angular spectrum
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyLookupTable:
		return "lut"
	case StrategyAngularSpectrum:
		return "asm"
	default:
		return "unknown"
	}
}

// ParseStrategy accepts the names produced by String plus a few long forms.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "":
		return StrategyDirect, nil
	case "lut", "lookup", "lookup-table":
		return StrategyLookupTable, nil
	case "asm", "fft", "angular-spectrum":
		return StrategyAngularSpectrum, nil
	}
	return 0, fmt.Errorf("field: unknown strategy %q", s)
}

// Partition chooses how direct summation splits work between workers.
type Partition uint8

const (
	ByPixel  Partition = iota // Row bands; every worker owns disjoint rows
	BySource                  // Source batches into per-worker partial fields
)

// String returns the configuration name of the partition.
func (p Partition) String() string {
	if p == BySource {
		return "source"
	}
	return "pixel"
}

// Interpolation selects how the lookup table is sampled.
type Interpolation uint8

const (
	Linear  Interpolation = iota // Chord between neighbouring entries
	Nearest                      // Closest entry
)

// Options tunes the accumulators. The zero value is usable; unset fields
// take the values from DefaultOptions.
type Options struct {
	Workers     int       // Parallel workers (0 = runtime.NumCPU())
	Partition   Partition // Direct and lookup-table work split
	RowsPerUnit int       // Rows per by-pixel work unit (0 = auto)
	BatchSize   int       // Sources per by-source work unit (0 = auto)

	TableSize     int           // Lookup-table samples per wavelength
	Interpolation Interpolation // Lookup-table sampling

	PhaseTolerance float64 // Angular spectrum depth-binning phase budget (radians)
	MaxLayers      int     // Angular spectrum depth layer cap
	ASMMemory      int64   // Angular spectrum scratch budget across workers (bytes)

	// Counters, when set, records scheduled and completed work units.
	Counters *Counters
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		Workers:        0,
		Partition:      ByPixel,
		TableSize:      4096,
		Interpolation:  Linear,
		PhaseTolerance: 0.1,
		MaxLayers:      512,
		ASMMemory:      4 << 30,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.TableSize <= 0 {
		o.TableSize = def.TableSize
	}
	if o.PhaseTolerance <= 0 {
		o.PhaseTolerance = def.PhaseTolerance
	}
	if o.MaxLayers <= 0 {
		o.MaxLayers = def.MaxLayers
	}
	if o.ASMMemory <= 0 {
		o.ASMMemory = def.ASMMemory
	}
	return o
}

// New returns the accumulator for strategy s.
func New(s Strategy, opts Options) (Accumulator, error) {
	opts = opts.withDefaults()
	switch s {
	case StrategyDirect:
		return &Direct{opts: opts}, nil
	case StrategyLookupTable:
		return &LookupTable{opts: opts}, nil
	case StrategyAngularSpectrum:
		return &AngularSpectrum{opts: opts}, nil
	}
	return nil, fmt.Errorf("field: unknown strategy %d", s)
}

// Counters instruments a render. All methods are safe on a nil receiver.
type Counters struct {
	Scheduled   atomic.Int64 // Work units handed to the pool
	Completed   atomic.Int64 // Work units finished without error
	Evaluations atomic.Int64 // Elementary source×pixel (or source×layer) operations
}

func (c *Counters) schedule() {
	if c != nil {
		c.Scheduled.Add(1)
	}
}

func (c *Counters) complete() {
	if c != nil {
		c.Completed.Add(1)
	}
}

func (c *Counters) evaluate(n int64) {
	if c != nil {
		c.Evaluations.Add(n)
	}
}

// validate runs the eager input checks shared by every strategy.
func validate(cat *optics.Catalog, cfg optics.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cat.Validate(cfg)
}
