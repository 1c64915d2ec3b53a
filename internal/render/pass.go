// Package render runs one hologram computation pass: validate the inputs,
// accumulate the field, encode it, and normalize the result.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/field"
	"github.com/talgya/holotrain/internal/optics"
)

// ErrPassFinished is returned by Run on a pass that already reached Ready or
// Failed. A pass computes exactly once.
var ErrPassFinished = errors.New("render: pass already finished")

// State is a step of the pass lifecycle.
type State uint8

const (
	Configured State = iota
	Accumulating
	Encoding
	Validating
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Accumulating:
		return "accumulating"
	case Encoding:
		return "encoding"
	case Validating:
		return "validating"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == Ready || s == Failed }

// Options selects the accumulation strategy and output encoding.
type Options struct {
	Strategy   field.Strategy
	Field      field.Options
	Mode       encode.Mode
	PhaseRange encode.PhaseRange
}

// DefaultOptions renders phase-only (−π, π] patterns by direct summation.
func DefaultOptions() Options {
	return Options{
		Strategy:   field.StrategyDirect,
		Field:      field.DefaultOptions(),
		Mode:       encode.PhaseOnly,
		PhaseRange: encode.SignedPi,
	}
}

// Stats summarizes a pass.
type Stats struct {
	Sources     int           `json:"sources"`
	Pixels      int           `json:"pixels"`
	Strategy    string        `json:"strategy"`
	Mode        string        `json:"mode"`
	Scheduled   int64         `json:"scheduled"`
	Completed   int64         `json:"completed"`
	Evaluations int64         `json:"evaluations"`
	Scale       float64       `json:"scale"`
	RMS         float64       `json:"rms_amplitude"`
	Accumulate  time.Duration `json:"accumulate_ns"`
	Encode      time.Duration `json:"encode_ns"`
}

// Pass is a single render. Build it with NewPass, observe it through
// OnTransition, and call Run once.
type Pass struct {
	Config  optics.Config
	Catalog *optics.Catalog
	Options Options

	// OnTransition, when set, is called synchronously on every state change.
	OnTransition func(from, to State)

	mu       sync.Mutex
	started  bool
	state    State
	err      error
	counters field.Counters
	stats    Stats
}

// NewPass prepares a pass in the Configured state.
func NewPass(cat *optics.Catalog, cfg optics.Config, opts Options) *Pass {
	return &Pass{Config: cfg, Catalog: cat, Options: opts}
}

// State returns the current state.
func (p *Pass) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that moved the pass to Failed, if any.
func (p *Pass) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the pass statistics.
func (p *Pass) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	p.mu.Unlock()
	s.Scheduled = p.counters.Scheduled.Load()
	s.Completed = p.counters.Completed.Load()
	s.Evaluations = p.counters.Evaluations.Load()
	return s
}

func (p *Pass) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()
	if p.OnTransition != nil {
		p.OnTransition(from, to)
	}
}

func (p *Pass) fail(err error) error {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.transition(Failed)
	slog.Warn("render failed", "error", err, "sources", p.Catalog.Len())
	return err
}

// Run executes the pass. Inputs are validated before any work is scheduled;
// on any failure the pass ends in Failed and no pattern is returned.
func (p *Pass) Run(ctx context.Context) (*encode.Pattern, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, ErrPassFinished
	}
	p.stats = Stats{
		Sources:  p.Catalog.Len(),
		Pixels:   p.Config.Pixels(),
		Strategy: p.Options.Strategy.String(),
		Mode:     p.Options.Mode.String(),
	}
	p.started = true
	p.mu.Unlock()

	if err := p.Config.Validate(); err != nil {
		return nil, p.fail(err)
	}
	if err := p.Catalog.Validate(p.Config); err != nil {
		return nil, p.fail(err)
	}
	p.transition(Accumulating)

	fopts := p.Options.Field
	fopts.Counters = &p.counters
	acc, err := field.New(p.Options.Strategy, fopts)
	if err != nil {
		return nil, p.fail(err)
	}
	start := time.Now()
	f, err := acc.Accumulate(ctx, p.Catalog, p.Config)
	if err != nil {
		return nil, p.fail(fmt.Errorf("accumulate: %w", err))
	}
	accumulated := time.Since(start)

	p.transition(Encoding)
	start = time.Now()
	raw, err := encode.Encode(f, p.Options.Mode, encode.Meta{
		Wavelength:      p.Config.Wavelength,
		PixelPitch:      p.Config.PixelPitch,
		ViewingDistance: p.Config.ViewingDistance,
		Strategy:        acc.Strategy().String(),
		Sources:         p.Catalog.Len(),
	})
	if err != nil {
		return nil, p.fail(fmt.Errorf("encode: %w", err))
	}

	p.transition(Validating)
	pat, err := encode.Normalize(raw, p.Config, p.Options.PhaseRange)
	if err != nil {
		return nil, p.fail(fmt.Errorf("normalize: %w", err))
	}

	p.mu.Lock()
	p.stats.Accumulate = accumulated
	p.stats.Encode = time.Since(start)
	p.stats.Scale = pat.Meta().Scale
	p.stats.RMS = f.RMSAmplitude()
	p.mu.Unlock()
	p.transition(Ready)

	st := p.Stats()
	slog.Info("render complete",
		"strategy", st.Strategy,
		"mode", st.Mode,
		"sources", st.Sources,
		"pixels", st.Pixels,
		"units", st.Completed,
		"scale", fmt.Sprintf("%.4g", st.Scale),
		"rms", fmt.Sprintf("%.4g", st.RMS),
		"accumulate", st.Accumulate.Round(time.Millisecond),
		"encode", st.Encode.Round(time.Millisecond),
	)
	return pat, nil
}

// Render runs a fresh pass and returns its pattern and statistics.
func Render(ctx context.Context, cat *optics.Catalog, cfg optics.Config, opts Options) (*encode.Pattern, Stats, error) {
	p := NewPass(cat, cfg, opts)
	pat, err := p.Run(ctx)
	return pat, p.Stats(), err
}
