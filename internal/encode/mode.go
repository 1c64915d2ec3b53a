package encode

import (
	"fmt"
	"math"
	"strings"
)

// Mode is the quantity written to the SLM.
type Mode uint8

const (
	PhaseOnly     Mode = iota // arg U
	AmplitudeOnly             // |U| / max|U|
	DoublePhase               // Checkerboard of arg U ± acos(|U|/max|U|)
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case PhaseOnly:
		return "phase"
	case AmplitudeOnly:
		return "amplitude"
	case DoublePhase:
		return "double-phase"
	default:
		return "unknown"
	}
}

// IsPhase reports whether the mode writes phase values.
func (m Mode) IsPhase() bool { return m != AmplitudeOnly }

// ParseMode accepts the names produced by String plus a few aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "phase", "phase-only", "":
		return PhaseOnly, nil
	case "amplitude", "amplitude-only":
		return AmplitudeOnly, nil
	case "double-phase", "doublephase", "dpac":
		return DoublePhase, nil
	}
	return 0, fmt.Errorf("encode: unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// PhaseRange is the interval phase values are wrapped into.
type PhaseRange uint8

const (
	SignedPi      PhaseRange = iota // (−π, π]
	UnsignedTwoPi                   // [0, 2π)
)

func (r PhaseRange) String() string {
	if r == UnsignedTwoPi {
		return "0-2pi"
	}
	return "pm-pi"
}

// ParsePhaseRange accepts "pm-pi" or "0-2pi".
func ParsePhaseRange(s string) (PhaseRange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pm-pi", "signed", "":
		return SignedPi, nil
	case "0-2pi", "unsigned":
		return UnsignedTwoPi, nil
	}
	return 0, fmt.Errorf("encode: unknown phase range %q", s)
}

func (r PhaseRange) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *PhaseRange) UnmarshalText(b []byte) error {
	v, err := ParsePhaseRange(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Interval is a real interval whose ends may be open.
type Interval struct {
	Lo, Hi         float64
	OpenLo, OpenHi bool
}

// Contains reports whether v lies in the interval.
func (iv Interval) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if v < iv.Lo || (iv.OpenLo && v == iv.Lo) {
		return false
	}
	if v > iv.Hi || (iv.OpenHi && v == iv.Hi) {
		return false
	}
	return true
}

func (iv Interval) String() string {
	l, h := "[", "]"
	if iv.OpenLo {
		l = "("
	}
	if iv.OpenHi {
		h = ")"
	}
	return fmt.Sprintf("%s%.6g, %.6g%s", l, iv.Lo, iv.Hi, h)
}

// Range returns the interval every value of a normalized pattern lies in.
func Range(m Mode, r PhaseRange) Interval {
	switch {
	case m == AmplitudeOnly:
		return Interval{Lo: 0, Hi: 1}
	case r == UnsignedTwoPi:
		return Interval{Lo: 0, Hi: 2 * math.Pi, OpenHi: true}
	default:
		return Interval{Lo: -math.Pi, Hi: math.Pi, OpenLo: true}
	}
}
