package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/talgya/holotrain/internal/optics"
)

// LoadTuples reads a JSON array of [x, y, z, intensity] tuples in metres.
// Every tuple must have exactly four numbers; geometric checks are left to
// Catalog.Validate so they can be reported against an optical config.
func LoadTuples(r io.Reader) (*optics.Catalog, error) {
	var raw [][]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tuples: %w", err)
	}
	tuples := make([][4]float64, len(raw))
	for n, t := range raw {
		if len(t) != 4 {
			return nil, &optics.InputError{
				Field:  "tuple",
				Index:  n,
				Reason: fmt.Sprintf("want [x, y, z, intensity], got %d values", len(t)),
			}
		}
		copy(tuples[n][:], t)
	}
	return optics.FromTuples(tuples), nil
}

// LoadFile reads tuples from path.
func LoadFile(path string) (*optics.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return LoadTuples(f)
}

// WriteTuples writes cat in the format LoadTuples reads.
func WriteTuples(w io.Writer, cat *optics.Catalog) error {
	return json.NewEncoder(w).Encode(cat.Tuples())
}
