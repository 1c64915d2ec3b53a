package persistence

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"

	"github.com/talgya/holotrain/internal/encode"
)

// FileExt is the extension of standalone pattern files.
const FileExt = ".hologram_cgh"

// DefaultNameTemplate names output files after the render time.
const DefaultNameTemplate = "train-%Y%m%d-%H%M%S" + FileExt

// A .hologram_cgh file is
//
//	magic[8] | uint32 LE meta length | meta JSON | gzip(float64 LE values)
//
// Values are row-major, Width·Height of them.
var fileMagic = [8]byte{'H', 'O', 'L', 'O', 'C', 'G', 'H', '1'}

// maxMetaSize bounds the JSON header read from untrusted files.
const maxMetaSize = 1 << 20

// MaxSide is the largest width or height accepted from a file header or a
// remote pattern description.
const MaxSide = 1 << 15

// CheckShape rejects shapes that are empty or larger than MaxSide per side.
func CheckShape(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxSide || height > MaxSide {
		return fmt.Errorf("%w: shape %dx%d", ErrBadFile, width, height)
	}
	return nil
}

// ErrBadFile marks a file that is not a readable pattern file.
var ErrBadFile = errors.New("persistence: not a hologram_cgh file")

// FileName expands a strftime template (DefaultNameTemplate when empty)
// for time t.
func FileName(template string, t time.Time) string {
	if template == "" {
		template = DefaultNameTemplate
	}
	return strftime.Format(template, t)
}

// MarshalValues returns the pattern values as little-endian float64s.
func MarshalValues(p *encode.Pattern) []byte {
	values := p.Values()
	out := make([]byte, 8*len(values))
	for n, v := range values {
		binary.LittleEndian.PutUint64(out[8*n:], math.Float64bits(v))
	}
	return out
}

// UnmarshalValues decodes exactly n little-endian float64s.
func UnmarshalValues(data []byte, n int) ([]float64, error) {
	if n < 0 || n > math.MaxInt/8 {
		return nil, fmt.Errorf("value count %d out of range", n)
	}
	if len(data) != 8*n {
		return nil, fmt.Errorf("payload is %d bytes, want %d values", len(data), n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return out, nil
}

// Encode writes p in .hologram_cgh format.
func Encode(w io.Writer, p *encode.Pattern) error {
	meta, err := json.Marshal(p.Meta())
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	var hdr [12]byte
	copy(hdr[:8], fileMagic[:])
	binary.LittleEndian.PutUint32(hdr[8:], uint32(len(meta)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(meta); err != nil {
		return err
	}

	zw := gzip.NewWriter(w)
	if _, err := zw.Write(MarshalValues(p)); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	return zw.Close()
}

// Decode reads a .hologram_cgh stream and validates the pattern.
func Decode(r io.Reader) (*encode.Pattern, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadFile, err)
	}
	if !bytes.Equal(hdr[:8], fileMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadFile, hdr[:8])
	}
	size := binary.LittleEndian.Uint32(hdr[8:])
	if size > maxMetaSize {
		return nil, fmt.Errorf("%w: metadata of %d bytes", ErrBadFile, size)
	}
	metaJSON := make([]byte, size)
	if _, err := io.ReadFull(r, metaJSON); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrBadFile, err)
	}
	var meta encode.Meta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrBadFile, err)
	}
	if err := CheckShape(meta.Width, meta.Height); err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrBadFile, err)
	}
	defer zr.Close()
	n := meta.Width * meta.Height
	// One extra byte detects trailing data without reading it all.
	data, err := io.ReadAll(io.LimitReader(zr, int64(8*n)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrBadFile, err)
	}
	values, err := UnmarshalValues(data, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}

	p, err := encode.NewPattern(meta.Width, meta.Height, values, meta)
	if err != nil {
		return nil, err
	}
	if err := encode.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteFile stores p at path and returns the file size.
func WriteFile(path string, p *encode.Pattern) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create pattern file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, p); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	slog.Info("pattern file written",
		"path", path,
		"size", humanize.Bytes(uint64(st.Size())),
		"raw", humanize.Bytes(uint64(8*p.Len())),
	)
	return st.Size(), nil
}

// ReadFile loads the pattern stored at path.
func ReadFile(path string) (*encode.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer f.Close()
	p, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p, nil
}
