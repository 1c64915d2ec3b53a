package slm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/persistence"
)

// Device shows a pattern on the modulator.
type Device interface {
	Display(ctx context.Context, id string, p *encode.Pattern) error
}

// FileDevice stands in for SLM hardware: every displayed frame is written
// to Dir as a .hologram_cgh file named after the pattern id.
type FileDevice struct {
	Dir string
}

// Display writes the frame.
func (d *FileDevice) Display(ctx context.Context, id string, p *encode.Pattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("frame dir: %w", err)
	}
	_, err := persistence.WriteFile(filepath.Join(d.Dir, id+persistence.FileExt), p)
	return err
}

// Streamer keeps a Device showing the server's newest pattern.
type Streamer struct {
	Client   *Client
	Device   Device
	Interval time.Duration // Status polling period

	// RenderEvery, when positive, asks the server for a fresh pattern on
	// that period using Request. The client needs an admin key.
	RenderEvery time.Duration
	Request     RenderRequest

	last  string
	shown int
}

// Last returns the id of the pattern on the device.
func (s *Streamer) Last() string { return s.last }

// Shown returns how many frames have been displayed.
func (s *Streamer) Shown() int { return s.shown }

// Sync displays the newest pattern if it differs from the one on the
// device. It reports whether a new frame was shown.
func (s *Streamer) Sync(ctx context.Context) (bool, error) {
	st, err := s.Client.Status(ctx)
	if err != nil {
		return false, err
	}
	if st.LastPattern == "" || st.LastPattern == s.last {
		return false, nil
	}

	start := time.Now()
	p, err := s.Client.Fetch(ctx, st.LastPattern)
	if err != nil {
		return false, err
	}
	fetched := time.Since(start)
	if err := s.Device.Display(ctx, st.LastPattern, p); err != nil {
		return false, fmt.Errorf("display %s: %w", st.LastPattern, err)
	}
	s.last = st.LastPattern
	s.shown++

	meta := p.Meta()
	slog.Info("frame displayed",
		"id", s.last,
		"size", fmt.Sprintf("%dx%d", p.Width(), p.Height()),
		"mode", meta.Mode.String(),
		"range", encode.Range(meta.Mode, meta.PhaseRange).String(),
		"fetch", fetched.Round(time.Millisecond),
		"total", time.Since(start).Round(time.Millisecond),
	)
	return true, nil
}

// Run syncs immediately and then on every tick until ctx ends. Failed
// cycles are logged and retried on the next tick.
func (s *Streamer) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var renderC <-chan time.Time
	if s.RenderEvery > 0 {
		rt := time.NewTicker(s.RenderEvery)
		defer rt.Stop()
		renderC = rt.C
	}

	// Renders run off the loop; at most one is outstanding.
	rendered := make(chan struct{}, 1)
	var rendering atomic.Bool

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		case <-rendered:
			s.cycle(ctx)
		case <-renderC:
			if !rendering.CompareAndSwap(false, true) {
				slog.Debug("render still running, skipping request")
				continue
			}
			go func() {
				defer rendering.Store(false)
				if s.requestRender(ctx) {
					select {
					case rendered <- struct{}{}:
					default:
					}
				}
			}()
		}
	}
}

func (s *Streamer) requestRender(ctx context.Context) bool {
	res, err := s.Client.Render(ctx, s.Request)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("render request failed", "error", err)
		}
		return false
	}
	slog.Info("render requested",
		"id", res.ID,
		"sources", res.Stats.Sources,
		"strategy", res.Stats.Strategy,
		"accumulate", res.Stats.Accumulate,
	)
	return true
}

func (s *Streamer) cycle(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
		slog.Error("sync failed", "error", err)
	}
}
