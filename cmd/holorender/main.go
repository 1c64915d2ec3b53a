// Command holorender renders one hologram of the train and stores it as a
// .hologram_cgh file and in the pattern database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/holotrain/internal/config"
	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/optics"
	"github.com/talgya/holotrain/internal/persistence"
	"github.com/talgya/holotrain/internal/preview"
	"github.com/talgya/holotrain/internal/render"
	"github.com/talgya/holotrain/internal/scene"
)

func main() {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.LogLevel))

	slog.Info("holotrain render starting",
		"slm", cfg.Optics.String(),
		"strategy", cfg.Render.Strategy.String(),
		"mode", cfg.Render.Mode.String(),
		"phase_range", cfg.Render.PhaseRange.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Scene ─────────────────────────────────────────────────────────
	var cat *optics.Catalog
	if cfg.Catalog != "" {
		cat, err = scene.LoadFile(cfg.Catalog)
		if err != nil {
			slog.Error("failed to load catalog", "path", cfg.Catalog, "error", err)
			os.Exit(1)
		}
		slog.Info("catalog loaded", "path", cfg.Catalog, "sources", cat.Len())
	} else {
		cat = scene.Generate(cfg.Scene)
	}
	lo, hi := cat.Bounds()
	slog.Info("scene ready",
		"sources", humanize.Comma(int64(cat.Len())),
		"z", fmt.Sprintf("%.4f..%.4f m", lo.Z, hi.Z),
		"intensity", fmt.Sprintf("%.3f..%.3f", lo.Intensity, hi.Intensity),
	)

	// ── Render ────────────────────────────────────────────────────────
	pass := render.NewPass(cat, cfg.Optics, cfg.Render)
	pass.OnTransition = func(from, to render.State) {
		slog.Debug("render state", "from", from.String(), "to", to.String())
	}
	pat, err := pass.Run(ctx)
	if err != nil {
		slog.Error("render failed", "state", pass.State().String(), "error", err)
		os.Exit(1)
	}
	st := pass.Stats()

	// ── Output ────────────────────────────────────────────────────────
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		slog.Error("failed to create output dir", "error", err)
		os.Exit(1)
	}
	path := filepath.Join(cfg.OutDir, persistence.FileName(cfg.FileTemplate, time.Now()))
	size, err := persistence.WriteFile(path, pat)
	if err != nil {
		slog.Error("failed to write pattern file", "error", err)
		os.Exit(1)
	}

	id := ""
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			slog.Error("failed to create database dir", "error", err)
			os.Exit(1)
		}
		db, err := persistence.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		id, err = db.SaveRender(pat, st)
		db.Close()
		if err != nil {
			slog.Error("failed to store pattern", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Preview != "" {
		if err := writePreview(cfg.Preview, pat, cfg.PreviewMax); err != nil {
			slog.Error("preview failed", "error", err)
		}
	}

	values := pat.Values()
	vmin, vmax := values[0], values[0]
	for _, v := range values {
		vmin, vmax = min(vmin, v), max(vmax, v)
	}
	fmt.Printf("\nHologram ready: %s, %s sources, %s in %s.\n",
		pat.String(), humanize.Comma(int64(st.Sources)), st.Strategy, st.Accumulate.Round(time.Millisecond))
	fmt.Printf("Saved %s (%s)\n", path, humanize.Bytes(uint64(size)))
	if id != "" {
		fmt.Printf("Pattern id: %s\n", id)
	}
	fmt.Printf("Value range: %.4f / %.4f (%s)\n", vmin, vmax, st.Mode)
}

func writePreview(path string, p *encode.Pattern, maxDim int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := preview.WritePNG(f, p, maxDim); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("preview written", "path", path)
	return nil
}
