// Command slmstream keeps a spatial light modulator showing the newest
// hologram from a holoserver. Without hardware attached, frames are written
// to HOLO_FRAME_DIR.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/holotrain/internal/config"
	"github.com/talgya/holotrain/internal/slm"
)

func main() {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.LogLevel))

	if cfg.RenderInterval > 0 && cfg.AdminKey == "" {
		slog.Error("HOLO_RENDER_INTERVAL needs HOLO_ADMIN_KEY")
		os.Exit(1)
	}

	slog.Info("SLM streamer starting",
		"api_url", cfg.APIURL,
		"interval", cfg.SyncInterval,
		"render_every", cfg.RenderInterval,
		"render_timeout", cfg.RenderTimeout,
		"frames", cfg.FrameDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := slm.NewClient(cfg.APIURL, cfg.AdminKey)
	client.RenderTimeout = cfg.RenderTimeout

	// The server process may still be opening its database.
	slog.Info("waiting for holotrain API...")
	if err := client.WaitReady(ctx, 5*time.Minute); err != nil {
		slog.Error("API never became ready", "error", err)
		os.Exit(1)
	}

	streamer := &slm.Streamer{
		Client:      client,
		Device:      &slm.FileDevice{Dir: cfg.FrameDir},
		Interval:    cfg.SyncInterval,
		RenderEvery: cfg.RenderInterval,
	}
	streamer.Run(ctx)

	fmt.Printf("Streamer stopped after %d frames.\n", streamer.Shown())
}
