// Command holoserver serves stored holograms to SLM controllers and renders
// new ones on authenticated request.
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

	"github.com/talgya/holotrain/internal/api"
	"github.com/talgya/holotrain/internal/config"
	"github.com/talgya/holotrain/internal/persistence"
)

func main() {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.LogLevel))

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	count, err := db.CountPatterns()
	if err != nil {
		slog.Error("failed to read database", "error", err)
		os.Exit(1)
	}
	slog.Info("database opened", "path", cfg.DBPath, "patterns", count)

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("HOLO_ADMIN_KEY not set, POST /api/v1/render is disabled")
	}
	server := &api.Server{
		DB:         db,
		Port:       cfg.Port,
		AdminKey:   cfg.AdminKey,
		Optics:     cfg.Optics,
		Scene:      cfg.Scene,
		Render:     cfg.Render,
		MaxSources: cfg.MaxSources,
		DataRate:   cfg.DataRate,
		TrustProxy: cfg.TrustProxy,
	}
	srv := server.Start()

	fmt.Printf("\nholotrain is serving %d patterns for a %s SLM.\n", count, cfg.Optics.String())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	fmt.Println("Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	slog.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	fmt.Println("Server stopped.")
}
