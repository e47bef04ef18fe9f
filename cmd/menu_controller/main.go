package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/api"
	"github.com/dgnsrekt/menu_agent/internal/config"
	"github.com/dgnsrekt/menu_agent/internal/controller"
	"github.com/dgnsrekt/menu_agent/internal/logging"
	"github.com/dgnsrekt/menu_agent/internal/netutil"
)

func main() {
	cfg, err := config.LoadController()
	if err != nil {
		slog.Error("failed to load controller config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Run.LogLevel, cfg.Run.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("controller config loaded",
		"bind_addr", cfg.BindAddr,
		"capture_dir", cfg.CaptureDir,
		"session_provider", cfg.Run.SessionProvider,
		"store_url", cfg.Run.StoreURL,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.Run.LogLevel,
		"log_file", cfg.Run.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	svc := controller.NewService(cfg.Run, cfg.CaptureDir, controller.DefaultRunFunc)
	h := api.NewServer(svc)

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("controller server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("controller shutdown failed", "error", err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		slog.Error("capture shutdown failed", "error", err)
	}
}
