package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShounakMahata18/video-call/internal/config"
	"github.com/ShounakMahata18/video-call/internal/logging"
	"github.com/ShounakMahata18/video-call/internal/metrics"
	"github.com/ShounakMahata18/video-call/internal/server"
	"github.com/ShounakMahata18/video-call/internal/signaling"
)

func main() {
	logging.Init()

	cfg, err := config.LoadServer(nil)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mtr := metrics.New()
	hub := signaling.NewHub(slog.Default(), mtr, signaling.HubOptions{
		RoomIDLength:    cfg.RoomIDLength,
		RoomTTL:         cfg.RoomTTL,
		EnforceSameRoom: cfg.EnforceSameRoom,
	})
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewMux(hub, mtr),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting signaling server", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
