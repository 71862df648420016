package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var port string
	flag.StringVar(&port, "port", "", "HTTP port override (defaults to PORT env var, then 3000)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := LoadConfig()
	if port != "" {
		cfg.Port = port
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, log *slog.Logger) error {
	gateway, err := OpenGateway(cfg.DBPath, cfg.SpatialExtPath, cfg.SpatialExtDir, log)
	if err != nil {
		return err
	}
	defer gateway.Close()

	ctx := context.Background()
	if err := EnsureSchema(ctx, gateway); err != nil {
		return err
	}

	reconciled, err := ReconcileProcessingFiles(ctx, gateway)
	if err != nil {
		return err
	}
	if reconciled > 0 {
		log.Info("reconciler: failed stale in-flight imports", "count", reconciled)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return err
	}

	srv := newServer(gateway, cfg, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
