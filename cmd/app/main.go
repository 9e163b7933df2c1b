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

	"exchange_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize("configs/config.yaml"); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Match dispatcher (async matching workers)
	dispatcherDone := make(chan struct{})
	go func() {
		bootstrap.Dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	// 5. Notification websocket endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bootstrap.Hub.HandleWS)
	server := &http.Server{
		Addr:    bootstrap.Config.Notify.ListenAddr,
		Handler: mux,
	}
	go func() {
		slog.Info("notification hub listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("notification server failed", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("notification server shutdown", slog.Any("error", err))
	}
	bootstrap.Hub.Close()
	<-dispatcherDone

	slog.Info("bye")
}
