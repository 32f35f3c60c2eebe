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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hookrelay/internal/api"
	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	"hookrelay/internal/metrics"
)

func main() {
	log := logger.New("main")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvDeps, err := api.NewServer(ctx, cfg)
	if err != nil {
		log.Error("init server", "error", err)
		os.Exit(1)
	}

	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Endpoint registry
	mux.HandleFunc("/v1/endpoints", srvDeps.EndpointsHandler)
	mux.HandleFunc("/v1/endpoints/", srvDeps.EndpointByIDHandler) // includes /deactivate, /stats

	// Emission & delivery status
	mux.HandleFunc("/v1/events", srvDeps.EventsHandler)
	mux.HandleFunc("/v1/events/", srvDeps.EventByIDHandler)

	// Admin recovery
	mux.HandleFunc("/v1/admin/failed", srvDeps.FailedHandler)
	mux.HandleFunc("/v1/admin/requeue/", srvDeps.RequeueHandler)
	mux.HandleFunc("/v1/admin/requeue-failed", srvDeps.RequeueAllFailedHandler)
	mux.HandleFunc("/v1/admin/deliveries/stream", srvDeps.DeliveriesStreamHandler)
	mux.HandleFunc("/v1/admin/debug", srvDeps.DebugJSON)

	// Health & metrics
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           logMiddleware(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := srvDeps.Dispatcher.Start(ctx); err != nil {
		log.Error("start dispatcher", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("API listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if err := srvDeps.Dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("dispatcher shutdown", "error", err)
	}
	log.Info("stopped")
}

func logMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request", "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}
