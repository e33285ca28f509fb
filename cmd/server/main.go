package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/roomcast/roomcast/internal/gateway"
	"github.com/roomcast/roomcast/internal/httpapi"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("LISTEN_ADDR", ":3001"), "http listen address")
	origins := flag.String("origins", envOr("ALLOWED_ORIGINS", "*"), "comma-separated CORS allow-list")
	sampleInterval := flag.Duration("sample-interval", envDurationOr("SAMPLE_INTERVAL", gateway.DefaultSampleInterval), "metrics sampling interval")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	allowedOrigins := splitOrigins(*origins)

	metrics := gateway.NewMetrics()
	hub := gateway.NewHub(metrics, allowedOrigins, logger)
	go hub.Run()

	sampler := gateway.NewSampler(hub, metrics, *sampleInterval, logger)
	go sampler.Run()

	api := httpapi.New(hub, logger)
	srv := &http.Server{
		Addr:        *addr,
		Handler:     api.Router(allowedOrigins),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("server started", "addr", *addr, "origins", allowedOrigins)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	sampler.Stop()
	sampler.Wait()
	hub.Stop()
	hub.Wait()

	logger.Info("shutdown complete")
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
