package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
)

// healthRouter serves /healthz from the store's connectivity check.
func healthRouter(check func(context.Context) error, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				log.WarnContext(r.Context(), "health check failed", logger.Error(err))
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.WarnContext(r.Context(), "failed to write health check response", logger.Error(err))
		}
	})

	return r
}

// serveHealth runs the health server until ctx is done.
func serveHealth(ctx context.Context, addr string, h http.Handler, log *slog.Logger) func() error {
	return func() error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("failed to stop health server", logger.Error(err))
			}
		}()

		log.InfoContext(ctx, "health server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
