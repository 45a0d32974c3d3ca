package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/config"
	"github.com/soaringjerry/surveydesk/internal/middleware"
	"github.com/soaringjerry/surveydesk/internal/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger := cfg.NewLogger()
			slog.SetDefault(logger)
			for _, w := range cfg.Warnings {
				logger.Warn("config", "warning", w)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Warn("close store", "error", cerr)
				}
			}()

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           buildHandler(cfg, store, logger),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      2 * time.Minute,
				IdleTimeout:       120 * time.Second,
			}
			go func() {
				<-ctx.Done()
				logger.Info("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("surveydesk listening", "addr", cfg.Addr, "store", cfg.Store, "commit", cfg.Commit)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		},
	}
}

// buildHandler wires the middleware chain, the /api tree, the health
// endpoints and the frontend.
func buildHandler(cfg *config.Config, store api.Store, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.LocaleMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		locale := middleware.LocaleFromContext(r.Context())
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status, ok := http.StatusOK, true
		if err := store.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			status, ok = http.StatusServiceUnavailable, false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         ok,
			"name":       "SurveyDesk API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})

	rt := api.NewRouter(store, api.Options{
		Auth:         middleware.NewAuth(cfg.JWTSecret),
		Logger:       logger,
		FetchTimeout: cfg.FetchTimeout,
		Location:     cfg.Location,
		ExportLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.ExportRPS,
			Burst:             cfg.ExportBurst,
		},
	})
	r.Mount("/api", middleware.NoStore(rt.Routes()))

	// Frontend: static files win over the dev proxy.
	switch {
	case cfg.StaticDir != "":
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	case cfg.DevFrontendURL != "":
		u, err := url.Parse(cfg.DevFrontendURL)
		if err != nil {
			logger.Warn("invalid dev frontend url", "url", cfg.DevFrontendURL, "error", err)
			break
		}
		rp := httputil.NewSingleHostReverseProxy(u)
		rp.ModifyResponse = func(res *http.Response) error {
			res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			res.Header.Set("Pragma", "no-cache")
			res.Header.Set("Expires", "0")
			return nil
		}
		r.Handle("/*", rp)
	}
	return r
}
