package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/dialogue"
	"github.com/cardio-ai/triage/internal/llm"
	"github.com/cardio-ai/triage/internal/notify"
	"github.com/cardio-ai/triage/internal/patient"
	"github.com/cardio-ai/triage/internal/rules"
	"github.com/cardio-ai/triage/internal/shared/auth"
	"github.com/cardio-ai/triage/internal/shared/config"
	"github.com/cardio-ai/triage/internal/shared/database"
	"github.com/cardio-ai/triage/internal/shared/logging"
	"github.com/cardio-ai/triage/internal/shared/metrics"
	secmiddleware "github.com/cardio-ai/triage/internal/shared/middleware"
	"github.com/cardio-ai/triage/internal/transport/ws"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	patientRepo := patient.NewRepository(db.Pool)
	consultRepo := consult.NewRepository(db.Pool)
	rulesRepo := rules.NewRepository(db.Pool)

	gateway := llm.NewGateway(llm.NewOpenAIClient(cfg.OpenAI), logger)

	var messenger notify.Messenger
	if cfg.Telegram.BotToken != "" {
		messenger = notify.NewTelegramClient(cfg.Telegram)
	} else {
		logger.Warn("telegram not configured, doctor notifications disabled")
	}
	var scheduler notify.Scheduler
	if cfg.Calendar.AccessToken != "" && cfg.Calendar.CalendarID != "" {
		scheduler = notify.NewCalendarClient(cfg.Calendar)
	} else {
		logger.Warn("calendar not configured, consults will need manual scheduling")
	}
	notifier := notify.NewService(messenger, scheduler, logger)

	registry := dialogue.NewRegistry()
	hub := ws.NewHub(logger)
	machine := dialogue.NewMachine(registry, patientRepo, consultRepo, rulesRepo, gateway, hub, notifier, logger)
	wsHandler := ws.NewHandler(machine, hub, logger)

	limiter := secmiddleware.NewIPRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)
	r.Use(limiter.Middleware)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(db))
	r.Handle("/metrics", metrics.Handler())

	r.Handle("/ws", wsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Request timeout stays off the /ws route; dialogue sessions are
		// long-lived.
		r.Use(middleware.Timeout(60 * time.Second))
		var adminOnly func(http.Handler) http.Handler
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
			adminOnly = auth.RequireRoles(auth.RoleAdmin)
		}

		r.Mount("/patients", patient.NewHandler(patientRepo).Routes())
		r.Mount("/", rules.NewHandler(rulesRepo, adminOnly).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	logger.Info("triage service starting",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.OpenAI.Model))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	<-done
	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}

		if err := db.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		allReady := checks["database"] == "ready"
		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
