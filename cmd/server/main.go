package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/auth"
	"github.com/freeeve/enclaves/internal/config"
	"github.com/freeeve/enclaves/internal/handler"
	"github.com/freeeve/enclaves/internal/logger"
	"github.com/freeeve/enclaves/internal/middleware"
	"github.com/freeeve/enclaves/internal/repository/postgres"
	redisrepo "github.com/freeeve/enclaves/internal/repository/redis"
	"github.com/freeeve/enclaves/internal/service"
	"github.com/freeeve/enclaves/internal/worker"
)

func main() {
	logger.Init(logger.OptionsFromEnv())
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	engine, err := cfg.Engine()
	if err != nil {
		log.Fatal().Err(err).Str("catalog", cfg.CatalogPath).Msg("Failed to load event catalogue")
	}
	log.Info().
		Dur("turnDuration", cfg.TurnDuration).
		Float64("hazardChance", cfg.HazardChance).
		Int("profiles", len(engine.Profiles)).
		Msg("Config loaded")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	db, err := postgres.Connect(startCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	redisClient, err := redisrepo.NewClient(startCtx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()
	if err := redisClient.EnableTimerEvents(startCtx); err != nil {
		log.Warn().Err(err).Msg("Timer expiry events unavailable, relying on the poller")
	}

	// Repos
	sessionRepo := postgres.NewSessionRepo(db)
	turnRepo := postgres.NewTurnRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret).WithExpiry(cfg.AccessTTL, cfg.RefreshTTL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Resolution worker
	resolver := worker.New()
	defer resolver.Close()

	// Services
	turnSvc := service.NewTurnService(sessionRepo, turnRepo, redisClient, wsHub, resolver, engine, cfg.TurnDuration,
		service.WithHazardChance(cfg.HazardChance))
	sessionSvc := service.NewSessionService(sessionRepo, turnRepo, redisClient, turnSvc, wsHub)
	orderSvc := service.NewOrderService(sessionRepo, redisClient, engine, service.WithSessionLocks(turnSvc.Locks()))

	// Timer listener (auto-resolve on expiry)
	timerListener := service.NewTimerListener(redisClient.Underlying(), turnSvc, orderSvc, sessionRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr)
	sessionHandler := handler.NewSessionHandler(sessionSvc, turnSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, sessionSvc)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/guest", authHandler.Guest)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("POST /sessions", sessionHandler.CreateSession)
	api.HandleFunc("GET /sessions", sessionHandler.ListSessions)
	api.HandleFunc("GET /sessions/{id}", sessionHandler.GetSession)
	api.HandleFunc("POST /sessions/{id}/reset", sessionHandler.ResetSession)
	api.HandleFunc("POST /sessions/{id}/exit", sessionHandler.ExitSession)
	api.HandleFunc("POST /sessions/{id}/resolve", sessionHandler.ResolveTurn)
	api.HandleFunc("GET /sessions/{id}/turns", sessionHandler.History)
	api.HandleFunc("POST /sessions/{id}/orders", orderHandler.SubmitOrder)
	api.HandleFunc("GET /sessions/{id}/orders", orderHandler.ListOrders)
	api.HandleFunc("DELETE /sessions/{id}/orders/{src}", orderHandler.CancelOrder)
	api.HandleFunc("GET /sessions/{id}/preview/{tid}", orderHandler.Preview)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Results must be consumed before recovery can plan new turns.
	go turnSvc.Run(ctx)

	// Recover active sessions (rehydrate Redis from Postgres after restart)
	if err := sessionSvc.RecoverActiveSessions(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
