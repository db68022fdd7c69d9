package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/internal/ai"
	"github.com/gametable/gametable/internal/auth"
	"github.com/gametable/gametable/internal/config"
	"github.com/gametable/gametable/internal/handler"
	"github.com/gametable/gametable/internal/hub"
	"github.com/gametable/gametable/internal/lock"
	"github.com/gametable/gametable/internal/logger"
	"github.com/gametable/gametable/internal/middleware"
	"github.com/gametable/gametable/internal/registry"
	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/internal/repository/memory"
	"github.com/gametable/gametable/internal/repository/postgres"
	redisrepo "github.com/gametable/gametable/internal/repository/redis"
	"github.com/gametable/gametable/internal/service"
	"github.com/gametable/gametable/pkg/games/tictactoe"
)

func main() {
	godotenv.Load()
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config invalid")
	}
	log.Info().Str("store", cfg.Store).Str("port", cfg.Port).Msg("Config loaded")

	// Store
	var repo repository.GameRepository
	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
		repo = postgres.NewGameRepo(db)
	case config.StoreRedis:
		client, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		defer client.Close()
		repo = redisrepo.NewStore(client)
	default:
		repo = memory.NewStore()
	}

	// Engines
	engines := registry.New()
	if err := engines.Register(tictactoe.New()); err != nil {
		log.Fatal().Err(err).Msg("Engine registration failed")
	}

	// Core wiring
	wsHub := hub.NewHub()
	locks := lock.NewManager()
	driver := ai.NewDriver()
	tokens := auth.NewTokenManager(cfg.JWTSecret)

	// Services
	gameSvc := service.NewGameService(repo, engines, locks, wsHub)
	moveSvc := service.NewMoveService(repo, engines, locks, wsHub, driver)

	// Handlers
	gameHandler := handler.NewGameHandler(gameSvc, engines)
	moveHandler := handler.NewMoveHandler(moveSvc)
	sessionHandler := handler.NewSessionHandler(tokens)
	wsHandler := handler.NewWSHandler(wsHub, tokens)

	// Router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Health)

	mux.HandleFunc("POST /api/games", gameHandler.CreateGame)
	mux.HandleFunc("GET /api/games", gameHandler.ListGames)
	mux.HandleFunc("GET /api/games/{id}", gameHandler.GetGame)
	mux.HandleFunc("POST /api/games/{id}/join", gameHandler.JoinGame)
	mux.HandleFunc("POST /api/games/{id}/abandon", gameHandler.AbandonGame)
	mux.HandleFunc("GET /api/games/{id}/board", gameHandler.RenderBoard)
	mux.HandleFunc("POST /api/games/{id}/moves", moveHandler.SubmitMove)
	mux.HandleFunc("POST /api/games/{id}/moves/validate", moveHandler.ValidateMove)
	mux.HandleFunc("GET /api/game-types", gameHandler.ListGameTypes)
	mux.HandleFunc("POST /api/session", sessionHandler.CreateSession)

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.RequestID, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
