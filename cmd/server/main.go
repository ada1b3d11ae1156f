package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/adapters/elevenlabs"
	"github.com/satriahrh/convai-relay/adapters/memory"
	"github.com/satriahrh/convai-relay/adapters/redis"
	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
	"github.com/satriahrh/convai-relay/internal/api"
	"github.com/satriahrh/convai-relay/internal/auth"
	"github.com/satriahrh/convai-relay/internal/config"
	"github.com/satriahrh/convai-relay/internal/convai"
	"github.com/satriahrh/convai-relay/internal/logging"
	"github.com/satriahrh/convai-relay/internal/metrics"
	"github.com/satriahrh/convai-relay/internal/websocket"
)

const ticketSweepInterval = time.Minute

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("Failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.GeneratedTicketKey {
		logger.Warn("RELAY_TICKET_SECRET not set; generated a per-process secret")
	}

	// Initialize adapters
	elevenLabs, err := elevenlabs.NewClient(elevenlabs.NewConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to create ElevenLabs client", zap.Error(err))
	}

	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticketStore repositories.TicketStore
	if cfg.RedisURL != "" {
		store, err := redis.Connect(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect ticket store", zap.Error(err))
		}
		defer store.Close()
		ticketStore = store
	} else {
		store := memory.NewTicketStore()
		sweeper := memory.NewSweeper(store, ticketSweepInterval, logger)
		sweeper.Start()
		defer sweeper.Stop()
		ticketStore = store
		logger.Info("Using in-memory ticket store")
	}
	tickets := auth.NewTicketIssuer(cfg.RelayTicketSecret, cfg.RelayTicketTTL, ticketStore, logger)

	// Initialize WebSocket hub; each browser gets its own conversation
	hub := websocket.NewHub(
		elevenLabs,
		elevenLabs,
		convai.NewDialer(gorilla.DefaultDialer, logger),
		websocket.Options{
			AllowedOrigin:      cfg.AllowedOrigin,
			PlaybackAckTimeout: cfg.PlaybackAckTimeout,
			SynthesisFormat:    entities.FormatMP3,
		},
		m,
		logger,
	)
	go hub.Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.AllowedOrigin},
	}))
	e.Use(api.MetricsMiddleware(m))

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		SignedURLs: elevenLabs,
		TTS:        elevenLabs,
		Tickets:    tickets,
		Hub:        hub,
		Metrics:    m,
		StaticDir:  cfg.StaticDir,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Relay server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// end conversations first so browsers receive a close frame
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
