// Package main runs the martlet backend: candle store API, trade journal,
// auth, scheduled forex sync, and backtest execution.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"martlet/services/auth"
	"martlet/services/clickhouse"
	"martlet/services/config"
	"martlet/services/repository"
	"martlet/services/sync"
)

// Service bundles the server's collaborators for the HTTP handlers.
type Service struct {
	candles   *clickhouse.Client
	db        *repository.Database
	tokens    *auth.TokenIssuer
	scheduler *sync.Scheduler
	logger    *zap.Logger
}

func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	chClient, err := clickhouse.NewClient(clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx := context.Background()
	if err := chClient.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	db, err := repository.NewDatabase(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	scheduler := sync.NewScheduler(logger)
	syncer := sync.NewSyncer(
		chClient,
		sync.NewTiingoClient(cfg.Sync.TiingoBaseURL, cfg.Sync.TiingoToken),
		cfg.Sync.Ticker,
		cfg.Sync.Timeframe,
		logger,
	)
	if err := scheduler.AddSync(cfg.Sync.Schedule, syncer); err != nil {
		return nil, fmt.Errorf("schedule sync: %w", err)
	}

	return &Service{
		candles:   chClient,
		db:        db,
		tokens:    auth.NewTokenIssuer(cfg.JWTSecret, auth.DefaultTokenTTL),
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

func (s *Service) setupRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/login", s.handleLogin)
		api.GET("/auth/me", s.authRequired, s.handleMe)
		api.POST("/auth/refresh", s.authRequired, s.handleRefresh)

		api.GET("/candles", s.handleCandles)

		api.GET("/trades", s.handleListTrades)
		api.POST("/trades", s.handleCreateTrade)
		api.GET("/trades/:ticker/:trading_date", s.handleTradesByTickerDate)
		api.DELETE("/trades/:id", s.handleDeleteTrade)

		api.POST("/backtest/run", s.handleRunBacktest)
		api.GET("/backtest/results", s.handleBacktestResults)

		api.GET("/status", s.handleStatus)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting martlet backend",
		zap.String("environment", cfg.Environment),
		zap.Int("http_port", cfg.HTTPPort),
	)

	service, err := NewService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create service", zap.Error(err))
	}

	service.scheduler.Start()
	defer service.scheduler.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	service.db.Close()
	if err := service.candles.Close(); err != nil {
		logger.Error("ClickHouse close error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
