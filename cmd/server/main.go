package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/snipgo/snip/config"
	"github.com/snipgo/snip/internal/cache"
	"github.com/snipgo/snip/internal/codec"
	"github.com/snipgo/snip/internal/filter"
	"github.com/snipgo/snip/internal/handler"
	"github.com/snipgo/snip/internal/logger"
	"github.com/snipgo/snip/internal/middleware"
	"github.com/snipgo/snip/internal/repository"
	"github.com/snipgo/snip/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Server.Mode)

	// Initialize MySQL repository
	db, err := repository.Open(cfg.MySQL.DSN(), cfg.MySQL.MaxIdleConns, cfg.MySQL.MaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	repo, err := repository.NewURLRepository(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	defer repo.Close()

	// Initialize Redis cache
	redisCache, err := cache.NewRedisCache(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Redis cache")
	}
	defer redisCache.Close()

	// Initialize identifier filter
	idFilter := filter.NewIdentifierFilter(
		cfg.BloomFilter.Capacity,
		cfg.BloomFilter.FalsePositiveRate,
	)

	// Initialize short-code codec
	cdc, err := codec.New(cfg.Shortener.Salt, cfg.Shortener.MinLength, cfg.Shortener.Alphabet)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize codec")
	}

	// Initialize URL service
	urlService := service.NewURLService(repo, cdc, redisCache, idFilter)

	// Load all issued identifiers into the filter
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := urlService.SeedFilter(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to seed identifier filter")
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	requestLogger, err := middleware.NewRequestLogger(cfg.Snowflake.DatacenterID, cfg.Snowflake.WorkerID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize request logger")
	}
	router.Use(requestLogger.Middleware())

	urlHandler := handler.NewURLHandler(
		urlService,
		cfg.Server.BaseURL,
		cfg.Pagination.DefaultLimit,
		cfg.Pagination.MaxLimit,
	)

	// Register routes
	router.GET("/health", urlHandler.HealthCheck)
	router.GET("/:code", urlHandler.Redirect)

	api := router.Group("/api/v1")
	{
		api.POST("/shorten", urlHandler.Shorten)
		api.GET("/urls", urlHandler.List)
		api.GET("/urls/:code", urlHandler.GetInfo)
		api.GET("/urls/:code/stats", urlHandler.GetStats)
		api.PATCH("/urls/:id", urlHandler.Update)
		api.DELETE("/urls/:id", urlHandler.Delete)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	// Graceful shutdown with 5 second timeout
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
