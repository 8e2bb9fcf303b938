package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/api"
	"github.com/xaenox/readfeed/internal/feed"
	"github.com/xaenox/readfeed/internal/generator"
	"github.com/xaenox/readfeed/internal/scheduler"
	"github.com/xaenox/readfeed/internal/storage"
	"github.com/xaenox/readfeed/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize content generator
	var gen generator.Generator
	if cfg.OpenAI.APIKey != "" {
		gen = generator.NewGPTGenerator(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			cfg.OpenAI.Timeout,
			logger,
		)
	} else {
		logger.Warn("No OpenAI API key configured, using template generator")
		gen = generator.NewTemplateGenerator()
	}

	// Initialize feed manager
	feedCfg := feed.DefaultConfig()
	feedCfg.MinFeedSize = cfg.Feed.MinSize
	feedCfg.MaxFeedSize = cfg.Feed.MaxSize
	feedCfg.TTL = cfg.Feed.TTL
	feedCfg.CategoriesPerFeed = cfg.Feed.CategoriesPerFeed
	feedCfg.ItemsPerCategory = cfg.Feed.ItemsPerCategory
	feedCfg.MinLength = cfg.Feed.MinLength
	feedCfg.MaxLength = cfg.Feed.MaxLength
	feedCfg.RefreshBatchSize = cfg.Feed.RefreshBatchSize
	feedCfg.RefreshBatchDelay = cfg.Feed.RefreshBatchDelay
	if len(cfg.Feed.FallbackCategories) > 0 {
		feedCfg.FallbackCategories = cfg.Feed.FallbackCategories
	}
	manager := feed.NewManager(store, gen, feedCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start maintenance tasks
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultConfig()
		schedCfg.RefreshInterval = cfg.Scheduler.RefreshInterval
		schedCfg.CleanupInterval = cfg.Scheduler.CleanupInterval
		schedCfg.NewUserInterval = cfg.Scheduler.NewUserInterval
		schedCfg.AnalyticsInterval = cfg.Scheduler.AnalyticsInterval
		schedCfg.ContentRetention = cfg.Scheduler.ContentRetention
		schedCfg.HealthHour = cfg.Scheduler.HealthHour
		if len(cfg.Scheduler.PeakHours) > 0 {
			schedCfg.PeakHoursOfDay = cfg.Scheduler.PeakHours
		}
		sched = scheduler.New(manager, store, schedCfg, logger)
		sched.Start(ctx)
	}

	// Start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewServer(manager, logger).Router(),
	}
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if sched != nil {
		sched.Wait()
	}
}
