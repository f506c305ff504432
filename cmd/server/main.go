package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parley-chat/parley/internal/api"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/core"
	"github.com/parley-chat/parley/internal/logger"
	"github.com/parley-chat/parley/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()
	logger.SetLevel(config.AppConfig.LogLevel)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.L.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService, err := core.NewLLMService()
	if err != nil {
		logger.L.Error("failed to initialize LLM service", "error", err)
		os.Exit(1)
	}
	defer llmService.Close()

	// Response cache with a background sweep so long-dead entries are
	// reclaimed even when their fingerprints never recur.
	cache := core.NewResponseCache(time.Duration(config.AppConfig.CacheTTLSeconds) * time.Second)
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := cache.Sweep(); removed > 0 {
					logger.L.Debug("cache sweep", "removed", removed)
				}
			case <-sweepDone:
				return
			}
		}
	}()
	defer close(sweepDone)

	// Core services
	summarizer := core.NewSummarizer(llmService, config.AppConfig.SummaryWindowSize)
	window := core.NewWindowManager(summarizer, config.AppConfig.TokenBudget, config.AppConfig.ContextTailSize)
	pipeline := core.NewStreamingPipeline(dbStore, llmService, cache, window,
		time.Duration(config.AppConfig.StreamTimeoutSeconds)*time.Second)
	chatService := core.NewChatService(dbStore, llmService)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, pipeline)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: streamed turns are bounded by the pipeline's own
		// upstream deadline, not by a whole-response timer.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.L.Info("starting server", "address", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Error("server listen failed", "address", serverAddr, "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.L.Info("shutting down server")

	// Give active connections (including in-flight streams) time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.L.Info("server exiting gracefully")
}
