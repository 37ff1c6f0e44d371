package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detak/internal/config"
	"detak/internal/dashboard/api"
	"detak/internal/dashboard/service"
	"detak/internal/logger"
	"detak/internal/storage"
	"detak/internal/version"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		info := version.GetInfo()
		fmt.Println(info.String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log, "dashboard")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.NewMongoStore(ctx, cfg.MongoDB, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	// Initialize optional status cache
	cache, err := service.NewCache(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				log.Error("Failed to close cache", zap.Error(err))
			}
		}()
	}

	// Initialize service and router
	svc := service.New(store, cache, cfg.Redis.CacheTTL, log)

	router, err := api.NewRouter(cfg, svc, log)
	if err != nil {
		log.Fatal("Failed to initialize router", zap.Error(err))
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Dashboard.Address,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Dashboard.ReadTimeout,
		WriteTimeout: cfg.Dashboard.WriteTimeout,
	}

	// Start server in background
	go func() {
		log.Info("Starting dashboard",
			zap.String("address", cfg.Dashboard.Address))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	log.Info("Starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
