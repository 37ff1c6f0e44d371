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
	"detak/internal/logger"
	"detak/internal/storage"
	"detak/internal/version"
	"detak/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	log, err := logger.New(cfg.Log, "worker")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	// Create context with cancellation
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

	// Start the consumer
	consumer := worker.NewConsumer(cfg.RabbitMQ, store, log)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start consumer", zap.Error(err))
	}

	// Expose ingestion metrics
	metricsServer := &http.Server{
		Addr:    cfg.Worker.MetricsAddress,
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Info("Serving metrics", zap.String("address", cfg.Worker.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("Metrics server error", zap.Error(err))
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

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown error", zap.Error(err))
	}
	if err := consumer.Stop(); err != nil {
		log.Error("Failed to stop consumer", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
