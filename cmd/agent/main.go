package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"detak/internal/agent"
	"detak/internal/broker"
	"detak/internal/config"
	"detak/internal/logger"
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
	log, err := logger.New(cfg.Log, "agent")
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

	// Connect to the broker
	pub, err := broker.NewPublisher(cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal("Failed to connect to broker", zap.Error(err))
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Error("Failed to close publisher", zap.Error(err))
		}
	}()

	// Start the emitter
	emitter := agent.NewEmitter(cfg.Agent, pub, log)
	if err := emitter.Start(ctx); err != nil {
		log.Fatal("Failed to start emitter", zap.Error(err))
	}

	log.Info("Emitting heartbeats",
		zap.String("uuid", cfg.Agent.UUID),
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.Duration("interval", cfg.Agent.Interval))

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	if err := emitter.Stop(); err != nil {
		log.Error("Failed to stop emitter", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
