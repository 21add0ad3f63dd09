package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/library-circulation/internal/api_gateway"
	"github.com/library-circulation/internal/circulation/components"
	"github.com/library-circulation/internal/config"
	"github.com/library-circulation/internal/data/mongo"
	"github.com/library-circulation/internal/data/postgres"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/logger"
	"github.com/library-circulation/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context; the gateway owns the schema
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	repos := components.NewPostgresRepositories(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	timelineRepo := mongo.NewTimelineRepository(log, mongoDB.Timeline())
	if err := timelineRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure timeline indexes", "error", err)
		os.Exit(1)
	}

	// Initialize services
	circulationService, err := components.CreateCirculationService(
		postgresDB,
		repos,
		timelineRepo,
		outboxRepo,
		shared.SystemClock{},
		log,
		cfg,
	)
	if err != nil {
		log.Error("Failed to create circulation service", "error", err)
		os.Exit(1)
	}

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, circulationService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before the pools go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
