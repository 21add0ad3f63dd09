package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/library-circulation/internal/circulation/components"
	"github.com/library-circulation/internal/circulation/consumer"
	"github.com/library-circulation/internal/circulation/outbox_poller"
	"github.com/library-circulation/internal/circulation/sweeper"
	"github.com/library-circulation/internal/config"
	"github.com/library-circulation/internal/data/mongo"
	"github.com/library-circulation/internal/data/postgres"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/logger"
	"github.com/library-circulation/internal/platform/messaging/consumers"
	"github.com/library-circulation/internal/platform/messaging/producers"
	"github.com/library-circulation/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("circulation_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Circulation Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// The API gateway applies migrations; the worker only connects
	postgresDB, err := persistence.Connect(appCtx, log, &cfg.Postgres)
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
	clock := shared.SystemClock{}
	repos := components.NewPostgresRepositories(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	timelineRepo := mongo.NewTimelineRepository(log, mongoDB.Timeline())
	if err := timelineRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure timeline indexes", "error", err)
		os.Exit(1)
	}

	circulationService, err := components.CreateCirculationService(postgresDB, repos, timelineRepo, outboxRepo, clock, log, cfg)
	if err != nil {
		log.Error("Failed to create circulation service", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producers
	eventProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize event Kafka producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// A nil *DLQProducer must not reach the projector as a non-nil interface
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	// Initialize the timeline projector and its consumer
	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka)
	projector := consumer.NewTimelineProjector(log.With("component", "timeline_projector"), timelineRepo, deadLetters, clock)

	// Initialize outbox poller
	publisher := outbox_poller.NewKafkaEventPublisher(outboxRepo, eventProducer, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, publisher, log.With("component", "outbox_poller"))

	// Initialize lifecycle sweeper
	lifecycleSweeper, err := sweeper.NewSweeper(circulationService, sweeper.Config{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
		PoolSize:  cfg.WorkerPool.Size,
	}, log.With("component", "sweeper"))
	if err != nil {
		log.Error("Failed to create sweeper", "error", err)
		os.Exit(1)
	}

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.EventsTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, projector.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Start sweeper in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		lifecycleSweeper.Run(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		<-kafkaConsumer.Done()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	lifecycleSweeper.Shutdown()

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing event Kafka producer", "error", err)
	}

	// Close is nil-safe on a disabled DLQ producer
	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Circulation Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Circulation Worker shutdown completed with errors")
	} else {
		log.Info("Circulation Worker shutdown completed successfully")
	}
}
