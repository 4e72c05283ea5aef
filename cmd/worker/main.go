/**
 * OCR Comparison Worker - Main Entry Point
 *
 * Runs every configured OCR engine over the pages of each queued job and
 * stores a ranked, multi-view comparison of the results.
 *
 * Architecture:
 * - Redis list or Asynq consumer for the job queue (QUEUE_BACKEND)
 * - Engines: Tesseract (local), MageAgent and Ollama (remote)
 * - Comparison pipeline: quality, accuracy, reports, evaluation form
 * - Accuracy database in PostgreSQL or a JSON file
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/config"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/orchestrator"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/pages"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/processor"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/queue"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/storage"
)

// consumer is what both queue backends offer the shell
type consumer interface {
	start() error
	stop() error
}

type redisBackend struct{ c *queue.RedisConsumer }

func (b redisBackend) start() error { return b.c.Start() }
func (b redisBackend) stop() error  { return b.c.Stop() }

type asynqBackend struct{ c *queue.Consumer }

func (b asynqBackend) start() error { return b.c.Start(context.Background()) }
func (b asynqBackend) stop() error  { return b.c.Stop(context.Background()) }

func main() {
	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithWriter("OCRCompareWorker", os.Stdout, logging.ParseLevel(cfg.LogLevel))

	log.Printf("OCR Comparison Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s (%s), Workers=%d, TargetScript=%s",
		cfg.RedisURL, cfg.QueueName, cfg.QueueBackend, cfg.WorkerConcurrency, cfg.TargetScript)

	// Initialize storage (PostgreSQL or JSON accuracy database)
	log.Printf("Connecting to storage...")
	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.AccuracyDBPath, logger.Named("StorageManager"))
	if err != nil {
		log.Fatalf("Failed to initialize storage manager: %v", err)
	}
	defer storageManager.Close()
	log.Printf("Storage manager initialized (backend=%s)", storageManager.Backend())

	// Register engines
	opts := processor.OptionsFromConfig(cfg)
	manager := orchestrator.NewManager(opts.Orchestrator, logger.Named("Orchestrator"))

	log.Printf("Probing OCR engines...")
	registered, err := processor.RegisterEngines(context.Background(), manager,
		processor.ConfiguredEngines(cfg, logger.Named("EngineSetup")), logger.Named("EngineSetup"))
	if err != nil {
		log.Fatalf("Failed to register engines: %v", err)
	}
	log.Printf("%d engines registered: %v", registered, manager.EngineNames())

	proc, err := processor.NewComparisonProcessor(&processor.ProcessorConfig{
		Options:      opts,
		Orchestrator: manager,
		Jobs:         storageManager,
		Store:        storageManager,
		Logger:       logger.Named("ComparisonProcessor"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize comparison processor: %v", err)
	}

	// Initialize queue consumer
	log.Printf("Connecting to Redis queue...")
	queueConsumer, err := newConsumer(cfg, proc, logger)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := queueConsumer.start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("OCR Comparison Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s)", cfg.QueueName, cfg.QueueBackend)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Engines: %v (max %d concurrent)", manager.EngineNames(), cfg.MaxConcurrentEngines)
	log.Printf("Accuracy database: %s", storageManager.Backend())
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	log.Printf("Stopping queue consumer...")
	if err := queueConsumer.stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	if err := healthCheck(storageManager); err != nil {
		log.Printf("Storage unhealthy at shutdown: %v", err)
	}

	log.Printf("Shutdown complete")
}

func newConsumer(cfg *config.Config, proc *processor.ComparisonProcessor, logger *logging.Logger) (consumer, error) {
	fetcher := pages.NewDownloader(logger.Named("PageDownloader"))

	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			Fetcher:           fetcher,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logger.Named("AsynqConsumer"),
		})
		if err != nil {
			return nil, err
		}
		return asynqBackend{c}, nil
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			Fetcher:           fetcher,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logger.Named("RedisConsumer"),
		})
		if err != nil {
			return nil, err
		}
		return redisBackend{c}, nil
	}
}

// healthCheck verifies the accuracy database is reachable
func healthCheck(sm *storage.StorageManager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := sm.GetStats(ctx); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
