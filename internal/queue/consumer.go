/**
 * Queue Consumer for the OCR Comparison Worker
 *
 * Consumes compare-engines tasks through Asynq and runs the comparison
 * pipeline. Failures a retry cannot fix skip Asynq's retry schedule.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/processor"
)

// TaskCompareEngines is the Asynq task type of a comparison job
const TaskCompareEngines = "compare-engines"

// Consumer handles job consumption from an Asynq queue
type Consumer struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobRunner
	config *ConsumerConfig
	logger *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ComparisonProcessorInterface
	Fetcher           PageFetcher
	ProcessingTimeout int64 // milliseconds (default: 600000 = 10 minutes)
	MaxRetries        int
	Logger            *logging.Logger
}

// NewCompareTask builds an Asynq task carrying payload
func NewCompareTask(payload *JobPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(TaskCompareEngines, data, opts...), nil
}

// retryDelay is exponential backoff: 5s, 10s, 20s, capped at 60s
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.OrDefault(cfg.Logger, "AsynqConsumer")

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task processing error",
					"type", task.Type(),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client: client,
		server: server,
		mux:    mux,
		runner: newJobRunner(cfg.Processor, cfg.Fetcher, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
	}

	mux.HandleFunc(TaskCompareEngines, consumer.handleCompareEngines)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// Enqueue submits a comparison job to the consumer's queue
func (c *Consumer) Enqueue(ctx context.Context, payload *JobPayload) (*asynq.TaskInfo, error) {
	opts := []asynq.Option{
		asynq.Queue(c.config.QueueName),
		asynq.MaxRetry(c.config.MaxRetries),
		asynq.Timeout(c.runner.timeout + time.Minute),
	}
	if payload != nil && payload.JobID != "" {
		// a job ID can only be enqueued once
		opts = append(opts, asynq.TaskID(payload.JobID))
	}

	task, err := NewCompareTask(payload, opts...)
	if err != nil {
		return nil, err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info, nil
}

// handleCompareEngines processes one comparison task
func (c *Consumer) handleCompareEngines(ctx context.Context, task *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.JobID = id
		}
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetry = c.config.MaxRetries
	}
	final := func(err error) bool {
		return !Retryable(err) || retried >= maxRetry
	}

	c.logger.Info("Processing comparison task",
		"job", payload.JobID,
		"pages", len(payload.Pages)+len(payload.PageURLs),
		"attempt", retried+1)

	result, err := c.runner.run(ctx, &payload, final)
	if err != nil {
		if !Retryable(err) {
			return fmt.Errorf("comparison failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("comparison failed: %w", err)
	}

	if w := task.ResultWriter(); w != nil {
		if data, err := json.Marshal(result); err == nil {
			if _, err := w.Write(data); err != nil {
				c.logger.Warn("Failed to write task result", "job", payload.JobID, "error", err)
			}
		}
	}
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"maxRetries":  c.config.MaxRetries,
	}
}
