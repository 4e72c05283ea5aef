/**
 * Direct Redis Queue Consumer for the OCR Comparison Worker
 *
 * Compatible with the TypeScript RedisQueue producers.
 * Uses simple Redis LIST operations: job IDs are pushed onto the queue list
 * and the job bodies live in the <queue>:data hash.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/processor"
)

var errNoJobs = stderrors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ComparisonProcessorInterface
	Fetcher           PageFetcher // optional, needed for jobs carrying page URLs
	ProcessingTimeout int64       // milliseconds (default: 600000 = 10 minutes)
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if err := validateRedisConfig(cfg); err != nil {
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := logging.OrDefault(cfg.Logger, "RedisConsumer")
	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.Fetcher, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

func validateRedisConfig(cfg *RedisConsumerConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("RedisURL is required")
	}
	if cfg.Processor == nil {
		return fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "ocrcompare:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if !stderrors.Is(err, errNoJobs) && c.ctx.Err() == nil {
					c.logger.Error("Worker error", "worker", id, "error", err)
					// Small delay before trying again
					time.Sleep(1 * time.Second)
				}
			}
		}
	}
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// reportKey is the hash holding the rendered reports of one job
func (c *RedisConsumer) reportKey(jobID string) string {
	return fmt.Sprintf("%s:report:%s", c.config.QueueName, jobID)
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queueID := result[1]

	jobData, err := c.client.HGet(c.ctx, c.key("data"), queueID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		// A malformed body can never succeed; park it with the failed jobs
		c.client.SAdd(c.ctx, c.key("failed"), queueID)
		c.client.HSet(c.ctx, c.key("errors"), queueID, fmt.Sprintf(`{"error":%q}`, err.Error()))
		return fmt.Errorf("failed to unmarshal job %s: %w", queueID, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = queueID
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = 3
	}

	jobID := job.Payload.JobID
	c.markProcessing(jobID)

	final := func(err error) bool {
		return !Retryable(err) || job.Attempts+1 >= job.MaxRetries
	}
	processResult, err := c.runner.run(c.ctx, &job.Payload, final)
	if err != nil {
		job.Attempts++
		if !final(err) {
			// Re-queue for retry
			updatedData, _ := json.Marshal(job)
			c.client.HSet(c.ctx, c.key("data"), queueID, updatedData)
			c.client.SRem(c.ctx, c.key("processing"), jobID)
			c.client.LPush(c.ctx, c.config.QueueName, queueID)
			c.logger.Warn("Job re-queued for retry", "job", jobID, "attempt", job.Attempts, "max", job.MaxRetries)
			return nil
		}
		c.markFailed(jobID, err, job.Attempts)
		return nil
	}

	c.markCompleted(jobID, processResult)
	return nil
}

func (c *RedisConsumer) markProcessing(jobID string) {
	c.client.SAdd(c.ctx, c.key("processing"), jobID)
	c.publish(jobID, processor.StatusProcessing, nil)
}

func (c *RedisConsumer) markFailed(jobID string, cause error, attempts int) {
	c.client.SRem(c.ctx, c.key("processing"), jobID)
	c.client.SAdd(c.ctx, c.key("failed"), jobID)

	errorData, _ := json.Marshal(map[string]interface{}{
		"error":    cause.Error(),
		"attempts": attempts,
	})
	c.client.HSet(c.ctx, c.key("errors"), jobID, errorData)
	c.publish(jobID, processor.StatusFailed, map[string]interface{}{"error": cause.Error()})
}

// markCompleted stores the comparison document and rendered reports under the job ID
func (c *RedisConsumer) markCompleted(jobID string, result *processor.ProcessResult) {
	resultData, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("Failed to marshal result", "job", jobID, "error", err)
		resultData = []byte(`{}`)
	}

	fields := map[string]interface{}{
		"dashboard.html":       result.DashboardHTML,
		"detailed_report.md":   result.DetailedReport,
		"detailed_report.html": result.DetailedReportHTML,
	}
	if result.EvaluationForm != nil {
		if csv, err := formCSV(result); err == nil {
			fields["evaluation_form.csv"] = csv
		} else {
			c.logger.Warn("Evaluation form not stored", "job", jobID, "error", err)
		}
	}
	for name, svg := range result.Charts {
		fields[name] = svg
	}

	pipe := c.client.TxPipeline()
	pipe.SRem(c.ctx, c.key("processing"), jobID)
	pipe.SAdd(c.ctx, c.key("completed"), jobID)
	pipe.HSet(c.ctx, c.key("results"), jobID, resultData)
	pipe.HSet(c.ctx, c.reportKey(jobID), fields)
	if _, err := pipe.Exec(c.ctx); err != nil {
		c.logger.Error("Failed to store job results", "job", jobID, "error", err)
	}

	c.publish(jobID, processor.StatusCompleted, map[string]interface{}{
		"bestEngine": result.Comparison.BestPerformingEngine,
		"reports":    sortedKeys(fields),
	})
}

// publish emits a job event for WebSocket streaming
func (c *RedisConsumer) publish(jobID, status string, extra map[string]interface{}) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		event[k] = v
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, c.key("events"), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	waiting, err := c.client.LLen(ctx, c.config.QueueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	processing, _ := c.client.SCard(ctx, c.key("processing")).Result()
	completed, _ := c.client.SCard(ctx, c.key("completed")).Result()
	failed, _ := c.client.SCard(ctx, c.key("failed")).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
