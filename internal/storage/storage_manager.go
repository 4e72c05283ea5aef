/**
 * Storage Manager for the OCR Comparison Worker
 *
 * Chooses the accuracy database backend (PostgreSQL when a database URL is
 * configured, otherwise the JSON file) and routes comparison job status to
 * PostgreSQL when available. Without PostgreSQL, job status is only logged.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// StorageManager coordinates accuracy persistence and job tracking
type StorageManager struct {
	postgres *PostgresClient
	file     *JSONStore
	logger   *logging.Logger
}

// NewStorageManager creates a storage manager. An empty postgresURL selects the
// JSON file at accuracyDBPath.
func NewStorageManager(postgresURL, accuracyDBPath string, logger *logging.Logger) (*StorageManager, error) {
	logger = logging.OrDefault(logger, "StorageManager")

	if postgresURL != "" {
		postgres, err := NewPostgresClient(postgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		logger.Info("Accuracy database backed by PostgreSQL")
		return &StorageManager{postgres: postgres, logger: logger}, nil
	}

	if accuracyDBPath == "" {
		return nil, fmt.Errorf("accuracy database path is required when no database URL is set")
	}
	logger.Info("Accuracy database backed by JSON file", "path", accuracyDBPath)
	return &StorageManager{file: NewJSONStore(accuracyDBPath, logger), logger: logger}, nil
}

// Backend names the active accuracy backend
func (sm *StorageManager) Backend() string {
	if sm.postgres != nil {
		return "postgres"
	}
	return "json"
}

// AppendEvaluations records evaluations in the active backend
func (sm *StorageManager) AppendEvaluations(ctx context.Context, evals map[string]model.Evaluation) (string, error) {
	if sm.postgres != nil {
		return sm.postgres.AppendEvaluations(ctx, evals)
	}
	return sm.file.AppendEvaluations(ctx, evals)
}

// Load returns the accuracy database from the active backend
func (sm *StorageManager) Load(ctx context.Context) (*model.AccuracyDatabase, error) {
	if sm.postgres != nil {
		return sm.postgres.Load(ctx)
	}
	return sm.file.Load(ctx)
}

// UpdateJobStatus persists job status in PostgreSQL, or logs it when no database is configured
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if sm.postgres != nil {
		return sm.postgres.UpdateJobStatus(ctx, update)
	}
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	sm.logger.Info("Job status",
		"job_id", update.JobID,
		"status", update.Status,
		"best_engine", update.BestEngine,
		"failed_engines", update.FailedEngines)
	return nil
}

// GetJobByID retrieves a job by ID; requires PostgreSQL
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if sm.postgres == nil {
		return nil, fmt.Errorf("job lookup requires PostgreSQL")
	}
	return sm.postgres.GetJobByID(ctx, jobID)
}

// GetStats returns backend statistics
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"backend": sm.Backend()}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
		return stats, nil
	}

	db, err := sm.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, h := range db.Engines {
		total += h.TotalEvaluations
	}
	stats["json"] = map[string]interface{}{
		"path":              sm.file.Path(),
		"engines":           len(db.Engines),
		"total_evaluations": total,
	}
	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips escapes JSONB rejects: \u0000 is removed and
// other control-character escapes become a space. OCR output can contain both.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
