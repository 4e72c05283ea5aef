/**
 * PostgreSQL Client for the OCR Comparison Worker
 *
 * Persists the accuracy database (one row per recorded evaluation) and the
 * status of queued comparison jobs.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// PostgresLocation identifies the evaluation table in returned locations
const PostgresLocation = "postgres:ocrcompare.accuracy_evaluations"

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS ocrcompare;

	CREATE TABLE IF NOT EXISTS ocrcompare.accuracy_evaluations (
		id                 BIGSERIAL PRIMARY KEY,
		engine_name        TEXT NOT NULL,
		evaluated_at       TIMESTAMPTZ NOT NULL,
		character_accuracy NUMERIC(5,4) NOT NULL,
		word_accuracy      NUMERIC(5,4) NOT NULL,
		user_rating        SMALLINT NOT NULL,
		comments           TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS accuracy_evaluations_engine_idx
		ON ocrcompare.accuracy_evaluations (engine_name, evaluated_at);

	CREATE TABLE IF NOT EXISTS ocrcompare.comparison_jobs (
		id                 TEXT PRIMARY KEY,
		status             TEXT NOT NULL,
		best_engine        TEXT,
		best_score         NUMERIC(5,4),
		engines_compared   INTEGER,
		pages_processed    INTEGER,
		failed_engines     TEXT[] NOT NULL DEFAULT '{}',
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a comparison job status update
type JobUpdate struct {
	JobID            string
	Status           string
	BestEngine       string
	BestScore        float64
	EnginesCompared  int
	PagesProcessed   int
	FailedEngines    []string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// sanitizeScore clamps a [0,1] score and rounds it to 4 decimal places so it
// fits NUMERIC(5,4) columns
func sanitizeScore(score float64) float64 {
	if score < 0.0 || score != score {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return float64(int(score*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client and ensures the schema exists
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// AppendEvaluations inserts one evaluation row per engine in a single transaction
func (p *PostgresClient) AppendEvaluations(ctx context.Context, evals map[string]model.Evaluation) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ocrcompare.accuracy_evaluations (
			engine_name, evaluated_at, character_accuracy, word_accuracy, user_rating, comments
		) VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for engine, e := range evals {
		if _, err := stmt.ExecContext(ctx,
			engine,
			e.Timestamp,
			sanitizeScore(e.CharacterAccuracy),
			sanitizeScore(e.WordAccuracy),
			e.UserRating,
			e.Comments,
		); err != nil {
			return "", fmt.Errorf("failed to insert evaluation (engine=%s): %w", engine, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit evaluations: %w", err)
	}
	return PostgresLocation, nil
}

// Load rebuilds the accuracy database from the evaluation rows
func (p *PostgresClient) Load(ctx context.Context) (*model.AccuracyDatabase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT engine_name, evaluated_at, character_accuracy, word_accuracy, user_rating, comments
		FROM ocrcompare.accuracy_evaluations
		ORDER BY evaluated_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var db *model.AccuracyDatabase
	for rows.Next() {
		var engine string
		var e model.Evaluation
		if err := rows.Scan(&engine, &e.Timestamp, &e.CharacterAccuracy, &e.WordAccuracy, &e.UserRating, &e.Comments); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		if db == nil {
			db = model.NewAccuracyDatabase(e.Timestamp)
		}
		db.Record(engine, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evaluations: %w", err)
	}

	if db == nil {
		db = model.NewAccuracyDatabase(time.Now().UTC())
	}
	return db, nil
}

// UpdateJobStatus upserts the status row of a comparison job
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	failed := update.FailedEngines
	if failed == nil {
		failed = []string{}
	}

	query := `
		INSERT INTO ocrcompare.comparison_jobs (
			id, status, best_engine, best_score, engines_compared, pages_processed,
			failed_engines, processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4::NUMERIC(5,4), 0), NULLIF($5, 0), NULLIF($6, 0),
			$7, NULLIF($8, 0), NULLIF($9, ''), NULLIF($10, ''), COALESCE($11::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			best_engine = COALESCE(EXCLUDED.best_engine, ocrcompare.comparison_jobs.best_engine),
			best_score = COALESCE(EXCLUDED.best_score, ocrcompare.comparison_jobs.best_score),
			engines_compared = COALESCE(EXCLUDED.engines_compared, ocrcompare.comparison_jobs.engines_compared),
			pages_processed = COALESCE(EXCLUDED.pages_processed, ocrcompare.comparison_jobs.pages_processed),
			failed_engines = EXCLUDED.failed_engines,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocrcompare.comparison_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = ocrcompare.comparison_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,                    // $1
		update.Status,                   // $2
		update.BestEngine,               // $3
		sanitizeScore(update.BestScore), // $4
		update.EnginesCompared,          // $5
		update.PagesProcessed,           // $6
		pq.Array(failed),                // $7
		update.ProcessingTimeMs,         // $8
		update.ErrorCode,                // $9
		update.ErrorMessage,             // $10
		metadataJSON,                    // $11
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetJobByID retrieves a comparison job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, status, best_engine, best_score, engines_compared, pages_processed,
			failed_engines, processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		FROM ocrcompare.comparison_jobs
		WHERE id = $1
	`

	var (
		id, status                      string
		bestEngine, errorCode, errorMsg sql.NullString
		bestScore                       sql.NullFloat64
		enginesCompared, pagesProcessed sql.NullInt64
		processingTimeMs                sql.NullInt64
		failedEngines                   pq.StringArray
		metadataJSON                    []byte
		createdAt, updatedAt            time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &status, &bestEngine, &bestScore, &enginesCompared, &pagesProcessed,
		&failedEngines, &processingTimeMs, &errorCode, &errorMsg, &metadataJSON,
		&createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":            id,
		"status":        status,
		"failedEngines": []string(failedEngines),
		"createdAt":     createdAt,
		"updatedAt":     updatedAt,
		"metadata":      metadata,
	}

	if bestEngine.Valid {
		result["bestEngine"] = bestEngine.String
	}
	if bestScore.Valid {
		result["bestScore"] = bestScore.Float64
	}
	if enginesCompared.Valid {
		result["enginesCompared"] = enginesCompared.Int64
	}
	if pagesProcessed.Valid {
		result["pagesProcessed"] = pagesProcessed.Int64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMsg.Valid {
		result["errorMessage"] = errorMsg.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
