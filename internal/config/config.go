/**
 * Configuration for the OCR comparison worker
 *
 * Loads configuration from environment variables (a .env file is loaded by
 * the cmd entry points before LoadConfig runs).
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Config holds worker configuration
type Config struct {
	// Script-aware scoring
	TargetScript    string   // Unicode script name, e.g. "Devanagari"
	TargetLanguages []string // Tesseract language codes

	// Quality thresholds
	MinScriptRate           float64
	MinConfidence           float64
	MinTextLength           int
	TableAlignmentThreshold float64

	// Orchestration
	MaxConcurrentEngines int
	ProcessingTimeout    int // milliseconds

	// Evaluation
	FormTextCap    int
	AccuracyDBPath string
	DatabaseURL    string // optional, enables the PostgreSQL accuracy store

	// Queue
	RedisURL          string
	QueueName         string
	QueueBackend      string // "redis" or "asynq"
	WorkerConcurrency int

	// Engines
	TesseractEnabled bool
	MageAgentURL     string
	OllamaURL        string
	OllamaModel      string

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TargetScript:            getEnvOrDefault("TARGET_SCRIPT", "Devanagari"),
		TargetLanguages:         splitLanguages(getEnvOrDefault("TARGET_LANGUAGES", "hin+eng")),
		MinScriptRate:           getEnvAsFloatOrDefault("MIN_SCRIPT_RATE", 0.7),
		MinConfidence:           getEnvAsFloatOrDefault("MIN_CONFIDENCE", 0.6),
		MinTextLength:           getEnvAsIntOrDefault("MIN_TEXT_LENGTH", 50),
		TableAlignmentThreshold: getEnvAsFloatOrDefault("TABLE_ALIGNMENT_THRESHOLD", 0.7),
		MaxConcurrentEngines:    getEnvAsIntOrDefault("MAX_CONCURRENT_ENGINES", 3),
		ProcessingTimeout:       getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 600000), // 10 minutes
		FormTextCap:             getEnvAsIntOrDefault("FORM_TEXT_CAP", 500),
		AccuracyDBPath:          getEnvOrDefault("ACCURACY_DB_PATH", "./data/accuracy_database.json"),
		DatabaseURL:             getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:                getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:               getEnvOrDefault("QUEUE_NAME", "ocrcompare:jobs"),
		QueueBackend:            strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", "redis")),
		WorkerConcurrency:       getEnvAsIntOrDefault("WORKER_CONCURRENCY", 2),
		TesseractEnabled:        getEnvAsBoolOrDefault("TESSERACT_ENABLED", true),
		MageAgentURL:            getEnvOrDefault("MAGEAGENT_URL", ""),
		OllamaURL:               getEnvOrDefault("OLLAMA_URL", ""),
		OllamaModel:             getEnvOrDefault("OLLAMA_MODEL", "llama3.2-vision"),
		LogLevel:                getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if _, ok := unicode.Scripts[c.TargetScript]; !ok {
		return fmt.Errorf("TARGET_SCRIPT %q is not a known Unicode script", c.TargetScript)
	}

	if len(c.TargetLanguages) == 0 {
		return fmt.Errorf("TARGET_LANGUAGES must name at least one language")
	}

	for name, v := range map[string]float64{
		"MIN_SCRIPT_RATE":           c.MinScriptRate,
		"MIN_CONFIDENCE":            c.MinConfidence,
		"TABLE_ALIGNMENT_THRESHOLD": c.TableAlignmentThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}

	if c.MinTextLength < 0 {
		return fmt.Errorf("MIN_TEXT_LENGTH must not be negative, got %d", c.MinTextLength)
	}

	if c.MaxConcurrentEngines < 1 || c.MaxConcurrentEngines > 32 {
		return fmt.Errorf("MAX_CONCURRENT_ENGINES must be between 1 and 32, got %d", c.MaxConcurrentEngines)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.FormTextCap < 10 {
		return fmt.Errorf("FORM_TEXT_CAP must be at least 10, got %d", c.FormTextCap)
	}

	if c.AccuracyDBPath == "" && c.DatabaseURL == "" {
		return fmt.Errorf("either ACCURACY_DB_PATH or DATABASE_URL is required")
	}

	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	return nil
}

// splitLanguages accepts "hin+eng" or "hin,eng"
func splitLanguages(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' || unicode.IsSpace(r) })
	return fields
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
