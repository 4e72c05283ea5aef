package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// JSONStore keeps the accuracy database in a single JSON file.
// Writes go through a temp file and rename; calls are serialized per store.
type JSONStore struct {
	path   string
	mu     sync.Mutex
	logger *logging.Logger
	now    func() time.Time
}

// NewJSONStore creates a store backed by path. The file is created on first write.
func NewJSONStore(path string, logger *logging.Logger) *JSONStore {
	return &JSONStore{
		path:   path,
		logger: logging.OrDefault(logger, "AccuracyStore"),
		now:    time.Now,
	}
}

// Path returns the database file location
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the database; a missing file yields an empty database
func (s *JSONStore) Load(ctx context.Context) (*model.AccuracyDatabase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONStore) load() (*model.AccuracyDatabase, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.NewAccuracyDatabase(s.now().UTC()), nil
	}
	if err != nil {
		return nil, errors.NewStorageFailedError(s.path, err)
	}

	var db model.AccuracyDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, errors.NewStorageFailedError(s.path, fmt.Errorf("corrupt accuracy database: %w", err))
	}
	if db.Engines == nil {
		db.Engines = make(map[string]*model.EngineAccuracyHistory)
	}
	for name, history := range db.Engines {
		if history == nil {
			db.Engines[name] = &model.EngineAccuracyHistory{Evaluations: []model.Evaluation{}}
		}
	}
	return &db, nil
}

// AppendEvaluations performs one read-modify-write of the database file
func (s *JSONStore) AppendEvaluations(ctx context.Context, evals map[string]model.Evaluation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(evals))
	for name := range evals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		db.Record(name, evals[name])
	}
	db.LastUpdated = s.now().UTC()

	if err := s.write(db); err != nil {
		return "", err
	}

	s.logger.Info("Accuracy database updated", "path", s.path, "engines", len(names))
	return s.path, nil
}

func (s *JSONStore) write(db *model.AccuracyDatabase) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return errors.NewStorageFailedError(s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewStorageFailedError(s.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".accuracy-*.json")
	if err != nil {
		return errors.NewStorageFailedError(s.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewStorageFailedError(s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStorageFailedError(s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.NewStorageFailedError(s.path, err)
	}
	return nil
}
