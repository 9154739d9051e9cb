package analysis

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/features"
)

// modelEnvelope is the on-disk form of a fitted model. The schema version
// and base key list travel with the payload so a stale file cannot score
// against the wrong feature layout.
type modelEnvelope struct {
	SchemaVersion string
	BaseKeys      []string
	Scaler        *Scaler
	Forest        []byte
	Contamination float64
	Threshold     float64
	CorpusSize    int
	TrainedAt     time.Time
}

// ModelStore reads and writes fitted models at a fixed file path.
type ModelStore struct {
	path string
}

// NewModelStore creates a store bound to the given model file path.
func NewModelStore(path string) *ModelStore {
	return &ModelStore{path: path}
}

// Path returns the backing file path.
func (s *ModelStore) Path() string { return s.path }

// Exists reports whether a model file is present on disk.
func (s *ModelStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes the envelope, creating parent directories as needed.
func (s *ModelStore) Save(env *modelEnvelope) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(env); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Load reads an envelope back and verifies it against the current feature
// schema. An incompatible file is an error, never a silent drop to an
// unfitted model.
func (s *ModelStore) Load() (*modelEnvelope, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var env modelEnvelope
	if err := gob.NewDecoder(file).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	if env.SchemaVersion != features.SchemaVersion {
		return nil, fmt.Errorf("%w: model schema %q, current %q", ErrSchemaMismatch, env.SchemaVersion, features.SchemaVersion)
	}
	if !slices.Equal(env.BaseKeys, features.BaseKeys()) {
		return nil, fmt.Errorf("%w: model base feature keys differ from schema %q", ErrSchemaMismatch, features.SchemaVersion)
	}
	if env.Scaler == nil || env.Forest == nil {
		return nil, fmt.Errorf("model file is missing fitted state")
	}
	env.Scaler.reindex()

	return &env, nil
}
