package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/detectors/iforest"
	apperrors "github.com/dinesh3456/smart-contract-auditing-system/internal/errors"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/features"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/monitoring"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

// defaultContract seeds the bootstrap model when no model file exists at
// startup. A single-record corpus has zero variance everywhere, so the
// resulting model classifies everything as normal until a real corpus is
// trained.
const defaultContract = `pragma solidity ^0.8.0;

contract SimpleStorage {
    uint private data;

    function set(uint x) public {
        data = x;
    }

    function get() public view returns (uint) {
        return data;
    }
}
`

// modelSnapshot is one immutable fitted model. Train and LoadModel build a
// fresh snapshot and publish it with a single pointer swap; readers never
// observe a half-updated model.
type modelSnapshot struct {
	scaler     *Scaler
	forest     *iforest.IsolationForest
	corpusSize int
	trainedAt  time.Time
}

func (s *modelSnapshot) info() ModelInfo {
	return ModelInfo{
		Loaded:        true,
		SchemaVersion: features.SchemaVersion,
		FeatureCount:  len(s.scaler.Keys),
		CorpusSize:    s.corpusSize,
		Contamination: s.forest.Contamination(),
		Threshold:     s.forest.Threshold(),
		TrainedAt:     s.trainedAt,
	}
}

// Analyzer orchestrates the full analysis pipeline: feature extraction,
// normalization, outlier scoring, factor attribution and the composed
// report. It holds the current model snapshot and serializes writers.
type Analyzer struct {
	mu       sync.RWMutex
	snapshot *modelSnapshot

	logger *monitoring.Logger
}

// NewAnalyzer creates an analyzer with no model loaded. Callers either
// Train, LoadModel or EnsureModel before analyzing.
func NewAnalyzer(logger *monitoring.Logger) *Analyzer {
	if logger == nil {
		logger = monitoring.NewLogger()
	}
	return &Analyzer{logger: logger}
}

func (a *Analyzer) current() *modelSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Train fits a new model over the corpus and publishes it. The previous
// snapshot stays live until the new one is complete; any failure leaves it
// untouched.
func (a *Analyzer) Train(ctx context.Context, records []types.ContractRecord) (ModelInfo, error) {
	if len(records) == 0 {
		return ModelInfo{}, apperrors.NewEmptyCorpusError()
	}
	if err := ctx.Err(); err != nil {
		return ModelInfo{}, err
	}

	start := time.Now()

	vectors := make([]features.Vector, len(records))
	for i, rec := range records {
		vectors[i] = features.Extract(rec.Code, rec.Bytecode)
	}

	scaler, err := FitScaler(vectors)
	if err != nil {
		return ModelInfo{}, apperrors.NewInternalError("failed to fit feature scaler", err)
	}

	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		row, err := scaler.Transform(v)
		if err != nil {
			return ModelInfo{}, apperrors.NewInternalError("failed to normalize training corpus", err)
		}
		rows[i] = row
	}

	if err := ctx.Err(); err != nil {
		return ModelInfo{}, err
	}

	forest := iforest.New()
	if err := forest.Fit(rows); err != nil {
		return ModelInfo{}, apperrors.NewInternalError("failed to fit isolation forest", err)
	}

	snap := &modelSnapshot{
		scaler:     scaler,
		forest:     forest,
		corpusSize: len(records),
		trainedAt:  time.Now().UTC(),
	}

	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()

	a.logger.TrainingLogger(snap.corpusSize, len(scaler.Keys), forest.Threshold(), time.Since(start))

	return snap.info(), nil
}

// AnalyzeContract scores one contract against the current model. The abi
// payload is accepted for wire compatibility but carries no features. When
// the extracted vector does not match the fitted schema the analysis
// degrades to raw, unnormalized values rather than failing.
func (a *Analyzer) AnalyzeContract(ctx context.Context, code, bytecode string, abi json.RawMessage) (*AnalysisResult, error) {
	_ = abi

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := a.current()
	if snap == nil {
		return nil, apperrors.NewModelNotLoadedError()
	}

	v := features.Extract(code, bytecode)

	degraded := false
	row, err := snap.scaler.Transform(v)
	if err != nil {
		if !errors.Is(err, ErrSchemaMismatch) {
			return nil, apperrors.NewInternalError("failed to normalize feature vector", err)
		}
		degraded = true
		row = snap.scaler.Raw(v)
		a.logger.DegradedAnalysisLogger(err.Error())
	}

	score, err := snap.forest.Score(row)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to score feature vector", err)
	}

	threshold := snap.forest.Threshold()
	anomalous := score < threshold

	factors := AnalyzeFactors(v, anomalous)

	return &AnalysisResult{
		ID:             uuid.NewString(),
		IsAnomaly:      anomalous,
		AnomalyScore:   score,
		Threshold:      threshold,
		RiskLevel:      RiskFor(anomalous, score, factors),
		Degraded:       degraded,
		Features:       v,
		AnomalyFactors: factors,
		Summary:        Summarize(anomalous, factors),
		Recommendation: Compose(factors),
		AnalyzedAt:     time.Now().UTC(),
	}, nil
}

// SaveModel persists the current snapshot to path.
func (a *Analyzer) SaveModel(path string) error {
	snap := a.current()
	if snap == nil {
		return apperrors.NewModelNotLoadedError()
	}

	forestBytes, err := snap.forest.Save()
	if err != nil {
		return apperrors.NewModelPersistenceError("failed to serialize model", err)
	}

	env := &modelEnvelope{
		SchemaVersion: features.SchemaVersion,
		BaseKeys:      features.BaseKeys(),
		Scaler:        snap.scaler,
		Forest:        forestBytes,
		Contamination: snap.forest.Contamination(),
		Threshold:     snap.forest.Threshold(),
		CorpusSize:    snap.corpusSize,
		TrainedAt:     snap.trainedAt,
	}

	if err := NewModelStore(path).Save(env); err != nil {
		return apperrors.NewModelPersistenceError("failed to write model file", err)
	}

	a.logger.SystemLogger("model_saved", path)
	return nil
}

// LoadModel replaces the current snapshot with one restored from path.
// Errors propagate; the analyzer never falls back to an unfitted model.
func (a *Analyzer) LoadModel(path string) error {
	env, err := NewModelStore(path).Load()
	if err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return apperrors.NewSchemaMismatchError("model file does not match the current feature schema", err)
		}
		return apperrors.NewModelPersistenceError("failed to read model file", err)
	}

	forest := iforest.New()
	if err := forest.Load(env.Forest); err != nil {
		return apperrors.NewModelPersistenceError("failed to restore isolation forest", err)
	}

	snap := &modelSnapshot{
		scaler:     env.Scaler,
		forest:     forest,
		corpusSize: env.CorpusSize,
		trainedAt:  env.TrainedAt,
	}

	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()

	a.logger.SystemLogger("model_loaded", path)
	return nil
}

// ModelInfo describes the current snapshot, or a zero-valued report when
// nothing is loaded.
func (a *Analyzer) ModelInfo() ModelInfo {
	snap := a.current()
	if snap == nil {
		return ModelInfo{Loaded: false}
	}
	return snap.info()
}

// EnsureModel loads the model at path, training and saving a single-record
// default model first when the file is missing. Startup never proceeds
// without a scoreable model.
func (a *Analyzer) EnsureModel(ctx context.Context, path string) error {
	store := NewModelStore(path)
	if store.Exists() {
		return a.LoadModel(path)
	}

	a.logger.SystemLogger("model_bootstrap", "no model found at "+path+", training default model")

	if _, err := a.Train(ctx, []types.ContractRecord{{Code: defaultContract, Name: "SimpleStorage"}}); err != nil {
		return err
	}
	return a.SaveModel(path)
}
