package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/features"
)

// ErrSchemaMismatch reports an inference vector carrying keys the fitted
// scaler never saw, e.g. bytecode features against a source-only model.
// Callers recover by scoring raw values and marking the result degraded.
var ErrSchemaMismatch = errors.New("feature vector does not match fitted schema")

// Scaler standardizes feature vectors to z-scores using per-key statistics
// fixed once at fit time. Fields are exported for persistence; the fitted
// state is immutable after FitScaler returns.
type Scaler struct {
	Keys  []string
	Means []float64
	Stds  []float64

	index map[string]int
}

// FitScaler computes per-key population mean and standard deviation over
// the corpus. Keys follow the canonical schema order; a record missing a
// key (no bytecode supplied) contributes zero for it.
func FitScaler(vectors []features.Vector) (*Scaler, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no feature vectors to fit")
	}

	present := make(map[string]bool)
	for _, v := range vectors {
		for k := range v {
			present[k] = true
		}
	}

	keys := make([]string, 0, len(present))
	for _, k := range features.AllKeys() {
		if present[k] {
			keys = append(keys, k)
		}
	}

	n := float64(len(vectors))
	means := make([]float64, len(keys))
	stds := make([]float64, len(keys))

	for i, k := range keys {
		var sum float64
		for _, v := range vectors {
			sum += v[k]
		}
		mean := sum / n

		var sq float64
		for _, v := range vectors {
			d := v[k] - mean
			sq += d * d
		}

		means[i] = mean
		stds[i] = math.Sqrt(sq / n)
	}

	s := &Scaler{Keys: keys, Means: means, Stds: stds}
	s.reindex()
	return s, nil
}

// reindex rebuilds the key lookup, needed after decoding a persisted scaler.
func (s *Scaler) reindex() {
	s.index = make(map[string]int, len(s.Keys))
	for i, k := range s.Keys {
		s.index[k] = i
	}
}

// Transform maps a vector onto the fitted key order as z-scores. A key with
// zero training variance emits 0 instead of dividing by it. A vector key
// absent from the fitted state fails with ErrSchemaMismatch.
func (s *Scaler) Transform(v features.Vector) ([]float64, error) {
	for k := range v {
		if _, ok := s.index[k]; !ok {
			return nil, fmt.Errorf("%w: unseen key %q", ErrSchemaMismatch, k)
		}
	}

	out := make([]float64, len(s.Keys))
	for i, k := range s.Keys {
		if s.Stds[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v[k] - s.Means[i]) / s.Stds[i]
	}
	return out, nil
}

// Raw projects a vector onto the fitted key order without normalization.
// This is the degraded path after a schema mismatch: dimensionality stays
// compatible with the fitted model, calibration guarantees do not.
func (s *Scaler) Raw(v features.Vector) []float64 {
	out := make([]float64, len(s.Keys))
	for i, k := range s.Keys {
		out[i] = v[k]
	}
	return out
}
