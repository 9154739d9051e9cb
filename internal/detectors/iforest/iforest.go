// Package iforest implements an isolation forest: an ensemble of randomly
// built partitioning trees where anomalous points need fewer splits to
// isolate. Scores follow the convention used by the decision thresholds
// downstream: [-1, 0], more negative means more anomalous.
package iforest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/detectors"
)

var (
	// ErrNotTrained is returned by score/predict calls before a fit.
	ErrNotTrained = errors.New("iforest: model not trained")
	// ErrEmptyTrainingSet is returned when Fit receives no rows.
	ErrEmptyTrainingSet = errors.New("iforest: empty training data")
	// ErrDimensionMismatch is returned when a sample's width differs from
	// the training data's.
	ErrDimensionMismatch = errors.New("iforest: feature dimension mismatch")
)

// IsolationForest implements detectors.Detector.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	seed          int64

	// Trained model
	trees     []*Tree
	threshold float64
	maxDepth  int
	nFeatures int
	trained   bool

	// c(n) normalization constant for the effective sample size.
	avgPathLength float64
}

var _ detectors.Detector = (*IsolationForest)(nil)

// Tree is a single isolation tree. Fields are exported so the ensemble
// round-trips through gob.
type Tree struct {
	Root *Node
}

// Node is one partition in an isolation tree. Leaf nodes carry the number
// of samples that reached them.
type Node struct {
	SplitFeature int
	SplitValue   float64
	Left         *Node
	Right        *Node
	Size         int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies, which fixes
// the decision threshold at fit time.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed. Fits are reproducible for a given seed.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates an IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		seed:          42,
		threshold:     -0.5,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit rebuilds the ensemble from scratch over the training rows. The RNG is
// reseeded on every call so repeated fits on identical input produce
// identical models.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return ErrEmptyTrainingSet
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return ErrDimensionMismatch
	}

	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	rng := rand.New(rand.NewSource(f.seed))
	f.maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))

	f.trees = make([]*Tree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement.
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &Tree{Root: f.buildNode(rng, sample, nFeatures, 0)}
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.nFeatures = nFeatures
	f.trained = true

	// The decision threshold is the contamination-quantile of the training
	// scores: the lowest contamination fraction is called anomalous.
	if f.contamination > 0 {
		scores := make([]float64, nSamples)
		for i, row := range data {
			scores[i] = f.scoreOne(row)
		}
		f.threshold = percentile(scores, 100*f.contamination)
	}

	return nil
}

func (f *IsolationForest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *Node {
	n := len(data)

	if depth >= f.maxDepth || n <= 1 {
		return &Node{Size: n}
	}

	feature := rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// No spread on the chosen feature: the partition cannot progress.
	if minVal == maxVal {
		return &Node{Size: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         f.buildNode(rng, leftData, nFeatures, depth+1),
		Right:        f.buildNode(rng, rightData, nFeatures, depth+1),
	}
}

// Score returns the anomaly score for one sample: -(2^(-E[h(x)]/c(n))),
// bounded to [-1, 0], more negative meaning fewer splits were needed to
// isolate the point.
func (f *IsolationForest) Score(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, ErrNotTrained
	}
	if len(sample) != f.nFeatures {
		return 0, ErrDimensionMismatch
	}

	return f.scoreOne(sample), nil
}

func (f *IsolationForest) scoreOne(sample []float64) float64 {
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// A single-point sample has no isolation depth to normalize against;
	// every score collapses to the non-anomalous end of the range.
	if f.avgPathLength == 0 {
		return 0
	}

	return -math.Pow(2, -avgPath/f.avgPathLength)
}

// Predict classifies one sample: anomalous when its score falls strictly
// below the fitted threshold.
func (f *IsolationForest) Predict(sample []float64) (bool, error) {
	score, err := f.Score(sample)
	if err != nil {
		return false, err
	}
	return score < f.Threshold(), nil
}

// Threshold returns the decision threshold fixed at fit (or load) time.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// Contamination returns the configured anomaly prior.
func (f *IsolationForest) Contamination() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.contamination
}

// Trained reports whether the forest holds a fitted ensemble.
func (f *IsolationForest) Trained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trained
}

// pathLength walks a sample down a tree; leaves add the expected remaining
// depth for the samples that pooled there.
func pathLength(sample []float64, n *Node, currentDepth int) float64 {
	if n.Left == nil && n.Right == nil {
		return float64(currentDepth) + averagePathLength(float64(n.Size))
	}

	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, currentDepth+1)
	}
	return pathLength(sample, n.Right, currentDepth+1)
}

// averagePathLength is c(n), the average unsuccessful-search path length in
// a binary search tree: 2*H(n-1) - 2*(n-1)/n with H(n) ~ ln(n) + 0.5772156649.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	for _, v := range []any{f.nTrees, f.sampleSize, f.contamination, f.seed, f.threshold, f.avgPathLength, f.maxDepth, f.nFeatures} {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	if err := enc.Encode(f.trees); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dec := gob.NewDecoder(bytes.NewBuffer(data))

	for _, v := range []any{&f.nTrees, &f.sampleSize, &f.contamination, &f.seed, &f.threshold, &f.avgPathLength, &f.maxDepth, &f.nFeatures} {
		if err := dec.Decode(v); err != nil {
			return err
		}
	}
	if err := dec.Decode(&f.trees); err != nil {
		return err
	}

	f.trained = true
	return nil
}

// percentile returns the p-th percentile of data by nearest rank on the
// ascending sort.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
