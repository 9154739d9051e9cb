// Package detectors defines the contract for unsupervised outlier models.
package detectors

// Detector is the common interface for anomaly detection models.
type Detector interface {
	// Fit trains the detector. data is a 2D slice where each row is a
	// sample and each column is a feature.
	Fit(data [][]float64) error

	// Score returns the continuous anomaly score for one sample. Scores
	// live in [-1, 0]; more negative means more anomalous.
	Score(sample []float64) (float64, error)

	// Predict classifies one sample against the decision threshold fixed
	// at fit time.
	Predict(sample []float64) (bool, error)

	// Threshold returns the fitted decision threshold.
	Threshold() float64

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}
