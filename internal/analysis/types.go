package analysis

import (
	"encoding/json"
	"time"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/features"
)

// RiskLevel orders the coarse verdict: Low < Low-Medium < Medium < High.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskLowMedium
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskHigh:
		return "High"
	case RiskMedium:
		return "Medium"
	case RiskLowMedium:
		return "Low-Medium"
	default:
		return "Low"
	}
}

// MarshalJSON renders the level as its display string.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// AnomalyFactor ties one triggered attribution rule to the raw feature
// evidence behind it. At most one instance per factor key per report.
type AnomalyFactor struct {
	Factor      string  `json:"factor"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

// AnalysisResult is the terminal output of one contract analysis.
type AnalysisResult struct {
	ID             string          `json:"id"`
	IsAnomaly      bool            `json:"is_anomaly"`
	AnomalyScore   float64         `json:"anomaly_score"`
	Threshold      float64         `json:"threshold"`
	RiskLevel      RiskLevel       `json:"risk_level"`
	Degraded       bool            `json:"degraded"`
	Features       features.Vector `json:"features"`
	AnomalyFactors []AnomalyFactor `json:"anomaly_factors"`
	Summary        string          `json:"summary"`
	Recommendation string          `json:"recommendation"`
	AnalyzedAt     time.Time       `json:"analyzed_at"`
}

// ModelInfo describes the currently published model snapshot.
type ModelInfo struct {
	Loaded        bool      `json:"loaded"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	FeatureCount  int       `json:"feature_count,omitempty"`
	CorpusSize    int       `json:"corpus_size,omitempty"`
	Contamination float64   `json:"contamination,omitempty"`
	Threshold     float64   `json:"threshold"`
	TrainedAt     time.Time `json:"trained_at"`
}
