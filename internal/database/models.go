package database

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRecord is one row of analysis history. Factors holds only the
// triggered factor keys; the full report is not persisted.
type AnalysisRecord struct {
	ID           string    `json:"id" db:"id"`
	ContractHash string    `json:"contract_hash" db:"contract_hash"`
	Score        float64   `json:"score" db:"score"`
	IsAnomaly    bool      `json:"is_anomaly" db:"is_anomaly"`
	Risk         string    `json:"risk" db:"risk"`
	Degraded     bool      `json:"degraded" db:"degraded"`
	Factors      []string  `json:"factors" db:"factors"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewAnalysisRecord creates a history record. Passing the analysis result ID
// keeps history rows correlated with analyze responses; an empty id gets a
// fresh UUID.
func NewAnalysisRecord(id, contractHash string, score float64, isAnomaly bool, risk string, degraded bool, factors []string) *AnalysisRecord {
	if id == "" {
		id = uuid.New().String()
	}
	return &AnalysisRecord{
		ID:           id,
		ContractHash: contractHash,
		Score:        score,
		IsAnomaly:    isAnomaly,
		Risk:         risk,
		Degraded:     degraded,
		Factors:      factors,
		CreatedAt:    time.Now().UTC(),
	}
}
