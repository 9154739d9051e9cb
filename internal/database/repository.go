package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Repository handles analysis history operations
type Repository struct {
	db *DB
}

// NewRepository wraps an open database handle
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveAnalysis appends one analysis record to history.
func (r *Repository) SaveAnalysis(ctx context.Context, record *AnalysisRecord) error {
	factorsJSON, err := json.Marshal(record.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode factors: %w", err)
	}

	stmt, err := r.db.GetPreparedStatement("insert_analysis")
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		record.ID, record.ContractHash, record.Score, record.IsAnomaly,
		record.Risk, record.Degraded, string(factorsJSON), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// RecentAnalyses returns the newest records first. A non-positive limit
// falls back to the default page size and anything above the cap is clamped.
func (r *Repository) RecentAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	stmt, err := r.db.GetPreparedStatement("recent_analyses")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	records := make([]AnalysisRecord, 0, limit)
	for rows.Next() {
		var record AnalysisRecord
		var factorsJSON sql.NullString

		err := rows.Scan(
			&record.ID, &record.ContractHash, &record.Score, &record.IsAnomaly,
			&record.Risk, &record.Degraded, &factorsJSON, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}

		if factorsJSON.Valid && factorsJSON.String != "" {
			if err := json.Unmarshal([]byte(factorsJSON.String), &record.Factors); err != nil {
				return nil, fmt.Errorf("failed to decode factors: %w", err)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis rows: %w", err)
	}

	return records, nil
}

// CountAnalyses returns the total number of stored records.
func (r *Repository) CountAnalyses(ctx context.Context) (int64, error) {
	stmt, err := r.db.GetPreparedStatement("count_analyses")
	if err != nil {
		return 0, err
	}

	var count int64
	if err := stmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	return count, nil
}
