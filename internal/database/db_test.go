package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(db)
}

func TestNewDBCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "history.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)
}

func TestSaveAndRecentAnalyses(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []*AnalysisRecord{
		NewAnalysisRecord("id-1", "hash-1", -0.42, false, "Low", false, nil),
		NewAnalysisRecord("id-2", "hash-2", -0.71, true, "Medium", false, []string{"external_calls", "tx_origin_uses"}),
		NewAnalysisRecord("id-3", "hash-3", -0.93, true, "High", true, []string{"selfdestruct_calls"}),
	}
	for i, record := range records {
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveAnalysis(ctx, record))
	}

	got, err := repo.RecentAnalyses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first
	assert.Equal(t, "id-3", got[0].ID)
	assert.Equal(t, "id-2", got[1].ID)
	assert.Equal(t, "id-1", got[2].ID)

	assert.Equal(t, "hash-3", got[0].ContractHash)
	assert.InDelta(t, -0.93, got[0].Score, 1e-9)
	assert.True(t, got[0].IsAnomaly)
	assert.Equal(t, "High", got[0].Risk)
	assert.True(t, got[0].Degraded)
	assert.Equal(t, []string{"selfdestruct_calls"}, got[0].Factors)

	assert.False(t, got[2].IsAnomaly)
	assert.Empty(t, got[2].Factors)
}

func TestRecentAnalysesLimits(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		record := NewAnalysisRecord("", "hash", -0.5, false, "Low", false, nil)
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveAnalysis(ctx, record))
	}

	got, err := repo.RecentAnalyses(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Non-positive limit falls back to the default page size
	got, err = repo.RecentAnalyses(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	// Oversized limit is clamped, not rejected
	got, err = repo.RecentAnalyses(ctx, 100000)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestCountAnalyses(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	count, err := repo.CountAnalyses(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.SaveAnalysis(ctx, NewAnalysisRecord("", "hash", -0.1, false, "Low", false, nil)))
	}

	count, err = repo.CountAnalyses(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestNewAnalysisRecordGeneratesID(t *testing.T) {
	record := NewAnalysisRecord("", "hash", -0.3, false, "Low", false, nil)
	assert.NotEmpty(t, record.ID)

	kept := NewAnalysisRecord("fixed-id", "hash", -0.3, false, "Low", false, nil)
	assert.Equal(t, "fixed-id", kept.ID)
}
