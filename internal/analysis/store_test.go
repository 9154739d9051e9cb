package analysis

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/features"
)

func testEnvelope(t *testing.T) *modelEnvelope {
	t.Helper()

	scaler, err := FitScaler([]features.Vector{
		features.Extract("contract A { function f() public {} }", ""),
		features.Extract("contract B { function g() public {} function h() public {} }", ""),
	})
	require.NoError(t, err)

	return &modelEnvelope{
		SchemaVersion: features.SchemaVersion,
		BaseKeys:      features.BaseKeys(),
		Scaler:        scaler,
		Forest:        []byte{0x1, 0x2, 0x3},
		Contamination: 0.1,
		Threshold:     -0.42,
		CorpusSize:    2,
		TrainedAt:     time.Now().UTC(),
	}
}

func TestModelStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "anomaly_model.bin")
	store := NewModelStore(path)
	assert.False(t, store.Exists())

	env := testEnvelope(t)
	require.NoError(t, store.Save(env))
	assert.True(t, store.Exists())

	got, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, env.SchemaVersion, got.SchemaVersion)
	assert.Equal(t, env.BaseKeys, got.BaseKeys)
	assert.Equal(t, env.Forest, got.Forest)
	assert.Equal(t, env.Contamination, got.Contamination)
	assert.Equal(t, env.Threshold, got.Threshold)
	assert.Equal(t, env.CorpusSize, got.CorpusSize)
	assert.True(t, env.TrainedAt.Equal(got.TrainedAt))
	assert.Equal(t, env.Scaler.Keys, got.Scaler.Keys)
	assert.Equal(t, env.Scaler.Means, got.Scaler.Means)
	assert.Equal(t, env.Scaler.Stds, got.Scaler.Stds)
}

func TestModelStoreLoadReindexesScaler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	store := NewModelStore(path)
	require.NoError(t, store.Save(testEnvelope(t)))

	got, err := store.Load()
	require.NoError(t, err)

	// The decoded scaler must accept vectors again; the key index is not
	// part of the serialized form.
	_, err = got.Scaler.Transform(features.Extract("contract C {}", ""))
	assert.NoError(t, err)
}

func TestModelStoreLoadMissingFile(t *testing.T) {
	store := NewModelStore(filepath.Join(t.TempDir(), "absent.bin"))
	_, err := store.Load()
	assert.Error(t, err)
}

func TestModelStoreRejectsSchemaVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	store := NewModelStore(path)

	env := testEnvelope(t)
	env.SchemaVersion = "v0"
	require.NoError(t, store.Save(env))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestModelStoreRejectsBaseKeyDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	store := NewModelStore(path)

	env := testEnvelope(t)
	env.BaseKeys = append(env.BaseKeys[:len(env.BaseKeys)-1], "renamed_key")
	require.NoError(t, store.Save(env))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestModelStoreRejectsMissingFittedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	store := NewModelStore(path)

	env := testEnvelope(t)
	env.Forest = nil
	require.NoError(t, store.Save(env))

	_, err := store.Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemaMismatch)
}
