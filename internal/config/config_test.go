package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

func TestLoadTrainingDefaults(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("MODEL_BUCKET_NAME", "models")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadTraining()
	require.NoError(t, err)
	assert.Equal(t, 0.02, cfg.AcceptThreshold)
	assert.Equal(t, "Response", cfg.TargetColumn)
	assert.Equal(t, 0.25, cfg.TestSplitRatio)
	assert.Equal(t, "model.json", cfg.ModelKey)
	assert.False(t, cfg.DeleteLocalOnPush)
	assert.True(t, cfg.Resample)
	assert.False(t, cfg.AuditArchive)
	assert.Empty(t, cfg.SourceCSV)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadTrainingOverrides(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://db")
	t.Setenv("MODEL_BUCKET_NAME", "models")
	t.Setenv("MODEL_ACCEPT_THRESHOLD", "0.05")
	t.Setenv("MODEL_DELETE_LOCAL_ON_PUSH", "true")
	t.Setenv("PIPELINE_EPOCHS", "not-a-number")
	t.Setenv("DATABASE_URL", "postgres://audit")

	cfg, err := LoadTraining()
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.AcceptThreshold)
	assert.True(t, cfg.DeleteLocalOnPush)
	assert.Equal(t, defaultEpochs, cfg.Epochs)
	assert.Equal(t, "postgres://audit", cfg.AuditDatabaseURL)
}

func TestLoadTrainingMissingMongoURL(t *testing.T) {
	t.Setenv("MONGODB_URL", "")
	t.Setenv("PIPELINE_SOURCE_CSV", "")
	t.Setenv("MODEL_BUCKET_NAME", "models")

	_, err := LoadTraining()
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipelineerr.ErrConfiguration))
}

func TestLoadTrainingFromCSVExport(t *testing.T) {
	t.Setenv("MONGODB_URL", "")
	t.Setenv("PIPELINE_SOURCE_CSV", "exports/vehicle.csv")
	t.Setenv("MODEL_BUCKET_NAME", "models")

	cfg, err := LoadTraining()
	require.NoError(t, err)
	assert.Equal(t, "exports/vehicle.csv", cfg.SourceCSV)
}

func TestLoadTrainingRejectsBadThreshold(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://db")
	t.Setenv("MODEL_BUCKET_NAME", "models")

	for _, v := range []string{"0,05", "NaN", "+Inf", "-inf", "two percent"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MODEL_ACCEPT_THRESHOLD", v)
			_, err := LoadTraining()
			require.Error(t, err)
			assert.True(t, errors.Is(err, pipelineerr.ErrConfiguration))
			assert.Contains(t, err.Error(), "MODEL_ACCEPT_THRESHOLD")
		})
	}
}

func TestLoadTrainingMissingBucket(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://db")
	t.Setenv("MODEL_BUCKET_NAME", "")

	_, err := LoadTraining()
	assert.True(t, errors.Is(err, pipelineerr.ErrConfiguration))
}

func TestLoadPredictionDoesNotNeedMongo(t *testing.T) {
	t.Setenv("MONGODB_URL", "")
	t.Setenv("MODEL_BUCKET_NAME", "models")

	cfg, err := LoadPrediction()
	require.NoError(t, err)
	assert.Equal(t, ":8070", cfg.Addr)
	assert.Equal(t, "model:predict", cfg.RequiredScope)
}

func TestLoadSchemaFile(t *testing.T) {
	s, err := LoadSchema(filepath.Join("..", "..", "config", "schema.yaml"))
	require.NoError(t, err)

	names := s.ColumnNames()
	assert.Equal(t, "id", names[0])
	assert.Contains(t, names, "Response")
	assert.Equal(t, []string{"Age", "Vintage"}, s.NumFeatures)
	assert.Equal(t, 1.0, s.ValueMappings["Gender"]["Male"])

	typ, ok := s.ColumnType("Annual_Premium")
	require.True(t, ok)
	assert.Equal(t, "float", typ)
}

func TestLoadSchemaErrors(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, pipelineerr.ErrConfiguration))

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("numerical_columns: [a]\n"), 0o644))
	_, err = LoadSchema(path)
	assert.True(t, errors.Is(err, pipelineerr.ErrConfiguration))

	_, err = ParseSchema([]byte("columns: [unterminated"))
	assert.True(t, errors.Is(err, pipelineerr.ErrConfiguration))
}
